// Package format renders stored revision values for display according to a
// per-model map of field name to "method:args" descriptors, e.g.
//
//	map[string]string{
//		"public":  "boolean:No|Yes",
//		"minimum": "string:Min: %s",
//		"born_at": "datetime:d/m/Y",
//		"status":  "options:a.Active|i.Inactive",
//	}
package format

import (
	"strings"

	"github.com/mickamy/revisionable/internal/normalize"
)

// Undefined is rendered by the options method for unmatched values.
const Undefined = "undefined"

// DefaultLayout is the layout times are stored with unless configured.
const DefaultLayout = "2006-01-02 15:04:05"

// DefaultBooleanLabels are used when a boolean descriptor has no valid pair.
var DefaultBooleanLabels = [2]string{"No", "Yes"}

type method func(f Formatter, value any, args string) string

var methods = map[string]method{
	"boolean":  func(_ Formatter, value any, args string) string { return Boolean(value, args) },
	"string":   Formatter.String,
	"datetime": Formatter.Datetime,
	"isEmpty":  Formatter.IsEmpty,
	"options":  Formatter.Options,
}

// Formatter renders values whose times were stored with Layout.
type Formatter struct {
	Layout string
}

func (f Formatter) layout() string {
	if f.Layout == "" {
		return DefaultLayout
	}
	return f.Layout
}

// Format renders value for key using spec with the default layout.
func Format(key string, value any, spec map[string]string) string {
	return Formatter{}.Render(key, value, spec)
}

// Render renders value for key using spec. Missing, malformed or unknown
// descriptors leave the value unchanged.
func (f Formatter) Render(key string, value any, spec map[string]string) string {
	descriptor, ok := spec[key]
	if !ok {
		return f.Text(value)
	}
	name, args, ok := strings.Cut(descriptor, ":")
	if !ok {
		return f.Text(value)
	}
	fn, ok := methods[name]
	if !ok {
		return f.Text(value)
	}
	return fn(f, value, args)
}

// Text renders value without any formatting; nil renders as "".
func (f Formatter) Text(value any) string {
	s := normalize.Stringify(value, f.layout())
	if s == nil {
		return ""
	}
	return *s
}

// Boolean maps the truthiness of value onto a "No|Yes" style label pair.
func Boolean(value any, args string) string {
	labels := DefaultBooleanLabels
	if parts := strings.Split(args, "|"); len(parts) == 2 {
		labels = [2]string{parts[0], parts[1]}
	}
	if normalize.Truthy(value) {
		return labels[1]
	}
	return labels[0]
}

// String applies a one-placeholder template, "%s" by default.
func (f Formatter) String(value any, args string) string {
	if args == "" {
		args = "%s"
	}
	return applyTemplate(args, f.Text(value))
}

// IsEmpty reports through Boolean whether value is set. The chosen label may
// itself contain a %s placeholder for the value.
func (f Formatter) IsEmpty(value any, args string) string {
	text := f.Text(value)
	set := value != nil && text != ""
	return applyTemplate(Boolean(set, args), text)
}

// Options maps value through a literal "key.label|key.label" table. Literal
// dots and pipes are escaped with a backslash.
func (f Formatter) Options(value any, args string) string {
	want := f.Text(value)
	for _, option := range splitEscaped(args, '|') {
		pair := splitEscaped(option, '.')
		if len(pair) < 2 {
			continue
		}
		key := unescape(pair[0])
		label := unescape(strings.Join(pair[1:], "."))
		if key == want {
			return label
		}
	}
	return Undefined
}

func applyTemplate(tmpl, value string) string {
	var b strings.Builder
	replaced := false
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] == '%' && i+1 < len(tmpl) {
			switch tmpl[i+1] {
			case '%':
				b.WriteByte('%')
				i++
				continue
			case 's':
				if !replaced {
					b.WriteString(value)
					replaced = true
					i++
					continue
				}
			}
		}
		b.WriteByte(tmpl[i])
	}
	return b.String()
}

// splitEscaped splits s on sep, ignoring separators preceded by a backslash.
// Escape sequences are kept so later splits can still see them.
func splitEscaped(s string, sep byte) []string {
	var parts []string
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if c == sep {
			parts = append(parts, b.String())
			b.Reset()
			continue
		}
		b.WriteByte(c)
	}
	return append(parts, b.String())
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
