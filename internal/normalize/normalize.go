// Package normalize turns attribute values into canonical forms that can be
// compared for equality and stored as text.
package normalize

import (
	"bytes"
	"database/sql/driver"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

var (
	timeType       = reflect.TypeOf(time.Time{})
	stringerType   = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	marshalerType  = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshaller = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	valuerType     = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// Normalize returns a canonical tree for structured values: maps become
// map[string]any and lists []any at every depth, so the encoded form orders
// keys lexicographically regardless of how the value was built. Scalars are
// returned untouched.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Normalize(child)
		}
		return out
	case json.RawMessage:
		if tree, ok := decodeStructured(string(t)); ok {
			return tree
		}
		return v
	}

	if !IsStructured(v) && !isPlainStruct(v) {
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if tree, ok := decodeStructured(string(raw)); ok {
		return tree
	}
	return v
}

// Encode renders v as canonical JSON (sorted keys, no HTML escaping).
func Encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json emits map[string]any keys in sorted order.
	if err := enc.Encode(Normalize(v)); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Convert prepares a value for comparison and storage. It is idempotent.
func Convert(v any) any {
	if raw, ok := v.(json.RawMessage); ok {
		v = string(raw)
	}
	v = Unwrap(v)
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s, ok := canonicalJSON(t); ok {
			return s
		}
		return t
	case []byte:
		s := string(t)
		if c, ok := canonicalJSON(s); ok {
			return c
		}
		return s
	case time.Time:
		return t
	}
	if IsStructured(v) || isPlainStruct(v) {
		if s, err := Encode(v); err == nil {
			return s
		}
	}
	return v
}

// Unwrap dereferences pointers and reduces enum-like values (named types over
// a primitive kind, driver.Valuer implementations) to their primitive.
func Unwrap(v any) any {
	if v == nil {
		return nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		if out, err := valuer.Value(); err == nil {
			return out
		}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return Unwrap(rv.Elem().Interface())
	}
	if rv.Type().PkgPath() == "" {
		return v
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

// Stringify renders a converted value for the text columns of a revision.
func Stringify(v any, layout string) *string {
	v = Convert(v)
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case bool:
		s = "0"
		if t {
			s = "1"
		}
	case time.Time:
		s = t.Format(layout)
	default:
		out, err := cast.ToStringE(t)
		if err != nil {
			out = fmt.Sprint(t)
		}
		s = out
	}
	return &s
}

// IsStructured reports whether v is a map, slice or array (byte slices excluded).
func IsStructured(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return true
	case reflect.Slice, reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

// IsOpaque reports whether v can neither be serialised nor rendered as text,
// and therefore cannot be diffed or stored.
func IsOpaque(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return true
	}
	if hasTextForm(rv.Type()) {
		return false
	}
	_, err := json.Marshal(v)
	return err != nil
}

func hasTextForm(t reflect.Type) bool {
	return t == timeType ||
		t.Implements(stringerType) ||
		t.Implements(marshalerType) ||
		t.Implements(textMarshaller) ||
		t.Implements(valuerType)
}

func isPlainStruct(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	return t.Kind() == reflect.Struct && !hasTextForm(t)
}

func canonicalJSON(s string) (string, bool) {
	tree, ok := decodeStructured(s)
	if !ok {
		return "", false
	}
	out, err := Encode(tree)
	if err != nil {
		return "", false
	}
	return out, true
}

// decodeStructured decodes s when it holds a JSON object or array.
func decodeStructured(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !gjson.Valid(trimmed) {
		return nil, false
	}
	if res := gjson.Parse(trimmed); !res.IsObject() && !res.IsArray() {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, false
	}
	return Normalize(tree), true
}
