package ident

import (
	"strings"
)

// Style selects how identifiers are quoted for a SQL dialect.
type Style int

const (
	// DoubleQuote is the ANSI style used by PostgreSQL and SQLite.
	DoubleQuote Style = iota
	// Backtick is the MySQL style.
	Backtick
)

// SplitQualified splits a potentially schema-qualified identifier into its parts.
// Both "double" and `backtick` quoted parts are recognised.
func SplitQualified(ident string) []string {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return nil
	}
	var parts []string
	var buf strings.Builder
	var quote rune
	runes := []rune(ident)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '`':
			if quote == 0 {
				quote = r
				continue
			}
			if r != quote {
				buf.WriteRune(r)
				continue
			}
			if i+1 < len(runes) && runes[i+1] == quote {
				buf.WriteRune(r)
				i++
				continue
			}
			quote = 0
		case r == '.' && quote == 0:
			parts = append(parts, strings.TrimSpace(buf.String()))
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	parts = append(parts, strings.TrimSpace(buf.String()))
	return parts
}

// Quote safely quotes a single identifier part.
func Quote(part string, style Style) string {
	if style == Backtick {
		return "`" + strings.ReplaceAll(part, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
}

// QuoteQualified renders qualified identifier parts as a SQL identifier.
func QuoteQualified(parts []string, style Style) string {
	if len(parts) == 0 {
		return ""
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = Quote(p, style)
	}
	return strings.Join(quoted, ".")
}

// Qualified splits and re-quotes ident in the given style.
func Qualified(ident string, style Style) string {
	return QuoteQualified(SplitQualified(ident), style)
}

// BaseTableName returns the last segment of a qualified identifier.
func BaseTableName(ident string) string {
	parts := SplitQualified(ident)
	if len(parts) == 0 {
		return strings.TrimSpace(ident)
	}
	return parts[len(parts)-1]
}

// IndexName derives an unquoted index name for table, e.g. idx_revisions_revisionable.
func IndexName(table, suffix string) string {
	base := strings.ReplaceAll(BaseTableName(table), " ", "_")
	return "idx_" + base + "_" + suffix
}
