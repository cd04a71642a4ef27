package query

import (
	"strconv"
	"strings"

	"github.com/mickamy/revisionable/internal/ident"
)

// Dialect describes the SQL flavour spoken by a database/sql driver.
type Dialect struct {
	Name  string
	Style ident.Style
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite3", Style: ident.DoubleQuote}
	MySQL    = Dialect{Name: "mysql", Style: ident.Backtick}
	Postgres = Dialect{Name: "postgres", Style: ident.DoubleQuote, Numbered: true}
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return SQLite, true
	case "mysql":
		return MySQL, true
	case "postgres", "postgresql", "pgx":
		return Postgres, true
	default:
		return Dialect{}, false
	}
}

// Rebind rewrites "?" placeholders into the dialect's form.
// Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	inLiteral := false
	for _, r := range q {
		switch {
		case r == '\'':
			inLiteral = !inLiteral
			b.WriteRune(r)
		case r == '?' && !inLiteral:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
