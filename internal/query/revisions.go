package query

import (
	"fmt"
	"strings"

	"github.com/mickamy/revisionable/internal/ident"
)

// Columns lists the writable revision columns in insert order.
var Columns = []string{
	"revisionable_type",
	"revisionable_id",
	"sequence",
	"process",
	"key",
	"old_value",
	"new_value",
	"user_id",
	"created_at",
}

// Builder renders the statements used by the SQL revision stores.
type Builder struct {
	dialect Dialect
	table   string
}

// NewBuilder returns a Builder for the (possibly schema-qualified) table.
func NewBuilder(d Dialect, table string) Builder {
	return Builder{dialect: d, table: table}
}

func (b Builder) Dialect() Dialect { return b.dialect }

func (b Builder) quotedTable() string {
	return ident.Qualified(b.table, b.dialect.Style)
}

func (b Builder) col(name string) string {
	return ident.Quote(name, b.dialect.Style)
}

func (b Builder) cols(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = b.col(n)
	}
	return strings.Join(quoted, ", ")
}

// Insert renders a multi-row INSERT for rows records.
func (b Builder) Insert(rows int) string {
	if rows < 1 {
		rows = 1
	}
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(Columns)), ", ") + ")"
	values := make([]string, rows)
	for i := range values {
		values[i] = row
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		b.quotedTable(), b.cols(Columns), strings.Join(values, ", "))
	return b.dialect.Rebind(q)
}

// Count renders the per-entity revision count.
func (b Builder) Count() string {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND %s = ?",
		b.quotedTable(), b.col("revisionable_id"), b.col("revisionable_type"))
	return b.dialect.Rebind(q)
}

// OldestIDs selects ids of an entity's revisions in insertion order.
// Arguments: id, type, limit.
func (b Builder) OldestIDs() string {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ? ORDER BY %s ASC LIMIT ?",
		b.col("id"), b.quotedTable(), b.col("revisionable_id"), b.col("revisionable_type"), b.col("id"))
	return b.dialect.Rebind(q)
}

// DeleteByID removes a single revision row.
func (b Builder) DeleteByID() string {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", b.quotedTable(), b.col("id"))
	return b.dialect.Rebind(q)
}

// List selects every revision of an entity in insertion order.
func (b Builder) List() string {
	q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ? AND %s = ? ORDER BY %s ASC",
		b.col("id"), b.cols(Columns), b.quotedTable(),
		b.col("revisionable_id"), b.col("revisionable_type"), b.col("id"))
	return b.dialect.Rebind(q)
}

// CreateTable renders the DDL for the revision table and its lookup index.
func (b Builder) CreateTable() []string {
	table := b.quotedTable()
	index := ident.Quote(ident.IndexName(b.table, "revisionable"), b.dialect.Style)
	lookup := b.cols([]string{"revisionable_id", "revisionable_type"})

	switch b.dialect.Name {
	case MySQL.Name:
		return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	%s VARCHAR(255) NOT NULL,
	%s VARCHAR(255) NOT NULL,
	%s BIGINT NOT NULL,
	%s CHAR(8) NULL,
	%s VARCHAR(255) NOT NULL,
	%s TEXT NULL,
	%s TEXT NULL,
	%s VARCHAR(255) NULL,
	%s TIMESTAMP(6) NOT NULL,
	INDEX %s (%s)
)`, table, b.col("id"), b.col("revisionable_type"), b.col("revisionable_id"), b.col("sequence"),
			b.col("process"), b.col("key"), b.col("old_value"), b.col("new_value"), b.col("user_id"),
			b.col("created_at"), index, lookup)}
	case Postgres.Name:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s BIGSERIAL PRIMARY KEY,
	%s VARCHAR(255) NOT NULL,
	%s VARCHAR(255) NOT NULL,
	%s BIGINT NOT NULL,
	%s CHAR(8),
	%s VARCHAR(255) NOT NULL,
	%s TEXT,
	%s TEXT,
	%s VARCHAR(255),
	%s TIMESTAMPTZ NOT NULL
)`, table, b.col("id"), b.col("revisionable_type"), b.col("revisionable_id"), b.col("sequence"),
				b.col("process"), b.col("key"), b.col("old_value"), b.col("new_value"), b.col("user_id"),
				b.col("created_at")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", index, table, lookup),
		}
	default:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s INTEGER PRIMARY KEY AUTOINCREMENT,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s INTEGER NOT NULL,
	%s CHAR(8),
	%s TEXT NOT NULL,
	%s TEXT,
	%s TEXT,
	%s TEXT,
	%s TIMESTAMP NOT NULL
)`, table, b.col("id"), b.col("revisionable_type"), b.col("revisionable_id"), b.col("sequence"),
				b.col("process"), b.col("key"), b.col("old_value"), b.col("new_value"), b.col("user_id"),
				b.col("created_at")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", index, table, lookup),
		}
	}
}
