package query_test

import (
	"strings"
	"testing"

	"github.com/mickamy/revisionable/internal/query"
)

func TestDialectFor(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		driver string
		want   string
		ok     bool
	}{
		{driver: "sqlite3", want: "sqlite3", ok: true},
		{driver: "sqlite", want: "sqlite3", ok: true},
		{driver: "MySQL", want: "mysql", ok: true},
		{driver: "pgx", want: "postgres", ok: true},
		{driver: "postgres", want: "postgres", ok: true},
		{driver: "oracle", ok: false},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.driver, func(t *testing.T) {
			t.Parallel()
			got, ok := query.DialectFor(tc.driver)
			if ok != tc.ok {
				t.Fatalf("DialectFor(%q) ok = %t, want %t", tc.driver, ok, tc.ok)
			}
			if got.Name != tc.want {
				t.Fatalf("DialectFor(%q) = %q, want %q", tc.driver, got.Name, tc.want)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name    string
		dialect query.Dialect
		in      string
		want    string
	}{
		{name: "sqlite untouched", dialect: query.SQLite, in: "a = ? AND b = ?", want: "a = ? AND b = ?"},
		{name: "postgres numbered", dialect: query.Postgres, in: "a = ? AND b = ?", want: "a = $1 AND b = $2"},
		{name: "literal question mark", dialect: query.Postgres, in: "a = '?' AND b = ?", want: "a = '?' AND b = $1"},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.dialect.Rebind(tc.in); got != tc.want {
				t.Fatalf("Rebind(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestBuilderInsert(t *testing.T) {
	t.Parallel()

	b := query.NewBuilder(query.Postgres, "audit.revisions")
	got := b.Insert(2)

	if !strings.HasPrefix(got, `INSERT INTO "audit"."revisions" ("revisionable_type", "revisionable_id", "sequence", "process", "key",`) {
		t.Fatalf("Insert(2) = %q", got)
	}
	if !strings.Contains(got, "$18)") {
		t.Fatalf("Insert(2) should number 18 placeholders: %q", got)
	}
	if strings.Contains(got, "$19") {
		t.Fatalf("Insert(2) has too many placeholders: %q", got)
	}
}

func TestBuilderMySQLQuoting(t *testing.T) {
	t.Parallel()

	b := query.NewBuilder(query.MySQL, "revisions")

	if got, want := b.Count(), "SELECT COUNT(*) FROM `revisions` WHERE `revisionable_id` = ? AND `revisionable_type` = ?"; got != want {
		t.Fatalf("Count() = %q, want %q", got, want)
	}
	if got, want := b.DeleteByID(), "DELETE FROM `revisions` WHERE `id` = ?"; got != want {
		t.Fatalf("DeleteByID() = %q, want %q", got, want)
	}
	ddl := b.CreateTable()
	if len(ddl) != 1 || !strings.Contains(ddl[0], "INDEX `idx_revisions_revisionable` (`revisionable_id`, `revisionable_type`)") {
		t.Fatalf("CreateTable() = %#v", ddl)
	}
}

func TestBuilderOldestIDs(t *testing.T) {
	t.Parallel()

	b := query.NewBuilder(query.SQLite, "revisions")
	want := `SELECT "id" FROM "revisions" WHERE "revisionable_id" = ? AND "revisionable_type" = ? ORDER BY "id" ASC LIMIT ?`
	if got := b.OldestIDs(); got != want {
		t.Fatalf("OldestIDs() = %q, want %q", got, want)
	}

	ddl := b.CreateTable()
	if len(ddl) != 2 {
		t.Fatalf("CreateTable() returned %d statements, want 2", len(ddl))
	}
	if !strings.Contains(ddl[1], `CREATE INDEX IF NOT EXISTS "idx_revisions_revisionable" ON "revisions" ("revisionable_id", "revisionable_type")`) {
		t.Fatalf("index DDL = %q", ddl[1])
	}
}
