// Package migrations ships the versioned revision table schema and runs it
// with golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/mickamy/revisionable/internal/ident"
	"github.com/mickamy/revisionable/internal/query"
)

// DefaultTable is the revision table created when none is configured.
const DefaultTable = "revisions"

//go:embed sql
var files embed.FS

// Source returns the migration files of a dialect (sqlite3, mysql, postgres)
// rendered for table. An empty table means DefaultTable.
func Source(dialect, table string) (fs.FS, error) {
	d, dir, err := dirFor(dialect)
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(files, "sql/"+dir)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = DefaultTable
	}
	return newTableFS(sub, ident.Qualified(table, d.Style), ident.Quote(ident.IndexName(table, "revisionable"), d.Style)), nil
}

func dirFor(dialect string) (query.Dialect, string, error) {
	d, ok := query.DialectFor(dialect)
	if !ok {
		return query.Dialect{}, "", fmt.Errorf("migrations: unsupported database driver: %s", dialect)
	}
	return d, d.Name, nil
}

// Migrator applies the embedded migrations to a database.
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewMigrator prepares a migrator creating table in db speaking dialect.
func NewMigrator(db *sql.DB, dialect, table string, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	_, dir, err := dirFor(dialect)
	if err != nil {
		return nil, err
	}
	fsys, err := Source(dialect, table)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to open source: %w", err)
	}

	var driver database.Driver
	switch dir {
	case "sqlite3":
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case "mysql":
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	case "postgres":
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to create %s driver: %w", dir, err)
	}

	instance, err := migrate.NewWithInstance("iofs", src, dir, driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to create migrator instance: %w", err)
	}
	return &Migrator{migrate: instance, logger: logger.Named("migrations")}, nil
}

// Up applies pending migrations. It returns when done or when ctx ends.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", func() error {
		if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	})
}

// Down rolls back the last steps migrations.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return m.run(ctx, "down", func() error {
		return m.migrate.Steps(-steps)
	})
}

// Version returns the applied version and whether it is dirty.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (m *Migrator) run(ctx context.Context, name string, fn func() error) error {
	m.logger.Info("running migrations", zap.String("direction", name))
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	select {
	case <-ctx.Done():
		m.logger.Warn("migration cancelled by context")
		m.migrate.GracefulStop <- true
		return fmt.Errorf("migrations: cancelled: %w", ctx.Err())
	case err := <-errCh:
		if err != nil {
			m.logger.Error("migration failed", zap.Error(err))
			return fmt.Errorf("migrations: %s failed: %w", name, err)
		}
		m.logger.Info("migrations completed", zap.String("direction", name))
		return nil
	}
}
