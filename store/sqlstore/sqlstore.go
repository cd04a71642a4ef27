// Package sqlstore stores revisions in a relational database through
// database/sql. SQLite, MySQL and PostgreSQL (pgx) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mickamy/revisionable"
	"github.com/mickamy/revisionable/internal/query"
)

// DefaultTable is the revision table name.
const DefaultTable = "revisions"

// insertChunk bounds the rows of one INSERT so placeholder counts stay
// below every supported driver's limit.
const insertChunk = 100

// DeleteHook runs inside the cleanup for every revision about to be deleted.
// A returned error aborts the cleanup.
type DeleteHook func(ctx context.Context, id int64) error

// Store is a revisionable.HistoryStore over *sql.DB.
type Store struct {
	db       *sql.DB
	builder  query.Builder
	logger   *zap.Logger
	onDelete DeleteHook
}

var _ revisionable.HistoryStore = (*Store)(nil)

type options struct {
	table    string
	logger   *zap.Logger
	onDelete DeleteHook
}

// Option configures a Store.
type Option func(*options)

// WithTable overrides the revision table, optionally schema qualified.
func WithTable(table string) Option {
	return func(o *options) {
		if t := strings.TrimSpace(table); t != "" {
			o.table = t
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDeleteHook registers a hook run for each row removed by retention.
func WithDeleteHook(h DeleteHook) Option {
	return func(o *options) {
		o.onDelete = h
	}
}

// New wraps db. driver selects the SQL dialect: sqlite3, mysql or postgres.
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	dialect, ok := query.DialectFor(driver)
	if !ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	o := options{table: DefaultTable, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		db:       db,
		builder:  query.NewBuilder(dialect, o.table),
		logger:   o.logger.Named("sqlstore"),
		onDelete: o.onDelete,
	}, nil
}

// Open opens a database for driver and dsn and wraps it.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(DriverName(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to open database: %w", err)
	}
	s, err := New(db, driver, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DriverName maps a dialect name to the registered database/sql driver.
func DriverName(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return "pgx"
	case "sqlite", "sqlite3":
		return "sqlite3"
	}
	return driver
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateSchema creates the revision table and its lookup index when missing.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, stmt := range s.builder.CreateTable() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertRevisions(ctx context.Context, records []revisionable.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(records); start += insertChunk {
			end := min(start+insertChunk, len(records))
			chunk := records[start:end]
			args := make([]any, 0, len(chunk)*len(query.Columns))
			for _, rec := range chunk {
				args = append(args, recordArgs(rec)...)
			}
			if _, err := tx.ExecContext(ctx, s.builder.Insert(len(chunk)), args...); err != nil {
				return fmt.Errorf("sqlstore: failed to insert revisions: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) CountRevisions(ctx context.Context, ref revisionable.Ref) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.builder.Count(), ref.ID, ref.Type).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: failed to count revisions: %w", err)
	}
	return n, nil
}

// DeleteOldestRevisions removes the oldest rows one statement at a time so
// the delete hook sees each of them.
func (s *Store) DeleteOldestRevisions(ctx context.Context, ref revisionable.Ref, keep, limit int) (int, error) {
	count, err := s.CountRevisions(ctx, ref)
	if err != nil {
		return 0, err
	}
	excess := count - keep
	if excess <= 0 {
		return 0, nil
	}
	if limit > 0 && excess > limit {
		excess = limit
	}

	ids, err := s.oldestIDs(ctx, ref, excess)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if s.onDelete != nil {
			if err := s.onDelete(ctx, id); err != nil {
				return deleted, fmt.Errorf("sqlstore: delete hook failed for revision %d: %w", id, err)
			}
		}
		if _, err := s.db.ExecContext(ctx, s.builder.DeleteByID(), id); err != nil {
			return deleted, fmt.Errorf("sqlstore: failed to delete revision %d: %w", id, err)
		}
		deleted++
	}
	s.logger.Debug("revisions pruned",
		zap.String("type", ref.Type),
		zap.String("id", ref.ID),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}

func (s *Store) oldestIDs(ctx context.Context, ref revisionable.Ref, n int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.builder.OldestIDs(), ref.ID, ref.Type, n)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to select revisions: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	ids := make([]int64, 0, n)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlstore: failed to scan revision id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListRevisions(ctx context.Context, ref revisionable.Ref) ([]revisionable.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.builder.List(), ref.ID, ref.Type)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to list revisions: %w", err)
	}
	return scanRecords(rows)
}

func (s *Store) withTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return fmt.Errorf("sqlstore: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlstore: rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

func recordArgs(rec revisionable.Record) []any {
	return []any{
		rec.RevisionableType,
		rec.RevisionableID,
		rec.Sequence,
		sql.NullString{String: rec.Process, Valid: rec.Process != ""},
		rec.Key,
		nullable(rec.OldValue),
		nullable(rec.NewValue),
		nullable(rec.UserID),
		rec.CreatedAt.UTC(),
	}
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
