// Package pgstore stores revisions in PostgreSQL through a pgx pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mickamy/revisionable"
	"github.com/mickamy/revisionable/internal/query"
)

// Store is a revisionable.HistoryStore backed by *pgxpool.Pool.
type Store struct {
	pool    *pgxpool.Pool
	builder query.Builder
	logger  *zap.Logger
}

var _ revisionable.HistoryStore = (*Store)(nil)

// PoolConfig tunes the pool created by Connect.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect creates a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: failed to ping database: %w", err)
	}
	return pool, nil
}

// New wraps pool. table defaults to "revisions" and may be schema qualified.
func New(pool *pgxpool.Pool, table string, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: nil pool")
	}
	if table == "" {
		table = "revisions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:    pool,
		builder: query.NewBuilder(query.Postgres, table),
		logger:  logger.Named("pgstore"),
	}, nil
}

// CreateSchema creates the revision table and index when missing.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, stmt := range s.builder.CreateTable() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: failed to create schema: %w", err)
		}
	}
	return nil
}

// InsertRevisions queues one INSERT per record in a batch sent inside a
// single transaction.
func (s *Store) InsertRevisions(ctx context.Context, records []revisionable.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		stmt := s.builder.Insert(1)
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(stmt,
				rec.RevisionableType,
				rec.RevisionableID,
				rec.Sequence,
				nullable(rec.Process),
				rec.Key,
				rec.OldValue,
				rec.NewValue,
				rec.UserID,
				rec.CreatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("pgstore: failed to insert revisions: %w", err)
		}
		return nil
	})
}

func (s *Store) CountRevisions(ctx context.Context, ref revisionable.Ref) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, s.builder.Count(), ref.ID, ref.Type).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgstore: failed to count revisions: %w", err)
	}
	return n, nil
}

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

	rows, err := s.pool.Query(ctx, s.builder.OldestIDs(), ref.ID, ref.Type, excess)
	if err != nil {
		return 0, fmt.Errorf("pgstore: failed to select revisions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("pgstore: failed to scan revision ids: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		if _, err := s.pool.Exec(ctx, s.builder.DeleteByID(), id); err != nil {
			return deleted, fmt.Errorf("pgstore: failed to delete revision %d: %w", id, err)
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

func (s *Store) ListRevisions(ctx context.Context, ref revisionable.Ref) ([]revisionable.Record, error) {
	rows, err := s.pool.Query(ctx, s.builder.List(), ref.ID, ref.Type)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to list revisions: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to scan revisions: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (revisionable.Record, error) {
	var (
		rec     revisionable.Record
		process *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.RevisionableType,
		&rec.RevisionableID,
		&rec.Sequence,
		&process,
		&rec.Key,
		&rec.OldValue,
		&rec.NewValue,
		&rec.UserID,
		&rec.CreatedAt,
	)
	if process != nil {
		rec.Process = *process
	}
	return rec, err
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if err := tx.Rollback(ctx); err != nil {
				s.logger.Error("failed to rollback transaction", zap.Error(err))
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("pgstore: transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: failed to commit transaction: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
