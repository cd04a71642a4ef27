package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mickamy/revisionable"
	"github.com/mickamy/revisionable/store/sqlstore"
)

var dbSeq atomic.Int64

func openStore(t *testing.T, opts ...sqlstore.Option) *sqlstore.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:revisions_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	opts = append([]sqlstore.Option{sqlstore.WithLogger(zaptest.NewLogger(t))}, opts...)
	s, err := sqlstore.New(db, "sqlite3", opts...)
	require.NoError(t, err)
	require.NoError(t, s.CreateSchema(context.Background()))
	return s
}

func str(s string) *string { return &s }

func records(ref revisionable.Ref, n int, at time.Time) []revisionable.Record {
	out := make([]revisionable.Record, n)
	for i := range out {
		out[i] = revisionable.Record{
			RevisionableType: ref.Type,
			RevisionableID:   ref.ID,
			Sequence:         int64(i + 1),
			Process:          "abcd1234",
			Key:              "name",
			OldValue:         str(fmt.Sprintf("v%d", i)),
			NewValue:         str(fmt.Sprintf("v%d", i+1)),
			CreatedAt:        at,
		}
	}
	return out
}

func TestStore_InsertAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)
	ref := revisionable.Ref{Type: "users", ID: "1"}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	recs := records(ref, 2, at)
	recs[1].OldValue = nil
	recs[1].UserID = str("42")
	require.NoError(t, s.InsertRevisions(ctx, recs))
	require.NoError(t, s.InsertRevisions(ctx, records(revisionable.Ref{Type: "users", ID: "2"}, 1, at)))

	got, err := s.ListRevisions(ctx, ref)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "users", got[0].RevisionableType)
	assert.Equal(t, "1", got[0].RevisionableID)
	assert.Equal(t, "abcd1234", got[0].Process)
	assert.Equal(t, "v0", *got[0].OldValue)
	assert.Nil(t, got[0].UserID)
	assert.True(t, got[0].CreatedAt.Equal(at))

	assert.Nil(t, got[1].OldValue)
	require.NotNil(t, got[1].UserID)
	assert.Equal(t, "42", *got[1].UserID)
	assert.Less(t, got[0].ID, got[1].ID)

	n, err := s.CountRevisions(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_InsertChunks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)
	ref := revisionable.Ref{Type: "users", ID: "1"}

	require.NoError(t, s.InsertRevisions(ctx, records(ref, 250, time.Now())))
	n, err := s.CountRevisions(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
}

func TestStore_DeleteOldestRevisions(t *testing.T) {
	t.Parallel()

	ref := revisionable.Ref{Type: "users", ID: "1"}

	tcs := []struct {
		name        string
		count       int
		keep        int
		limit       int
		wantDeleted int
		wantFirst   int64
	}{
		{name: "no-op below keep", count: 3, keep: 4, limit: 1000, wantDeleted: 0, wantFirst: 1},
		{name: "keeps newest", count: 6, keep: 4, limit: 1000, wantDeleted: 2, wantFirst: 3},
		{name: "bounded by batch", count: 6, keep: 0, limit: 4, wantDeleted: 4, wantFirst: 5},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := openStore(t)
			require.NoError(t, s.InsertRevisions(ctx, records(ref, tc.count, time.Now())))

			n, err := s.DeleteOldestRevisions(ctx, ref, tc.keep, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, tc.wantDeleted, n)

			got, err := s.ListRevisions(ctx, ref)
			require.NoError(t, err)
			require.NotEmpty(t, got)
			assert.Equal(t, tc.wantFirst, got[0].Sequence)
		})
	}
}

func TestStore_DeleteHook(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ref := revisionable.Ref{Type: "users", ID: "1"}
	var seen []int64
	s := openStore(t, sqlstore.WithDeleteHook(func(_ context.Context, id int64) error {
		if len(seen) == 2 {
			return errors.New("stop")
		}
		seen = append(seen, id)
		return nil
	}))
	require.NoError(t, s.InsertRevisions(ctx, records(ref, 5, time.Now())))

	n, err := s.DeleteOldestRevisions(ctx, ref, 0, 1000)
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, seen)

	count, err := s.CountRevisions(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = sqlstore.New(db, "oracle")
	assert.Error(t, err)
}

func TestDriverName(t *testing.T) {
	t.Parallel()

	tcs := map[string]string{
		"postgres":   "pgx",
		"postgresql": "pgx",
		"sqlite":     "sqlite3",
		"mysql":      "mysql",
	}
	for in, want := range tcs {
		assert.Equal(t, want, sqlstore.DriverName(in), in)
	}
}
