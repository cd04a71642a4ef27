package revisionable_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mickamy/revisionable"
	"github.com/mickamy/revisionable/store/memory"
)

// record is a host entity that tracks its own dirty attributes.
type record struct {
	typ      string
	key      string
	original revisionable.Fields
	attrs    revisionable.Fields
	forcing  bool
}

func newRecord(typ, key string, attrs ...revisionable.Field) *record {
	r := &record{typ: typ, key: key, attrs: attrs}
	r.sync()
	return r
}

func (r *record) RevisionableType() string { return r.typ }
func (r *record) RevisionableKey() string { return r.key }
func (r *record) Attributes() revisionable.Fields { return r.attrs }
func (r *record) Original() revisionable.Fields { return r.original }
func (r *record) ForceDeleting() bool { return r.forcing }

func (r *record) Dirty() revisionable.Fields {
	var dirty revisionable.Fields
	for _, f := range r.attrs {
		if orig, ok := r.original.Get(f.Key); !ok || !reflect.DeepEqual(orig, f.Value) {
			dirty = append(dirty, f)
		}
	}
	return dirty
}

func (r *record) set(key string, value any) {
	for i, f := range r.attrs {
		if f.Key == key {
			r.attrs[i].Value = value
			return
		}
	}
	r.attrs = append(r.attrs, revisionable.Field{Key: key, Value: value})
}

func (r *record) sync() {
	r.original = append(revisionable.Fields(nil), r.attrs...)
}

type fixture struct {
	h     *revisionable.Handler
	store *memory.Store
	now   time.Time
}

func newFixture(t *testing.T, opts ...revisionable.Option) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		now:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	h, err := revisionable.New(revisionable.Config{
		Process: "proc0001",
		Logger:  zaptest.NewLogger(t),
		Clock:   func() time.Time { return f.now },
	}, f.store, opts...)
	require.NoError(t, err)
	f.h = h
	return f
}

func (f *fixture) register(t *testing.T, typ string, cfg revisionable.ModelConfig) {
	t.Helper()
	require.NoError(t, f.h.Register(typ, cfg))
}

func (f *fixture) track(t *testing.T, r *record) *revisionable.Tracker {
	t.Helper()
	tr, err := f.h.Track(r)
	require.NoError(t, err)
	return tr
}

func (f *fixture) records(t *testing.T, r *record) []revisionable.Record {
	t.Helper()
	recs, err := f.store.ListRevisions(context.Background(), revisionable.Ref{Type: r.typ, ID: r.key})
	require.NoError(t, err)
	return recs
}

// update applies kv pairs and runs one save cycle the way a host would.
func update(ctx context.Context, t *testing.T, tr *revisionable.Tracker, r *record, kv ...any) error {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		r.set(kv[i].(string), kv[i+1])
	}
	tr.BeforeSave(ctx)
	r.sync()
	return tr.AfterUpdate(ctx)
}

func str(s string) *string { return &s }

func field(k string, v any) revisionable.Field {
	return revisionable.Field{Key: k, Value: v}
}

func pairs(recs []revisionable.Record) [][2]any {
	out := make([][2]any, len(recs))
	for i, r := range recs {
		out[i] = [2]any{deref(r.OldValue), deref(r.NewValue)}
	}
	return out
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
