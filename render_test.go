package revisionable_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mickamy/revisionable"
	"github.com/mickamy/revisionable/store/memory"
)

type team struct{ name string }

func (t *team) IdentifiableName() string { return t.name }

func teams(known map[string]string) revisionable.FindFunc {
	return func(_ context.Context, id string) (revisionable.Related, error) {
		if id == "boom" {
			return nil, errors.New("connection refused")
		}
		if id == "panic" {
			panic("driver crashed")
		}
		name, ok := known[id]
		if !ok {
			return nil, nil
		}
		return &team{name: name}, nil
	}
}

func renderFixture(t *testing.T) *revisionable.Renderer {
	t.Helper()
	f := newFixture(t)
	f.register(t, "users", revisionable.ModelConfig{
		FormattedFields: map[string]string{
			"active":    "boolean:No|Yes",
			"status":    "options:a.Active|i.Inactive",
			"born_at":   "datetime:d/m/Y",
			"minimum":   "string:Min: %s",
			"broken":    "nocolon",
			"team_id":   "string:Team %s",
			"nickname":  "isEmpty:Unset|Set",
			"weird":     "shout:loud",
			"mentor_id": "string:%s",
		},
		FormattedFieldNames: map[string]string{"email": "E-mail address"},
		NullString:          "nobody",
		Mutators: map[string]revisionable.Mutator{
			"name":      func(v any) any { return strings.ToUpper(v.(string)) },
			"mentor_id": func(v any) any { return "Dr. " + v.(string) },
		},
		Relations: map[string]revisionable.RelatedSource{
			"team":            revisionable.Relation{Find: teams(map[string]string{"1": "Avengers"}), Unknown: "lost team"},
			"mentor":          revisionable.Relation{Find: teams(map[string]string{"9": "Strange"})},
			"publishedStatus": revisionable.Relation{Find: teams(map[string]string{"2": "Published"}), Null: "draft"},
		},
	})
	return f.h.Renderer()
}

func rec(key string, oldValue, newValue *string) revisionable.Record {
	return revisionable.Record{RevisionableType: "users", RevisionableID: "1", Key: key, OldValue: oldValue, NewValue: newValue}
}

func TestRenderer_FieldName(t *testing.T) {
	t.Parallel()

	r := renderFixture(t)
	tcs := map[string]string{
		"email":   "E-mail address",
		"team_id": "team",
		"name":    "name",
		"_id":     "_id",
	}
	for key, want := range tcs {
		assert.Equal(t, want, r.FieldName(rec(key, nil, nil)), key)
	}
}

func TestRenderer_Values(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := renderFixture(t)

	tcs := []struct {
		name string
		key  string
		raw  *string
		want string
	}{
		{name: "boolean", key: "active", raw: str("1"), want: "Yes"},
		{name: "boolean false", key: "active", raw: str("0"), want: "No"},
		{name: "options", key: "status", raw: str("i"), want: "Inactive"},
		{name: "options unmatched", key: "status", raw: str("z"), want: "undefined"},
		{name: "datetime", key: "born_at", raw: str("2001-08-10 00:00:00"), want: "10/08/2001"},
		{name: "string template", key: "minimum", raw: str("5"), want: "Min: 5"},
		{name: "isEmpty", key: "nickname", raw: str(""), want: "Unset"},
		{name: "malformed format", key: "broken", raw: str("raw"), want: "raw"},
		{name: "unknown method", key: "weird", raw: str("raw"), want: "raw"},
		{name: "unformatted", key: "email", raw: str("a@b.c"), want: "a@b.c"},
		{name: "nil unformatted", key: "email", raw: nil, want: ""},
		{name: "mutator", key: "name", raw: str("peter"), want: "PETER"},
		{name: "related found", key: "team_id", raw: str("1"), want: "Team Avengers"},
		{name: "related missing row", key: "team_id", raw: str("7"), want: "Team lost team"},
		{name: "related null", key: "team_id", raw: nil, want: "nobody"},
		{name: "related empty", key: "team_id", raw: str(""), want: "nobody"},
		{name: "related lookup error", key: "team_id", raw: str("boom"), want: "Team boom"},
		{name: "related lookup panic", key: "team_id", raw: str("panic"), want: "Team panic"},
		{name: "related with mutator", key: "mentor_id", raw: str("9"), want: "Dr. Strange"},
		{name: "related unknown default", key: "mentor_id", raw: str("8"), want: "unknown"},
		{name: "camel case relation", key: "published_status_id", raw: str("2"), want: "Published"},
		{name: "relation null override", key: "published_status_id", raw: nil, want: "draft"},
		{name: "no such relation", key: "owner_id", raw: str("3"), want: "3"},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, r.NewValue(ctx, rec(tc.key, nil, tc.raw)))
			assert.Equal(t, tc.want, r.OldValue(ctx, rec(tc.key, tc.raw, nil)))
		})
	}
}

func TestRenderer_UnregisteredType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := f.h.Renderer()
	ghost := revisionable.Record{RevisionableType: "ghosts", Key: "owner_id", NewValue: str("3")}
	assert.Equal(t, "owner", r.FieldName(ghost))
	assert.Equal(t, "3", r.NewValue(context.Background(), ghost))
}

func TestRenderer_HistoryOf(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "users", revisionable.ModelConfig{
		FormattedFields: map[string]string{"active": "boolean:Off|On"},
	})
	u := newRecord("users", "1", field("active", false), field("name", "Peter"))
	tr := f.track(t, u)
	require.NoError(t, update(ctx, t, tr, u, "active", true))
	require.NoError(t, update(ctx, t, tr, u, "name", "Spiderman"))

	lines, err := f.h.Renderer().HistoryOf(ctx, revisionable.Ref{Type: "users", ID: "1"})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "active", lines[0].Field)
	assert.Equal(t, "Off", lines[0].OldValue)
	assert.Equal(t, "On", lines[0].NewValue)
	assert.Equal(t, "Spiderman", lines[1].NewValue)
}

func TestRenderer_CustomTimeLayout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	h, err := revisionable.New(revisionable.Config{
		TimeLayout: "02.01.2006 15:04",
		Logger:     zaptest.NewLogger(t),
	}, store)
	require.NoError(t, err)
	require.NoError(t, h.Register("users", revisionable.ModelConfig{
		FormattedFields: map[string]string{"born_at": "datetime:Y-m-d"},
	}))

	born := time.Date(1990, 7, 14, 9, 30, 0, 0, time.UTC)
	u := newRecord("users", "1", field("born_at", born))
	tr, err := h.Track(u)
	require.NoError(t, err)
	require.NoError(t, update(ctx, t, tr, u, "born_at", born.AddDate(0, 0, 1)))

	lines, err := h.Renderer().HistoryOf(ctx, revisionable.Ref{Type: "users", ID: "1"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "14.07.1990 09:30", *lines[0].Record.OldValue)
	assert.Equal(t, "1990-07-14", lines[0].OldValue)
	assert.Equal(t, "1990-07-15", lines[0].NewValue)
}
