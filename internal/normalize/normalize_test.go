package normalize_test

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/revisionable/internal/normalize"
)

type status string

type level int

type settings struct {
	Theme  string         `json:"theme"`
	Limits map[string]int `json:"limits"`
}

type withFunc struct {
	Callback func() `json:"callback"`
}

func TestConvert(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tcs := []struct {
		name string
		in   any
		want any
	}{
		{name: "nil", in: nil, want: nil},
		{name: "plain string", in: "Peter", want: "Peter"},
		{name: "scalar json string stays", in: "42", want: "42"},
		{name: "json object re-encoded", in: `{ "b": 1,  "a": {"d": 2, "c": 3} }`, want: `{"a":{"c":3,"d":2},"b":1}`},
		{name: "json array re-encoded", in: `[ 3, {"z":1,"y":2} ]`, want: `[3,{"y":2,"z":1}]`},
		{name: "json bytes", in: []byte(`{"b":true,"a":null}`), want: `{"a":null,"b":true}`},
		{name: "raw message", in: json.RawMessage(`{"b":1,"a":2}`), want: `{"a":2,"b":1}`},
		{name: "map encoded", in: map[string]any{"b": 1, "a": []any{"x", "y"}}, want: `{"a":["x","y"],"b":1}`},
		{name: "slice encoded", in: []string{"A", "B"}, want: `["A","B"]`},
		{name: "struct encoded", in: settings{Theme: "dark", Limits: map[string]int{"b": 2, "a": 1}}, want: `{"limits":{"a":1,"b":2},"theme":"dark"}`},
		{name: "enum string", in: status("active"), want: "active"},
		{name: "enum int", in: level(3), want: int64(3)},
		{name: "valuer", in: sql.NullString{String: "x", Valid: true}, want: "x"},
		{name: "null valuer", in: sql.NullString{}, want: nil},
		{name: "int passes", in: 7, want: 7},
		{name: "time passes", in: ts, want: ts},
		{name: "html not escaped", in: `{"a":"<b>"}`, want: `{"a":"<b>"}`},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, normalize.Convert(tc.in))
		})
	}
}

func TestConvertIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []any{
		nil,
		"text",
		`{"b":{"d":[1,2,{"f":1,"e":2}],"c":1},"a":2}`,
		map[string]any{"z": map[string]any{"y": 1, "x": 2}},
		[]any{1, "two", 3.5},
		status("draft"),
		12,
	}
	for _, in := range inputs {
		once := normalize.Convert(in)
		assert.Equal(t, once, normalize.Convert(once), "input %#v", in)
	}
}

func TestConvertIsOrderInsensitive(t *testing.T) {
	t.Parallel()

	forward := normalize.Convert(`{"b":1,"a":2}`)
	backward := normalize.Convert(`{"a":2,"b":1}`)
	built := normalize.Convert(map[string]any{"a": 2, "b": 1})

	assert.Equal(t, forward, backward)
	assert.Equal(t, forward, built)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got := normalize.Normalize(map[string]int{"b": 1, "a": 2})
	tree, ok := got.(map[string]any)
	require.True(t, ok, "expected map tree, got %T", got)
	assert.Equal(t, json.Number("2"), tree["a"])

	assert.Equal(t, "scalar", normalize.Normalize("scalar"))
	assert.Equal(t, 4, normalize.Normalize(4))

	encoded, err := normalize.Encode(map[string]any{"outer": map[string]any{"b": 1, "a": 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"outer":{"a":1,"b":1}}`, encoded)
}

func TestStringify(t *testing.T) {
	t.Parallel()

	layout := "2006-01-02 15:04:05"
	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	assert.Nil(t, normalize.Stringify(nil, layout))
	assert.Equal(t, "1", *normalize.Stringify(true, layout))
	assert.Equal(t, "0", *normalize.Stringify(false, layout))
	assert.Equal(t, "2024-05-01 10:30:00", *normalize.Stringify(ts, layout))
	assert.Equal(t, "2024-05-01 10:30:00", *normalize.Stringify(&ts, layout))
	assert.Equal(t, "12", *normalize.Stringify(12, layout))
	assert.Equal(t, "1.5", *normalize.Stringify(1.5, layout))
	assert.Equal(t, `{"a":1}`, *normalize.Stringify(map[string]int{"a": 1}, layout))

	var nilPtr *string
	assert.Nil(t, normalize.Stringify(nilPtr, layout))
}

func TestIsOpaque(t *testing.T) {
	t.Parallel()

	assert.True(t, normalize.IsOpaque(func() {}))
	assert.True(t, normalize.IsOpaque(make(chan int)))
	assert.True(t, normalize.IsOpaque(withFunc{Callback: func() {}}))
	assert.False(t, normalize.IsOpaque(time.Now()))
	assert.False(t, normalize.IsOpaque(settings{}))
	assert.False(t, normalize.IsOpaque("text"))
	assert.False(t, normalize.IsOpaque(nil))
}

func TestIsStructured(t *testing.T) {
	t.Parallel()

	assert.True(t, normalize.IsStructured(map[string]any{}))
	assert.True(t, normalize.IsStructured([]int{1}))
	assert.False(t, normalize.IsStructured([]byte("x")))
	assert.False(t, normalize.IsStructured("x"))
	assert.False(t, normalize.IsStructured(nil))
}
