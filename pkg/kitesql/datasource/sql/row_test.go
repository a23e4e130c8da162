package sql

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestRow_Access(t *testing.T) {
	r := NewRow([]string{"id", "name"}, []any{int64(1), "kite"})

	v, ok := r.Get("name")
	require.True(t, ok)
	assert.Equal(t, "kite", v)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.True(t, r.Has("id"))
	assert.Equal(t, int64(1), r.At(0))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"id", "name"}, r.Columns())
	assert.Equal(t, []any{int64(1), "kite"}, r.Values())
	assert.Equal(t, map[string]any{"id": int64(1), "name": "kite"}, r.Map())

	assert.True(t, r.Set("name", "sql"))
	assert.False(t, r.Set("missing", 1))
	assert.Equal(t, "sql", r.At(1))
}

func TestRow_DuplicateColumns(t *testing.T) {
	r := NewRow([]string{"id", "id"}, []any{1, 2})

	v, _ := r.Get("id")
	assert.Equal(t, 2, v)
	assert.Equal(t, []any{1, 2}, r.Values())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2}`, string(b))
}

func TestRow_MarshalJSONKeepsColumnOrder(t *testing.T) {
	r := NewRow([]string{"z", "a", "m"}, []any{"last", nil, 1.5})

	b, err := json.Marshal(r)

	require.NoError(t, err)
	assert.Equal(t, `{"z":"last","a":null,"m":1.5}`, string(b))

	b, err = json.Marshal(NewRow(nil, nil))

	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}

func TestFormatFields_NormalizesText(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String("caf\u00e9")
	require.NoError(t, err)

	decomposed := "cafe\u0301"

	f := FormatFields("a", "b", "n")
	require.NoError(t, f.checkColumns([]string{"a", "b", "n", "other"}))

	out, keep := f.apply(NewRow([]string{"a", "b", "n", "other"}, []any{latin1, decomposed, int64(3), decomposed}))
	require.True(t, keep)

	r := out.(Row)
	assert.Equal(t, "caf\u00e9", r.At(0))
	assert.Equal(t, "caf\u00e9", r.At(1))
	assert.Equal(t, int64(3), r.At(2))
	assert.Equal(t, decomposed, r.At(3))
}

func TestFormatFields_UnknownColumn(t *testing.T) {
	err := FormatFields("missing").checkColumns([]string{"id"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestFormatter_Defaults(t *testing.T) {
	r := NewRow([]string{"id"}, []any{1})

	for _, f := range []RowFormatter{{}, NoFormat(), FormatFields(), Transform(nil)} {
		require.NoError(t, f.checkColumns([]string{"x"}))

		out, keep := f.apply(r)
		assert.True(t, keep)
		assert.Equal(t, r, out)
	}
}

func TestTransform(t *testing.T) {
	f := Transform(func(r Row) (any, bool) {
		id, _ := r.Get("id")
		return id, id != 2
	})

	out, keep := f.apply(NewRow([]string{"id"}, []any{1}))
	assert.True(t, keep)
	assert.Equal(t, 1, out)

	_, keep = f.apply(NewRow([]string{"id"}, []any{2}))
	assert.False(t, keep)
}
