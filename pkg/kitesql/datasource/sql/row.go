package sql

import (
	"bytes"
	"encoding/json"
)

// Row is one decoded result row: an ordered mapping from column name to value.
// Text columns decode to string. When a result repeats a column name, the later column wins
// lookups by name while Values keeps both.
type Row struct {
	columns []string
	values  []any
	index   map[string]int
}

// NewRow builds a Row. values must have one entry per column.
func NewRow(columns []string, values []any) Row {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	return Row{columns: columns, values: values, index: index}
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	i, ok := r.index[column]
	if !ok {
		return nil, false
	}

	return r.values[i], true
}

// Set replaces the value of an existing column. It reports false for unknown columns.
func (r Row) Set(column string, value any) bool {
	i, ok := r.index[column]
	if !ok {
		return false
	}

	r.values[i] = value

	return true
}

// Has reports whether the row has the named column.
func (r Row) Has(column string) bool {
	_, ok := r.index[column]
	return ok
}

// At returns the value at position i.
func (r Row) At(i int) any {
	return r.values[i]
}

func (r Row) Len() int { return len(r.columns) }

// Columns returns the column names in result order.
func (r Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Values returns the values in result order.
func (r Row) Values() []any {
	return append([]any(nil), r.values...)
}

// Map copies the row into a map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for c, i := range r.index {
		m[c] = r.values[i]
	}

	return m
}

// MarshalJSON encodes the row as an object keeping column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	written := 0

	for i, c := range r.columns {
		if r.index[c] != i {
			continue
		}

		if written > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)

		written++
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}
