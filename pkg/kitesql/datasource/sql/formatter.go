package sql

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

type formatKind int

const (
	formatNone formatKind = iota
	formatFields
	formatTransform
)

// RowFormatter controls how decoded rows are shaped before they are returned.
// Build one with NoFormat, FormatFields or Transform; the zero value is NoFormat.
type RowFormatter struct {
	kind      formatKind
	fields    []string
	transform func(Row) (any, bool)
}

// NoFormat returns rows unchanged.
func NoFormat() RowFormatter {
	return RowFormatter{}
}

// FormatFields normalizes the text of the named columns on every row. Naming a column the
// result does not have fails the call with ErrInvalidResult.
func FormatFields(columns ...string) RowFormatter {
	if len(columns) == 0 {
		return RowFormatter{}
	}

	return RowFormatter{kind: formatFields, fields: columns}
}

// Transform replaces every row with fn's result. Rows for which fn returns false are dropped.
func Transform(fn func(Row) (any, bool)) RowFormatter {
	if fn == nil {
		return RowFormatter{}
	}

	return RowFormatter{kind: formatTransform, transform: fn}
}

// checkColumns validates field names against the result columns once per result set.
func (f RowFormatter) checkColumns(columns []string) error {
	if f.kind != formatFields {
		return nil
	}

	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}

	for _, name := range f.fields {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("unknown column %q", name)
		}
	}

	return nil
}

// apply shapes one row. keep is false when the row must be omitted.
func (f RowFormatter) apply(r Row) (out any, keep bool) {
	switch f.kind {
	case formatTransform:
		return f.transform(r)
	case formatFields:
		for _, name := range f.fields {
			v, _ := r.Get(name)
			r.Set(name, normalizeText(v))
		}

		return r, true
	default:
		return r, true
	}
}

// normalizeText returns text as NFC UTF-8. Byte sequences that are not valid UTF-8 are read
// as ISO-8859-1. Non-text values are returned as is.
func normalizeText(v any) any {
	var s string

	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return v
	}

	if !utf8.ValidString(s) {
		if decoded, err := charmap.ISO8859_1.NewDecoder().String(s); err == nil {
			s = decoded
		}
	}

	return norm.NFC.String(s)
}
