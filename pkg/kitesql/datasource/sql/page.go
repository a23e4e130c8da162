package sql

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DatatablePage is one page of a server side paginated table.
type DatatablePage struct {
	// Draw is the caller's correlation token, echoed back unchanged.
	Draw          any   `json:"draw"`
	Data          []any `json:"data"`
	FilteredCount int64 `json:"recordsFiltered"`
	TotalCount    int64 `json:"recordsTotal"`
}

// PageQuery describes the statements behind a page.
type PageQuery struct {
	Draw any
	// Query selects the page rows. On MySQL it must use SQL_CALC_FOUND_ROWS so the filtered
	// count can be read back with FOUND_ROWS().
	Query  string
	Params []any
	// TotalQuery returns the unfiltered row count in column 0.
	TotalQuery  string
	TotalParams []any
}

// SelectPage runs the page query, reads the filtered count from the session's fast row count and
// the total from TotalQuery.
func (d *DB) SelectPage(ctx context.Context, page PageQuery, format RowFormatter) (_ *DatatablePage, err error) {
	const op = "SelectPage"

	ctx, done := d.observe(ctx, op, page.Query)
	defer func() { done(err, page.Params) }()

	data, err := d.selectMany(ctx, op, page.Query, page.Params, format, 0)
	if err != nil {
		return nil, err
	}

	foundRows := d.dialect.foundRowsQuery()
	if foundRows == "" {
		return nil, newError(ErrExecution, op, d.alias, fmt.Errorf("%w: %s", errNoFoundRows, d.dialect))
	}

	filtered, err := d.selectScalar(ctx, op, foundRows, nil)
	if err != nil {
		return nil, err
	}

	total, err := d.selectScalar(ctx, op, page.TotalQuery, page.TotalParams)
	if err != nil {
		return nil, err
	}

	return d.newPage(op, page.Draw, data, filtered, total)
}

// CallProcedureAsPage calls a procedure returning three result sets: the page rows, the
// filtered count and the total count.
func (d *DB) CallProcedureAsPage(ctx context.Context, draw any, name string, params []any,
	format RowFormatter) (_ *DatatablePage, err error) {
	const op = "CallProcedureAsPage"

	query, err := d.callStatement(op, name, len(params))
	if err != nil {
		return nil, err
	}

	ctx, done := d.observe(ctx, op, query)
	defer func() { done(err, params) }()

	cur, _, err := d.query(ctx, op, query, params)
	if err != nil {
		return nil, err
	}

	defer cur.Close()

	data, err := d.drain(op, cur.Rows, format, 0)
	if err != nil {
		return nil, err
	}

	counts := [2]any{}

	for i, label := range []string{"filtered count", "total count"} {
		if !cur.NextResultSet() {
			if err := cur.Err(); err != nil {
				return nil, newError(ErrNoResult, op, d.alias, err)
			}

			return nil, newError(ErrInvalidResult, op, d.alias, fmt.Errorf("missing %s result set", label))
		}

		if counts[i], err = d.firstValue(op, cur.Rows); err != nil {
			return nil, err
		}
	}

	return d.newPage(op, draw, data, counts[0], counts[1])
}

func (d *DB) newPage(op string, draw any, data []any, filtered, total any) (*DatatablePage, error) {
	f, err := toInt64(filtered)
	if err != nil {
		return nil, newError(ErrInvalidResult, op, d.alias, err)
	}

	t, err := toInt64(total)
	if err != nil {
		return nil, newError(ErrInvalidResult, op, d.alias, err)
	}

	return &DatatablePage{Draw: draw, Data: data, FilteredCount: f, TotalCount: t}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", errNotNumeric, n)
		}

		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errNotNumeric, n)
		}

		return i, nil
	default:
		return 0, fmt.Errorf("%w: %T", errNotNumeric, v)
	}
}
