package sql

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Executor captures the statement operations of a connection.
// It is useful for repositories that want to depend on an interface rather than *DB.
type Executor interface {
	SelectMany(ctx context.Context, query string, params []any, format RowFormatter) ([]any, error)
	SelectOne(ctx context.Context, query string, params []any, format RowFormatter) (any, bool, error)
	SelectScalar(ctx context.Context, query string, params []any) (any, error)
	SelectColumn(ctx context.Context, query string, params []any) ([]any, error)
	Execute(ctx context.Context, query string, params []any) (int64, error)
	ExecuteBatch(ctx context.Context, query string, paramSets [][]any) ([]BatchResult, error)
	CallProcedure(ctx context.Context, name string, params []any, format RowFormatter) ([]any, error)
	SelectPage(ctx context.Context, page PageQuery, format RowFormatter) (*DatatablePage, error)
	CallProcedureAsPage(ctx context.Context, draw any, name string, params []any, format RowFormatter) (*DatatablePage, error)
	Select(ctx context.Context, data any, query string, params ...any) error
}

var _ Executor = (*DB)(nil)

// SelectMany returns every row of query, shaped by format. Zero rows yield an empty slice.
func (d *DB) SelectMany(ctx context.Context, query string, params []any, format RowFormatter) (rows []any, err error) {
	ctx, done := d.observe(ctx, "SelectMany", query)
	defer func() { done(err, params) }()

	return d.selectMany(ctx, "SelectMany", query, params, format, 0)
}

func (d *DB) selectMany(ctx context.Context, op, query string, params []any, format RowFormatter, limit int) ([]any, error) {
	cur, _, err := d.query(ctx, op, query, params)
	if err != nil {
		return nil, err
	}

	defer cur.Close()

	return d.drain(op, cur.Rows, format, limit)
}

// SelectOne returns the first row of query. found is false when there is no row, or when a
// Transform dropped it.
func (d *DB) SelectOne(ctx context.Context, query string, params []any, format RowFormatter) (row any, found bool, err error) {
	ctx, done := d.observe(ctx, "SelectOne", query)
	defer func() { done(err, params) }()

	rows, err := d.selectMany(ctx, "SelectOne", query, params, format, 1)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}

	return rows[0], true, nil
}

// SelectScalar returns column 0 of the first row. It fails with ErrInvalidResult when the query
// returns no row.
func (d *DB) SelectScalar(ctx context.Context, query string, params []any) (value any, err error) {
	ctx, done := d.observe(ctx, "SelectScalar", query)
	defer func() { done(err, params) }()

	return d.selectScalar(ctx, "SelectScalar", query, params)
}

func (d *DB) selectScalar(ctx context.Context, op, query string, params []any) (any, error) {
	cur, _, err := d.query(ctx, op, query, params)
	if err != nil {
		return nil, err
	}

	defer cur.Close()

	return d.firstValue(op, cur.Rows)
}

// SelectColumn returns column 0 of every row.
func (d *DB) SelectColumn(ctx context.Context, query string, params []any) (values []any, err error) {
	ctx, done := d.observe(ctx, "SelectColumn", query)
	defer func() { done(err, params) }()

	rows, err := d.selectMany(ctx, "SelectColumn", query, params, Transform(func(r Row) (any, bool) {
		if r.Len() == 0 {
			return nil, false
		}

		return r.At(0), true
	}), 0)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// Execute runs a statement that does not return rows and reports the affected row count.
// The generated id, if any, is kept for LastInsertID.
func (d *DB) Execute(ctx context.Context, query string, params []any) (affected int64, err error) {
	ctx, done := d.observe(ctx, "Execute", query)
	defer func() { done(err, params) }()

	stmt, binding, err := d.prepare(ctx, "Execute", query, params)
	if err != nil {
		return 0, err
	}

	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, binding.Args()...)
	if err != nil {
		return 0, newError(ErrExecution, "Execute", d.alias, err)
	}

	if id, err := res.LastInsertId(); err == nil {
		d.lastInsertID.Store(id)
	}

	affected, err = res.RowsAffected()
	if err != nil {
		return 0, newError(ErrNoResult, "Execute", d.alias, err)
	}

	return affected, nil
}

var procedureName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

// callStatement builds CALL name(?, ...) with one placeholder per parameter.
func (d *DB) callStatement(op, name string, n int) (string, error) {
	if !procedureName.MatchString(name) {
		return "", newError(ErrPreparation, op, d.alias, fmt.Errorf("%w: %q", errProcedureName, name))
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")

	return d.dialect.rebind(fmt.Sprintf("CALL %s(%s)", name, marks)), nil
}

// CallProcedure calls a stored procedure and returns the rows of its first result set.
func (d *DB) CallProcedure(ctx context.Context, name string, params []any, format RowFormatter) (rows []any, err error) {
	query, err := d.callStatement("CallProcedure", name, len(params))
	if err != nil {
		return nil, err
	}

	ctx, done := d.observe(ctx, "CallProcedure", query)
	defer func() { done(err, params) }()

	return d.selectMany(ctx, "CallProcedure", query, params, format, 0)
}
