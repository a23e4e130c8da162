package sql

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

// BatchStatus reports the outcome of one batch iteration.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchError   BatchStatus = "error"
)

// BatchResult is the outcome of one parameter set in ExecuteBatch.
type BatchResult struct {
	Index  int         `json:"index"`
	Status BatchStatus `json:"status"`
	// Message holds the affected row count on success and the driver error text on failure.
	Message      string `json:"message"`
	RowsAffected int64  `json:"-"`
	Err          error  `json:"-"`
}

// ExecuteBatch prepares query once and executes it for every parameter set, in order. A failing
// set is reported in its own BatchResult and the remaining sets still run; only a preparation
// failure aborts the batch.
func (d *DB) ExecuteBatch(ctx context.Context, query string, paramSets [][]any) (_ []BatchResult, err error) {
	const op = "ExecuteBatch"

	ctx, done := d.observe(ctx, op, query)
	defer func() { done(err, nil) }()

	stmt, err := d.prepareStmt(ctx, op, query)
	if err != nil {
		return nil, err
	}

	defer stmt.Close()

	results := make([]BatchResult, len(paramSets))

	for i, params := range paramSets {
		results[i] = d.executeOne(ctx, op, query, stmt, params)
		results[i].Index = i

		if results[i].Status == BatchError && d.metrics != nil {
			d.metrics.IncrementCounter(ctx, batchCounter, "alias", d.alias)
		}
	}

	return results, nil
}

func (d *DB) executeOne(ctx context.Context, op, query string, stmt *sql.Stmt, params []any) BatchResult {
	binding, err := d.bind(op, query, params)
	if err != nil {
		return failed(err)
	}

	res, err := stmt.ExecContext(ctx, binding.Args()...)
	if err != nil {
		return failed(newError(ErrExecution, op, d.alias, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return failed(newError(ErrNoResult, op, d.alias, err))
	}

	return BatchResult{
		Status:       BatchSuccess,
		Message:      strconv.FormatInt(affected, 10),
		RowsAffected: affected,
	}
}

func failed(err error) BatchResult {
	msg := err.Error()

	var e *Error
	if errors.As(err, &e) {
		msg = e.Message()
	}

	return BatchResult{Status: BatchError, Message: msg, Err: err}
}
