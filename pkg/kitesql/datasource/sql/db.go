// Package sql manages named database connections and runs prepared statements on them,
// reshaping results into rows, single values, batch reports and datatable pages.
//
// A connection (*DB) pins one driver session for its lifetime so session state such as
// auto-commit, FOUND_ROWS() and the last insert id carries from one call to the next. A DB is not
// safe for concurrent use; callers serialize operations on one connection.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sllt/kitesql/pkg/kitesql/datasource"
)

const (
	statsHistogram = "app_sql_stats"
	batchCounter   = "app_sql_batch_errors"
)

// DB is an open connection: a pinned session on an underlying *sql.DB.
type DB struct {
	alias   string
	pool    *sql.DB
	conn    *sql.Conn
	dialect Dialect
	config  *DBConfig
	logger  datasource.Logger
	metrics datasource.Metrics
	tracer  trace.Tracer

	lastInsertID atomic.Int64
	// inTx tracks the emulated auto-commit state on dialects without SET autocommit.
	inTx bool
}

// Log is the record written for every statement.
type Log struct {
	Type     string `json:"type"`
	Query    string `json:"query"`
	Duration int64  `json:"duration"`
	Args     []any  `json:"args,omitempty"`
}

func (l *Log) PrettyPrint(writer io.Writer) {
	fmt.Fprintf(writer, "\u001B[38;5;8m%-32s \u001B[38;5;24m%-6s\u001B[0m %8d\u001B[38;5;8mµs\u001B[0m %s\n",
		l.Type, "SQL", l.Duration, clean(l.Query))
}

var whitespace = regexp.MustCompile(`\s+`)

func clean(query string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(query, " "))
}

func getOperationType(query string) string {
	query = strings.TrimSpace(query)
	words := strings.SplitN(query, " ", 2)

	return strings.ToUpper(words[0])
}

// newDB pins a session on pool.
func newDB(ctx context.Context, alias string, pool *sql.DB, cfg *DBConfig, dialect Dialect,
	logger datasource.Logger, metrics datasource.Metrics, tracer trace.Tracer) (*DB, error) {
	if err := pool.PingContext(ctx); err != nil {
		return nil, newError(ErrConnection, "ping", alias, err)
	}

	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, newError(ErrConnection, "session", alias, err)
	}

	return &DB{
		alias:   alias,
		pool:    pool,
		conn:    conn,
		dialect: dialect,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

func (d *DB) Alias() string { return d.alias }

func (d *DB) Dialect() string { return string(d.dialect) }

// Escape applies the connection's string escaping.
func (d *DB) Escape(s string) string { return d.dialect.Escape(s) }

// LastInsertID is the id generated by the most recent Execute on this connection.
func (d *DB) LastInsertID() int64 { return d.lastInsertID.Load() }

// Close releases the session and the underlying handle.
func (d *DB) Close() error {
	if d.conn != nil {
		_ = d.conn.Close()
	}

	if d.pool != nil {
		return d.pool.Close()
	}

	return nil
}

// observe starts a span for op and returns the function that finishes it.
func (d *DB) observe(ctx context.Context, op, query string) (context.Context, func(err error, args []any)) {
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "kitesql."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", string(d.dialect)),
			attribute.String("db.statement", query),
			attribute.String("kitesql.alias", d.alias),
		))

	return ctx, func(err error, args []any) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
		d.sendOperationStats(ctx, start, op, query, args...)
	}
}

func (d *DB) sendOperationStats(ctx context.Context, start time.Time, queryType, query string, args ...any) {
	duration := time.Since(start)

	if d.logger != nil {
		d.logger.Debug(&Log{
			Type:     queryType,
			Query:    query,
			Duration: duration.Microseconds(),
			Args:     args,
		})
	}

	if d.metrics != nil {
		var host, database string
		if d.config != nil {
			host, database = d.config.HostName, d.config.Database
		}

		d.metrics.RecordHistogram(ctx, statsHistogram, float64(duration.Milliseconds()),
			"hostname", host, "database", database, "type", getOperationType(query))
	}
}

func (d *DB) prepareStmt(ctx context.Context, op, query string) (*sql.Stmt, error) {
	if strings.TrimSpace(query) == "" {
		return nil, newError(ErrPreparation, op, d.alias, errEmptyQuery)
	}

	stmt, err := d.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, newError(ErrPreparation, op, d.alias, err)
	}

	return stmt, nil
}

// prepare runs the prepare and bind steps shared by every parameterised operation.
func (d *DB) prepare(ctx context.Context, op, query string, params []any) (*sql.Stmt, Binding, error) {
	stmt, err := d.prepareStmt(ctx, op, query)
	if err != nil {
		return nil, nil, err
	}

	binding, err := d.bind(op, query, params)
	if err != nil {
		stmt.Close()
		return nil, nil, err
	}

	return stmt, binding, nil
}

// bind infers the binding for params and checks it against the statement's placeholders.
func (d *DB) bind(op, query string, params []any) (Binding, error) {
	binding, err := Bind(params, d.dialect.Escape)
	if err != nil {
		return nil, newError(ErrBinding, op, d.alias, err)
	}

	if want := d.dialect.placeholders(query); want != len(binding) {
		return nil, newError(ErrBinding, op, d.alias,
			fmt.Errorf("%w: statement expects %d, got %d (%q)", errArity, want, len(binding), binding.Signature()))
	}

	return binding, nil
}

// cursor is an executing statement whose rows are being drained.
type cursor struct {
	*sql.Rows
	stmt *sql.Stmt
}

func (c *cursor) Close() {
	c.Rows.Close()
	c.stmt.Close()
}

// query prepares, binds and executes a row returning statement.
func (d *DB) query(ctx context.Context, op, query string, params []any) (*cursor, Binding, error) {
	stmt, binding, err := d.prepare(ctx, op, query, params)
	if err != nil {
		return nil, nil, err
	}

	rows, err := stmt.QueryContext(ctx, binding.Args()...)
	if err != nil {
		stmt.Close()
		return nil, nil, newError(ErrExecution, op, d.alias, err)
	}

	return &cursor{Rows: rows, stmt: stmt}, binding, nil
}

// scanRow decodes the current row.
func scanRow(rows *sql.Rows, columns []string) (Row, error) {
	values := make([]any, len(columns))
	dest := make([]any, len(columns))

	for i := range values {
		dest[i] = &values[i]
	}

	if err := rows.Scan(dest...); err != nil {
		return Row{}, err
	}

	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}

	return NewRow(columns, values), nil
}

// drain reads every row of the current result set through format. limit > 0 stops after that
// many decoded rows.
func (d *DB) drain(op string, rows *sql.Rows, format RowFormatter, limit int) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, newError(ErrNoResult, op, d.alias, err)
	}

	if err := format.checkColumns(columns); err != nil {
		return nil, newError(ErrInvalidResult, op, d.alias, err)
	}

	out := make([]any, 0)
	read := 0

	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, newError(ErrNoResult, op, d.alias, err)
		}

		if v, keep := format.apply(row); keep {
			out = append(out, v)
		}

		read++
		if limit > 0 && read >= limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, newError(ErrNoResult, op, d.alias, err)
	}

	return out, nil
}

// firstValue reads column 0 of the first row of the current result set.
func (d *DB) firstValue(op string, rows *sql.Rows) (any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, newError(ErrNoResult, op, d.alias, err)
	}

	if len(columns) == 0 {
		return nil, newError(ErrInvalidResult, op, d.alias, errNoColumns)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, newError(ErrNoResult, op, d.alias, err)
		}

		return nil, newError(ErrInvalidResult, op, d.alias, sql.ErrNoRows)
	}

	row, err := scanRow(rows, columns)
	if err != nil {
		return nil, newError(ErrNoResult, op, d.alias, err)
	}

	return row.At(0), nil
}
