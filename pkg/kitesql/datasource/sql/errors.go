package sql

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"modernc.org/sqlite"
)

// Failure kinds. Every error returned by this package matches exactly one of them with errors.Is.
var (
	ErrDuplicateAlias = errors.New("duplicate connection alias")
	ErrAliasNotFound  = errors.New("connection alias not found")
	ErrConnection     = errors.New("connection failed")
	ErrPreparation    = errors.New("statement preparation failed")
	ErrBinding        = errors.New("parameter binding failed")
	ErrExecution      = errors.New("statement execution failed")
	ErrNoResult       = errors.New("result retrieval failed")
	ErrInvalidResult  = errors.New("invalid result")
)

var (
	errEmptyQuery    = errors.New("empty query")
	errArity         = errors.New("parameter count mismatch")
	errNoColumns     = errors.New("result has no columns")
	errProcedureName = errors.New("invalid procedure name")
	errNotNumeric    = errors.New("count is not numeric")
	errNoFoundRows   = errors.New("fast row count is not supported for dialect")
)

// Error describes a failed operation. Err holds the driver error when there is one.
type Error struct {
	Kind  error
	Op    string
	Alias string
	// Code is the driver's native error code, empty when the driver reported none.
	Code string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString("sql: ")

	if e.Op != "" {
		b.WriteString(e.Op)
	}

	if e.Alias != "" {
		b.WriteString(" [")
		b.WriteString(e.Alias)
		b.WriteString("]")
	}

	if e.Op != "" || e.Alias != "" {
		b.WriteString(": ")
	}

	b.WriteString(e.Kind.Error())

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(pkgerrors.Cause(e.Err).Error())
	}

	if e.Code != "" {
		b.WriteString(" (code ")
		b.WriteString(e.Code)
		b.WriteString(")")
	}

	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// Message is the driver's error text without the kind prefix.
func (e *Error) Message() string {
	if e.Err == nil {
		return e.Kind.Error()
	}

	return pkgerrors.Cause(e.Err).Error()
}

func newError(kind error, op, alias string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Alias: alias}

	if err != nil {
		e.Code = driverCode(err)
		e.Err = pkgerrors.WithStack(err)
	}

	return e
}

// driverCode extracts the native error code from the drivers kitesql ships with.
func driverCode(err error) string {
	var (
		myErr *mysql.MySQLError
		pqErr *pq.Error
		liteE *sqlite.Error
	)

	switch {
	case errors.As(err, &myErr):
		return strconv.Itoa(int(myErr.Number))
	case errors.As(err, &pqErr):
		return string(pqErr.Code)
	case errors.As(err, &liteE):
		return strconv.Itoa(liteE.Code())
	default:
		return ""
	}
}
