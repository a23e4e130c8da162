package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_KindAndCode(t *testing.T) {
	driverErr := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1' for key 'PRIMARY'"}

	err := newError(ErrExecution, "Execute", "main", driverErr)

	require.ErrorIs(t, err, ErrExecution)
	assert.NotErrorIs(t, err, ErrBinding)
	assert.Equal(t, "1062", err.Code)
	assert.Equal(t, "Error 1062: Duplicate entry '1' for key 'PRIMARY'", err.Message())
	assert.Equal(t, "sql: Execute [main]: statement execution failed: Error 1062: Duplicate entry '1' for key 'PRIMARY' (code 1062)",
		err.Error())

	var my *mysql.MySQLError
	require.ErrorAs(t, err, &my)
	assert.Equal(t, uint16(1062), my.Number)
}

func TestError_PostgresCode(t *testing.T) {
	err := newError(ErrPreparation, "SelectMany", "pg", fmt.Errorf("prepare: %w", &pq.Error{Code: "42P01", Message: "relation does not exist"}))

	require.ErrorIs(t, err, ErrPreparation)
	assert.Equal(t, "42P01", err.Code)
}

func TestError_WithoutCause(t *testing.T) {
	err := newError(ErrAliasNotFound, "Get", "missing", nil)

	require.ErrorIs(t, err, ErrAliasNotFound)
	assert.Empty(t, err.Code)
	assert.NoError(t, err.Unwrap())
	assert.Equal(t, "sql: Get [missing]: connection alias not found", err.Error())
	assert.Equal(t, "connection alias not found", err.Message())
}

func TestError_Plain(t *testing.T) {
	err := newError(ErrBinding, "", "", errors.New("bad"))

	assert.Equal(t, "sql: parameter binding failed: bad", err.Error())
	assert.Empty(t, err.Code)
}
