package sql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockDB registers a connection backed by sqlmock under the alias "test".
func newMockDB(t *testing.T, dialect string, opts ...Option) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	opts = append(opts, WithOpener(func(context.Context, Dialect, *DBConfig) (*sql.DB, error) {
		return mockDB, nil
	}))

	db, err := NewRegistry(opts...).Register(context.Background(), "test",
		&DBConfig{Dialect: dialect, HostName: "localhost", Database: "app"})
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		_ = db.Close()
	})

	return db, mock
}

func TestDB_SelectMany(t *testing.T) {
	db, mock := newMockDB(t, "mysql")

	query := "SELECT id, name FROM users WHERE status = ?"
	mock.ExpectPrepare(query).ExpectQuery().WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("ann")).
			AddRow(int64(2), "bob"))

	rows, err := db.SelectMany(context.Background(), query, []any{" active "}, NoFormat())

	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0].(Row)
	assert.Equal(t, []string{"id", "name"}, first.Columns())
	assert.Equal(t, []any{int64(1), "ann"}, first.Values())
	assert.Equal(t, "bob", rows[1].(Row).At(1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_SelectMany_Empty(t *testing.T) {
	db, mock := newMockDB(t, "mysql")

	query := "SELECT id FROM users"
	mock.ExpectPrepare(query).ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := db.SelectMany(context.Background(), query, nil, NoFormat())

	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestDB_SelectMany_TransformDropsRows(t *testing.T) {
	db, mock := newMockDB(t, "mysql")

	query := "SELECT id FROM users"
	mock.ExpectPrepare(query).ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))

	rows, err := db.SelectMany(context.Background(), query, nil, Transform(func(r Row) (any, bool) {
		id := r.At(0).(int64)
		return id * 10, id%2 == 1
	}))

	require.NoError(t, err)
	assert.Equal(t, []any{int64(10), int64(30)}, rows)
}

func TestDB_SelectMany_FormatFieldsUnknownColumn(t *testing.T) {
	db, mock := newMockDB(t, "mysql")

	query := "SELECT id FROM users"
	mock.ExpectPrepare(query).ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	_, err := db.SelectMany(context.Background(), query, nil, FormatFields("name"))

	require.ErrorIs(t, err, ErrInvalidResult)
}

func TestDB_SelectMany_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		db, _ := newMockDB(t, "mysql")

		_, err := db.SelectMany(ctx, "  ", nil, NoFormat())
		require.ErrorIs(t, err, ErrPreparation)
	})

	t.Run("prepare fails", func(t *testing.T) {
		db, mock := newMockDB(t, "mysql")

		mock.ExpectPrepare("SELEC 1").WillReturnError(errors.New("syntax error"))

		_, err := db.SelectMany(ctx, "SELEC 1", nil, NoFormat())
		require.ErrorIs(t, err, ErrPreparation)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "SelectMany", e.Op)
		assert.Equal(t, "test", e.Alias)
		assert.Equal(t, "syntax error", e.Message())
	})

	t.Run("arity mismatch", func(t *testing.T) {
		db, mock := newMockDB(t, "mysql")

		query := "SELECT * FROM users WHERE id = ? AND name = ?"
		mock.ExpectPrepare(query).WillBeClosed()

		_, err := db.SelectMany(ctx, query, []any{1}, NoFormat())
		require.ErrorIs(t, err, ErrBinding)
		require.ErrorIs(t, err, errArity)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("execution fails", func(t *testing.T) {
		db, mock := newMockDB(t, "mysql")

		query := "SELECT * FROM users WHERE id = ?"
		mock.ExpectPrepare(query).ExpectQuery().WithArgs(int64(1)).WillReturnError(errors.New("gone away"))

		_, err := db.SelectMany(ctx, query, []any{1}, NoFormat())
		require.ErrorIs(t, err, ErrExecution)
	})

	t.Run("row error", func(t *testing.T) {
		db, mock := newMockDB(t, "mysql")

		query := "SELECT id FROM users"
		mock.ExpectPrepare(query).ExpectQuery().
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).RowError(0, errors.New("bad row")))

		_, err := db.SelectMany(ctx, query, nil, NoFormat())
		require.ErrorIs(t, err, ErrNoResult)
	})
}

func TestDB_SelectOne(t *testing.T) {
	db, mock := newMockDB(t, "mysql")
	ctx := context.Background()

	query := "SELECT id, name FROM users WHERE id > ?"
	mock.ExpectPrepare(query).ExpectQuery().WithArgs(int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ann").AddRow(int64(2), "bob"))

	row, found, err := db.SelectOne(ctx, query, []any{0}, NoFormat())

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ann", row.(Row).At(1))

	mock.ExpectPrepare(query).ExpectQuery().WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	row, found, err = db.SelectOne(ctx, query, []any{9}, NoFormat())

	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_SelectScalar(t *testing.T) {
	db, mock := newMockDB(t, "mysql")
	ctx := context.Background()

	query := "SELECT COUNT(*), MAX(id) FROM users"
	mock.ExpectPrepare(query).ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"count", "max"}).AddRow(int64(12), int64(40)))

	v, err := db.SelectScalar(ctx, query, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	query = "SELECT name FROM users WHERE id = ?"
	mock.ExpectPrepare(query).ExpectQuery().WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err = db.SelectScalar(ctx, query, []any{5})

	require.ErrorIs(t, err, ErrInvalidResult)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDB_SelectColumn(t *testing.T) {
	db, mock := newMockDB(t, "mysql")

	query := "SELECT name, id FROM users"
	mock.ExpectPrepare(query).ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"name", "id"}).AddRow("ann", int64(1)).AddRow(nil, int64(2)))

	values, err := db.SelectColumn(context.Background(), query, nil)

	require.NoError(t, err)
	assert.Equal(t, []any{"ann", nil}, values)
}

func TestDB_Execute(t *testing.T) {
	db, mock := newMockDB(t, "mysql")
	ctx := context.Background()

	query := "INSERT INTO users (name, score, note) VALUES (?, ?, ?)"
	mock.ExpectPrepare(query).ExpectExec().WithArgs(`O\'Brien`, 9.5, nil).
		WillReturnResult(sqlmock.NewResult(42, 1))

	affected, err := db.Execute(ctx, query, []any{" O'Brien ", 9.5, nil})

	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, int64(42), db.LastInsertID())

	query = "UPDATE users SET name = ?"
	mock.ExpectPrepare(query).ExpectExec().WithArgs("x").WillReturnError(errors.New("read only"))

	_, err = db.Execute(ctx, query, []any{"x"})

	require.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, int64(42), db.LastInsertID())

	query = "DELETE FROM users"
	mock.ExpectPrepare(query).ExpectExec().WillReturnResult(sqlmock.NewErrorResult(errors.New("no count")))

	_, err = db.Execute(ctx, query, nil)

	require.ErrorIs(t, err, ErrNoResult)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_CallProcedure(t *testing.T) {
	db, mock := newMockDB(t, "mysql")
	ctx := context.Background()

	mock.ExpectPrepare("CALL list_users(?, ?)").ExpectQuery().WithArgs(int64(10), "a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	rows, err := db.CallProcedure(ctx, "list_users", []any{10, "a"}, NoFormat())

	require.NoError(t, err)
	require.Len(t, rows, 1)

	mock.ExpectPrepare("CALL app.ping()").ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"ok"}))

	rows, err = db.CallProcedure(ctx, "app.ping", nil, NoFormat())

	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = db.CallProcedure(ctx, "x(); DROP TABLE users", nil, NoFormat())

	require.ErrorIs(t, err, ErrPreparation)
	require.ErrorIs(t, err, errProcedureName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_CallProcedure_Postgres(t *testing.T) {
	db, mock := newMockDB(t, "postgres")

	mock.ExpectPrepare("CALL refresh($1, $2)").ExpectQuery().WithArgs(int64(1), "it''s").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(3)))

	rows, err := db.CallProcedure(context.Background(), "refresh", []any{1, "it's"}, NoFormat())

	require.NoError(t, err)
	assert.Equal(t, int64(3), rows[0].(Row).At(0))
}

type user struct {
	ID       int
	FullName string
	Email    string `db:"mail"`
	secret   string
}

func TestDB_Select(t *testing.T) {
	db, mock := newMockDB(t, "mysql")
	ctx := context.Background()

	query := "SELECT id, full_name, mail, extra FROM users WHERE id = ?"
	mock.ExpectPrepare(query).ExpectQuery().WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "mail", "extra"}).AddRow(int64(1), "Ann Lee", "ann@x", "zzz"))

	var u user

	require.NoError(t, db.Select(ctx, &u, query, 1))
	assert.Equal(t, user{ID: 1, FullName: "Ann Lee", Email: "ann@x"}, u)

	query = "SELECT id FROM users"
	mock.ExpectPrepare(query).ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	var ids []int

	require.NoError(t, db.Select(ctx, &ids, query))
	assert.Equal(t, []int{1, 2}, ids)

	query = "SELECT id, full_name FROM users"
	mock.ExpectPrepare(query).ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}).AddRow(int64(3), "Bo"))

	var users []user

	require.NoError(t, db.Select(ctx, &users, query))
	assert.Equal(t, []user{{ID: 3, FullName: "Bo"}}, users)

	query = "SELECT id FROM users WHERE id = ?"
	mock.ExpectPrepare(query).ExpectQuery().WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	require.ErrorIs(t, db.Select(ctx, &u, query, 7), ErrInvalidResult)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_Select_InvalidDestination(t *testing.T) {
	db, _ := newMockDB(t, "mysql")
	ctx := context.Background()

	var n int

	require.ErrorIs(t, db.Select(ctx, n, "SELECT 1"), ErrInvalidResult)
	require.ErrorIs(t, db.Select(ctx, &n, "SELECT 1"), ErrInvalidResult)
	require.ErrorIs(t, db.Select(ctx, nil, "SELECT 1"), ErrInvalidResult)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	require.ErrorIs(t, db.Select(cancelled, &[]int{}, "SELECT 1"), ErrExecution)
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "full_name", ToSnakeCase("FullName"))
	assert.Equal(t, "id", ToSnakeCase("ID"))
	assert.Equal(t, "user_id", ToSnakeCase("UserID"))
	assert.Equal(t, "http_server", ToSnakeCase("HTTPServer"))
}
