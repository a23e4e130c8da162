package sql

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sllt/kitesql/pkg/kitesql/datasource"
)

func TestDB_ExecuteBatch(t *testing.T) {
	ctrl := gomock.NewController(t)

	logger := datasource.NewMockLogger(ctrl)
	metrics := datasource.NewMockMetrics(ctrl)

	metrics.EXPECT().NewHistogram(statsHistogram, gomock.Any(), gomock.Any()).AnyTimes()
	metrics.EXPECT().NewCounter(batchCounter, gomock.Any())
	metrics.EXPECT().RecordHistogram(gomock.Any(), statsHistogram, gomock.Any(),
		"hostname", "localhost", "database", "app", "type", "INSERT")
	metrics.EXPECT().IncrementCounter(gomock.Any(), batchCounter, "alias", "test").Times(2)
	logger.EXPECT().Logf(gomock.Any(), gomock.Any()).AnyTimes()
	logger.EXPECT().Debug(gomock.Any())

	db, mock := newMockDB(t, "mysql", WithLogger(logger), WithMetrics(metrics))

	query := "INSERT INTO tags (post_id, tag) VALUES (?, ?)"
	prep := mock.ExpectPrepare(query)
	prep.ExpectExec().WithArgs(int64(1), "go").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs(int64(1), "sql").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-sql'"})
	prep.ExpectExec().WithArgs(int64(2), "go").WillReturnResult(sqlmock.NewResult(3, 1))

	results, err := db.ExecuteBatch(context.Background(), query, [][]any{
		{1, "go"},
		{1, "sql"},
		{2},
		{2, " go "},
	})

	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}

	assert.Equal(t, BatchSuccess, results[0].Status)
	assert.Equal(t, "1", results[0].Message)
	assert.Equal(t, int64(1), results[0].RowsAffected)

	assert.Equal(t, BatchError, results[1].Status)
	assert.Equal(t, "Error 1062: Duplicate entry '1-sql'", results[1].Message)
	require.ErrorIs(t, results[1].Err, ErrExecution)

	assert.Equal(t, BatchError, results[2].Status)
	require.ErrorIs(t, results[2].Err, ErrBinding)
	assert.Contains(t, results[2].Message, "statement expects 2, got 1")

	assert.Equal(t, BatchSuccess, results[3].Status)
	require.NoError(t, mock.ExpectationsWereMet())

	b, err := json.Marshal(results[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":1,"status":"error","message":"Error 1062: Duplicate entry '1-sql'"}`, string(b))
}

func TestDB_ExecuteBatch_EmptyAndPrepareFailure(t *testing.T) {
	db, mock := newMockDB(t, "mysql")
	ctx := context.Background()

	query := "DELETE FROM tags WHERE id = ?"
	mock.ExpectPrepare(query)

	results, err := db.ExecuteBatch(ctx, query, nil)

	require.NoError(t, err)
	assert.Empty(t, results)

	mock.ExpectPrepare(query).WillReturnError(errors.New("no such table"))

	results, err = db.ExecuteBatch(ctx, query, [][]any{{1}, {2}})

	require.ErrorIs(t, err, ErrPreparation)
	assert.Nil(t, results)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_ExecuteBatch_QuotedAndCommentedPlaceholders(t *testing.T) {
	tests := []struct {
		dialect string
		query   string
	}{
		{"mysql", "UPDATE tags SET hits = hits + 1 WHERE id = ? # why not ? here\n"},
		{"postgres", "UPDATE tags SET note = $$costs $2$$ WHERE id = $1"},
		{"postgres", `UPDATE tags SET note = E'it\'s $2' WHERE id = $1`},
	}

	for _, tc := range tests {
		t.Run(tc.dialect, func(t *testing.T) {
			db, mock := newMockDB(t, tc.dialect)

			prep := mock.ExpectPrepare(tc.query)
			prep.ExpectExec().WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
			prep.ExpectExec().WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))

			results, err := db.ExecuteBatch(context.Background(), tc.query, [][]any{{1}, {2}})

			require.NoError(t, err)
			require.Len(t, results, 2)

			for _, r := range results {
				assert.Equal(t, BatchSuccess, r.Status, r.Message)
			}

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
