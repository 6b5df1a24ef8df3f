package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lumenlake/sessionizer/internal/core/storage"
	"github.com/stretchr/testify/require"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := &Adapter{
		db:             db,
		stmtFetchBatch: mustPrepareStmt(t, db, mock, queryFetchBatch),
	}

	return adapter, mock, db
}

func mustPrepareStmt(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, query string) *sql.Stmt {
	t.Helper()

	mock.ExpectPrepare(regexp.QuoteMeta(query))
	stmt, err := db.Prepare(query)
	require.NoError(t, err)

	return stmt
}

func rawEventColumns() []string {
	return []string{"ingest_seq", "user_id", "event_id", "product_code", "occurred_at", "payload"}
}

func TestAdapter_FetchBatch(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	processDate := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	occurredAt := processDate.Add(10 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(queryFetchBatch)).
		WithArgs(processDate).
		WillReturnRows(sqlmock.NewRows(rawEventColumns()).
			AddRow(int64(1), "u1", "a", "p1", occurredAt, []byte(`{"page":"home"}`)).
			AddRow(int64(2), "u1", "b", "p1", occurredAt.Add(time.Minute), nil))

	events, err := adapter.FetchBatch(context.Background(), processDate)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, int64(1), events[0].IngestSeq)
	require.Equal(t, "u1", events[0].UserID)
	require.Equal(t, "home", events[0].Payload["page"])
	require.Nil(t, events[1].Payload)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_FetchBatch_EmptyIsNotFound(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	processDate := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryFetchBatch)).
		WithArgs(processDate).
		WillReturnRows(sqlmock.NewRows(rawEventColumns()))

	_, err := adapter.FetchBatch(context.Background(), processDate)
	require.ErrorIs(t, err, storage.ErrBatchNotFound)
	require.Contains(t, err.Error(), "2026-08-20")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_RetentionFloor(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	floor := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(queryRetentionFloor)).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(floor))

	got, err := adapter.RetentionFloor(context.Background())
	require.NoError(t, err)
	require.Equal(t, floor, got)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_RetentionFloor_EmptyLayer(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryRetentionFloor)).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	got, err := adapter.RetentionFloor(context.Background())
	require.NoError(t, err)
	require.True(t, got.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}
