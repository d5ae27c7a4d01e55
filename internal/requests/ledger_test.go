package requests

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(store.New(db), time.Hour), mock
}

func TestCreateRequestReturnsExistingKeyWhenPresent(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectQuery("SELECT key FROM requests").
		WithArgs(uint64(1), uint64(10), string(domain.RequestTypeAccount), uint64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("existing-key"))

	key, err := l.CreateRequest(context.Background(), 1, 10, domain.RequestTypeAccount, 20, nil)
	require.NoError(t, err)
	require.Equal(t, "existing-key", key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequestInsertsWhenAbsent(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectQuery("SELECT key FROM requests").
		WithArgs(uint64(1), uint64(10), string(domain.RequestTypeAccount), uint64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"key"}))
	mock.ExpectExec("INSERT INTO requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	key, err := l.CreateRequest(context.Background(), 1, 10, domain.RequestTypeAccount, 20, nil)
	require.NoError(t, err)
	require.NotEmpty(t, key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequestMapsDuplicateToConflict(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectQuery("SELECT key FROM requests").
		WillReturnRows(sqlmock.NewRows([]string{"key"}))
	mock.ExpectExec("INSERT INTO requests").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := l.CreateRequest(context.Background(), 1, 10, domain.RequestTypeAccount, 20, nil)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestAcquireIsSingleUse(t *testing.T) {
	l, mock := newTestLedger(t)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT gamespace_id, key, account_id, request_type, object_id, payload, created_at, expires_at FROM requests").
		WithArgs(uint64(1), uint64(10), "abc").
		WillReturnRows(sqlmock.NewRows([]string{
			"gamespace_id", "key", "account_id", "request_type", "object_id", "payload", "created_at", "expires_at",
		}).AddRow(uint64(1), "abc", uint64(10), string(domain.RequestTypeGroup), uint64(5), []byte(`{"role":100}`), now, now.Add(time.Hour)))
	mock.ExpectExec("DELETE FROM requests").
		WithArgs(uint64(1), uint64(10), string(domain.RequestTypeGroup), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req, err := l.Acquire(context.Background(), 1, 10, "abc")
	require.NoError(t, err)
	require.Equal(t, domain.RequestTypeGroup, req.Type)
	require.Equal(t, float64(100), req.Payload["role"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireNotFoundWhenAlreadyConsumed(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT gamespace_id, key, account_id, request_type, object_id, payload, created_at, expires_at FROM requests").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := l.Acquire(context.Background(), 1, 10, "abc")
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredReturnsCount(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectExec("DELETE FROM requests WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := l.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
