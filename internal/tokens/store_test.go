package tokens

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/store"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(store.New(db)), mock
}

func TestUpdateTokenInsertsWhenAbsent(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT gamespace_id, credential, username, account_id").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO credential_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	account, err := s.UpdateToken(context.Background(), 1, "google", "u1", "tok", nil, map[string]interface{}{"scope": "friends"})
	require.NoError(t, err)
	require.Nil(t, account)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTokenMergesPayloadWhenPresent(t *testing.T) {
	s, mock := newTestStore(t)

	existing := sqlmock.NewRows([]string{
		"gamespace_id", "credential", "username", "account_id", "access_token", "expires_at", "payload",
	}).AddRow(uint64(1), "google", "u1", uint64(77), "old-tok", nil, []byte(`{"scope":"profile"}`))
	mock.ExpectQuery("SELECT gamespace_id, credential, username, account_id").WillReturnRows(existing)
	mock.ExpectExec("UPDATE credential_tokens").WillReturnResult(sqlmock.NewResult(0, 1))

	account, err := s.UpdateToken(context.Background(), 1, "google", "u1", "new-tok", nil, map[string]interface{}{"scope": "friends"})
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, uint64(77), *account)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTokenNotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT gamespace_id, credential, username, account_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"gamespace_id", "credential", "username", "account_id", "access_token", "expires_at", "payload",
		}))

	_, err := s.GetToken(context.Background(), 1, 99, "google")
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
