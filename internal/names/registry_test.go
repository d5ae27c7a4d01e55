package names

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(store.New(db), nil, 20*time.Second), mock
}

func TestAcquireNameConflictMapsToConflict(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectExec("INSERT INTO unique_names").
		WithArgs(uint64(1), uint64(10), "alias", "shadow").
		WillReturnError(&pq.Error{Code: "23505"})

	err := r.AcquireName(context.Background(), 1, 10, "alias", "shadow")
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireNameSucceeds(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectExec("INSERT INTO unique_names").
		WithArgs(uint64(1), uint64(10), "alias", "shadow").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.AcquireName(context.Background(), 1, 10, "alias", "shadow")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseNameReportsWhetherSomethingWasFreed(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectExec("DELETE FROM unique_names").
		WithArgs(uint64(1), uint64(10), "alias").
		WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := r.ReleaseName(context.Background(), 1, 10, "alias")
	require.NoError(t, err)
	require.False(t, released)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckNameReturnsNilWhenFree(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectQuery("SELECT account_id FROM unique_names").
		WithArgs(uint64(1), "alias", "shadow").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

	account, err := r.CheckName(context.Background(), 1, "alias", "shadow")
	require.NoError(t, err)
	require.Nil(t, account)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckNameReturnsHolder(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectQuery("SELECT account_id FROM unique_names").
		WithArgs(uint64(1), "alias", "shadow").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow(uint64(42)))

	account, err := r.CheckName(context.Background(), 1, "alias", "shadow")
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, uint64(42), *account)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchNamesSkipsShortTokens(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectQuery("SELECT account_id, name FROM unique_names").
		WithArgs(uint64(1), "alias", "shad:*", 100).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "name"}).AddRow(uint64(1), "shadow"))

	results, err := r.SearchNames(context.Background(), 1, "alias", "to shad", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "shadow", results[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountsDeletedScopesToGamespaceWhenRequested(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectExec("DELETE FROM unique_names WHERE gamespace_id").
		WithArgs(uint64(1), pq.Array([]uint64{10, 20})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := r.AccountsDeleted(context.Background(), 1, []uint64{10, 20}, true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
