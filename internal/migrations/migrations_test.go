package migrations

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestApplyExecutesAndRecordsUnappliedMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	names, err := sortedMigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	for _, name := range names {
		mock.ExpectQuery("SELECT 1 FROM schema_migrations WHERE name = \\$1").
			WithArgs(name).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectBegin()
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO schema_migrations").
			WithArgs(name).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, Apply(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySkipsAlreadyRecordedMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	names, err := sortedMigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	for _, name := range names {
		mock.ExpectQuery("SELECT 1 FROM schema_migrations WHERE name = \\$1").
			WithArgs(name).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	}

	require.NoError(t, Apply(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsAreSorted(t *testing.T) {
	names, err := sortedMigrationNames()
	require.NoError(t, err)

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	require.Equal(t, sorted, names)
	for _, name := range names {
		require.True(t, strings.HasSuffix(name, ".sql"))
	}
}
