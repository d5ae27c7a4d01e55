package connections

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/requests"
	"github.com/anthill-platform/anthill-social/internal/store"
)

type fakeMessageClient struct {
	sent []string
}

func (f *fakeMessageClient) SendMessage(ctx context.Context, gamespace uint64, sender uint64, recipientClass, recipientKey, messageType string, payload map[string]interface{}, flags []string, authoritative bool) error {
	f.sent = append(f.sent, messageType)
	return nil
}
func (f *fakeMessageClient) CreateGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, joinAccount uint64, role string) error {
	return nil
}
func (f *fakeMessageClient) JoinGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, account uint64, role string, notify map[string]interface{}) error {
	return nil
}
func (f *fakeMessageClient) LeaveGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, account uint64, notify map[string]interface{}) error {
	return nil
}

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, *fakeMessageClient) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	msg := &fakeMessageClient{}
	e := New(s, requests.New(s, 0), msg, nil)
	return e, mock, msg
}

func TestRequestConnectionDirectRequiresScope(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.RequestConnection(context.Background(), 1, 10, 20, false, nil, nil, false)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestRequestConnectionDirectInsertsSymmetricPair(t *testing.T) {
	e, mock, msg := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO account_connections").
		WithArgs(uint64(1), uint64(10), uint64(20)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	_, err := e.RequestConnection(context.Background(), 1, 10, 20, false, []string{"connection_approval"}, nil, false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, []string{"connection_created"}, msg.sent)
}

func TestDeleteRemovesBothDirectionsInOneStatement(t *testing.T) {
	e, mock, msg := newTestEngine(t)

	mock.ExpectExec("DELETE FROM account_connections").
		WithArgs(uint64(1), uint64(10), uint64(20)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := e.Delete(context.Background(), 1, 10, 20, nil, false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, []string{"connection_deleted"}, msg.sent)
}

func TestApproveConnectionAcquiresByRequesterNotApprover(t *testing.T) {
	e, mock, msg := newTestEngine(t)

	rows := sqlmock.NewRows([]string{"gamespace_id", "key", "account_id", "request_type", "object_id", "payload", "created_at", "expires_at"}).
		AddRow(uint64(1), "req-key", uint64(10), "account", uint64(20), []byte("{}"), time.Now(), time.Now().Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT gamespace_id, key, account_id, request_type, object_id, payload, created_at, expires_at FROM requests").
		WithArgs(uint64(1), uint64(10), "req-key").
		WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM requests").
		WithArgs(uint64(1), uint64(10), "account", uint64(20)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO account_connections").
		WithArgs(uint64(1), uint64(20), uint64(10)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := e.ApproveConnection(context.Background(), 1, 20, 10, "req-key", nil, false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, []string{"connection_approved"}, msg.sent)
}

func TestRejectConnectionAcquiresByRequesterNotApprover(t *testing.T) {
	e, mock, msg := newTestEngine(t)

	rows := sqlmock.NewRows([]string{"gamespace_id", "key", "account_id", "request_type", "object_id", "payload", "created_at", "expires_at"}).
		AddRow(uint64(1), "req-key", uint64(10), "account", uint64(20), []byte("{}"), time.Now(), time.Now().Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT gamespace_id, key, account_id, request_type, object_id, payload, created_at, expires_at FROM requests").
		WithArgs(uint64(1), uint64(10), "req-key").
		WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM requests").
		WithArgs(uint64(1), uint64(10), "account", uint64(20)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := e.RejectConnection(context.Background(), 1, 20, 10, "req-key", nil, false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, []string{"connection_rejected"}, msg.sent)
}

func TestListConnectionsScansRows(t *testing.T) {
	e, mock, _ := newTestEngine(t)

	rows := sqlmock.NewRows([]string{"account_connection"}).AddRow(uint64(20)).AddRow(uint64(30))
	mock.ExpectQuery("SELECT account_connection FROM account_connections").
		WithArgs(uint64(1), uint64(10)).
		WillReturnRows(rows)

	others, err := e.ListConnections(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{20, 30}, others)
	require.NoError(t, mock.ExpectationsWereMet())
}
