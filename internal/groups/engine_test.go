package groups

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/requests"
	"github.com/anthill-platform/anthill-social/internal/store"
)

type fakeMessageClient struct{}

func (f *fakeMessageClient) SendMessage(ctx context.Context, gamespace uint64, sender uint64, recipientClass, recipientKey, messageType string, payload map[string]interface{}, flags []string, authoritative bool) error {
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

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	e := New(s, requests.New(s, 0), &fakeMessageClient{})
	return e, mock
}

// internalJoinGroup must decrement group_free_members exactly once per
// join: one SELECT FOR UPDATE read, one participant INSERT, one UPDATE
// statement — never a second decrementing UPDATE.
func TestInternalJoinGroupDecrementsCapacityExactlyOnce(t *testing.T) {
	e, mock := newTestEngine(t)

	group := &domain.Group{Gamespace: 1, GroupID: 5, Flags: domain.NewGroupFlags()}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT group_free_members FROM groups").
		WithArgs(uint64(1), uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"group_free_members"}).AddRow(3))
	mock.ExpectExec("INSERT INTO group_participants").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE groups SET group_free_members = group_free_members - 1").
		WithArgs(uint64(1), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := e.internalJoinGroup(context.Background(), group, 42, domain.MinimumRole, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInternalJoinGroupRejectsWhenFull(t *testing.T) {
	e, mock := newTestEngine(t)
	group := &domain.Group{Gamespace: 1, GroupID: 5, Flags: domain.NewGroupFlags()}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT group_free_members FROM groups").
		WillReturnRows(sqlmock.NewRows([]string{"group_free_members"}).AddRow(0))
	mock.ExpectRollback()

	err := e.internalJoinGroup(context.Background(), group, 42, domain.MinimumRole, nil, nil, nil)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindGone))
}

func TestUpdateGroupParticipationPermissionsSelfDowngradeOnly(t *testing.T) {
	e, mock := newTestEngine(t)

	group := sqlmock.NewRows([]string{
		"gamespace_id", "group_id", "group_profile", "group_flags", "group_join_method",
		"group_free_members", "group_max_members", "group_owner", "group_name",
	}).AddRow(uint64(1), uint64(5), []byte(`{}`), "", string(domain.JoinMethodFree), 10, 20, uint64(999), nil)
	mock.ExpectQuery("SELECT gamespace_id, group_id, group_profile").WillReturnRows(group)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT participation_role FROM group_participants").
		WillReturnRows(sqlmock.NewRows([]string{"participation_role"}).AddRow(500))
	mock.ExpectRollback()

	// account 42 (non-owner) tries to raise its own role from 500 to 600: rejected.
	err := e.UpdateGroupParticipationPermissions(context.Background(), 1, 5, 42, 42, 600, nil, nil)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestKickCannotTargetOwner(t *testing.T) {
	e, mock := newTestEngine(t)

	group := sqlmock.NewRows([]string{
		"gamespace_id", "group_id", "group_profile", "group_flags", "group_join_method",
		"group_free_members", "group_max_members", "group_owner", "group_name",
	}).AddRow(uint64(1), uint64(5), []byte(`{}`), "", string(domain.JoinMethodFree), 10, 20, uint64(7), nil)
	mock.ExpectQuery("SELECT gamespace_id, group_id, group_profile").WillReturnRows(group)

	err := e.Kick(context.Background(), 1, 5, 42, 7)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindNotAMember))
	require.NoError(t, mock.ExpectationsWereMet())
}
