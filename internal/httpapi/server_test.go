package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/anthill-platform/anthill-social/internal/connections"
	"github.com/anthill-platform/anthill-social/internal/groups"
	"github.com/anthill-platform/anthill-social/internal/requests"
	"github.com/anthill-platform/anthill-social/internal/store"
)

type stubAuthenticator struct {
	principal Principal
	err       error
}

func (s stubAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	return s.principal, s.err
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	connEngine := connections.New(s, requests.New(s, 0), nil, nil)
	groupEngine := groups.New(s, requests.New(s, 0), nil)

	auth := stubAuthenticator{principal: Principal{Gamespace: 1, Account: 10, Scopes: []string{"social", "connection_approval", "group", "group_write", "group_create"}}}
	return NewServer(connEngine, groupEngine, nil, nil, nil, auth, nil), mock
}

func TestRequireScopesRejectsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.auth = stubAuthenticator{err: errMissingScope("social")}

	req := httptest.NewRequest(http.MethodGet, "/connections", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScopesRejectsMissingScope(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.auth = stubAuthenticator{principal: Principal{Gamespace: 1, Account: 10, Scopes: nil}}

	req := httptest.NewRequest(http.MethodGet, "/connections", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleListConnections(t *testing.T) {
	srv, mock := newTestServer(t)

	rows := sqlmock.NewRows([]string{"account_connection"}).AddRow(uint64(20)).AddRow(uint64(30))
	mock.ExpectQuery("SELECT account_connection FROM account_connections").
		WithArgs(uint64(1), uint64(10)).
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/connections", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "20")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSearchGroupsRequiresQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/groups/search", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearchGroups(t *testing.T) {
	srv, mock := newTestServer(t)

	rows := sqlmock.NewRows([]string{"group_id"}).AddRow(uint64(5))
	mock.ExpectQuery("SELECT group_id FROM groups").
		WithArgs(uint64(1), "shad:*", sqlmock.AnyArg()).
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/groups/search?query=shad", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleDeleteConnectionBadAccount(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/connection/not-a-number", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
