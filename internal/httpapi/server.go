// Package httpapi exposes the engines over the representative HTTP
// surface described in §6.1. It never verifies access tokens itself —
// every route except /metrics is wrapped in requireScopes, which
// delegates to an Authenticator supplied by the caller.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/anthill-platform/anthill-social/internal/connections"
	"github.com/anthill-platform/anthill-social/internal/groups"
	"github.com/anthill-platform/anthill-social/internal/logging"
	"github.com/anthill-platform/anthill-social/internal/metrics"
	"github.com/anthill-platform/anthill-social/internal/names"
	"github.com/anthill-platform/anthill-social/internal/social"
	"github.com/anthill-platform/anthill-social/internal/tokens"
)

const (
	scopeSocial      = "social"
	scopeGroupCreate = "group_create"
	scopeGroup       = "group"
	scopeGroupWrite  = "group_write"
)

// Server wires the engines to mux routes (§6.1).
type Server struct {
	connections *connections.Engine
	groups      *groups.Engine
	tokens      *tokens.Store
	social      *social.Aggregator
	names       *names.Registry
	auth        Authenticator
	logger      *logging.Logger

	router *mux.Router
}

// NewServer builds the router. Every engine dependency is required
// except names and social, which back endpoints a deployment may omit.
// logger may be nil, in which case request logging is skipped.
func NewServer(connEngine *connections.Engine, groupEngine *groups.Engine, tokenStore *tokens.Store, aggregator *social.Aggregator, nameRegistry *names.Registry, auth Authenticator, logger *logging.Logger) *Server {
	s := &Server{
		connections: connEngine,
		groups:      groupEngine,
		tokens:      tokenStore,
		social:      aggregator,
		names:       nameRegistry,
		auth:        auth,
		logger:      logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoveryMiddleware(s.logger))
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	socialRoutes := r.PathPrefix("").Subrouter()
	socialRoutes.Use(s.requireScopes(scopeSocial))
	socialRoutes.HandleFunc("/connections", s.handleListConnections).Methods(http.MethodGet)
	socialRoutes.HandleFunc("/external", s.handleListExternal).Methods(http.MethodGet)
	socialRoutes.HandleFunc("/connection/{account}", s.handleRequestConnection).Methods(http.MethodPost)
	socialRoutes.HandleFunc("/connection/{account}", s.handleDeleteConnection).Methods(http.MethodDelete)
	socialRoutes.HandleFunc("/connection/{account}/approve", s.handleApproveConnection).Methods(http.MethodPost)
	socialRoutes.HandleFunc("/connection/{account}/reject", s.handleRejectConnection).Methods(http.MethodPost)

	group := r.PathPrefix("/group").Subrouter()

	groupCreate := group.PathPrefix("").Subrouter()
	groupCreate.Use(s.requireScopes(scopeGroupCreate))
	groupCreate.HandleFunc("/create", s.handleCreateGroup).Methods(http.MethodPost)

	groupMember := group.PathPrefix("").Subrouter()
	groupMember.Use(s.requireScopes(scopeGroup))
	groupMember.HandleFunc("/{id}", s.handleGetGroup).Methods(http.MethodGet)
	groupMember.HandleFunc("/{id}/profile", s.handleGetGroupProfile).Methods(http.MethodGet)
	groupMember.HandleFunc("/{id}/participation/{account}", s.handleGetParticipation).Methods(http.MethodGet)
	groupMember.HandleFunc("/{id}/join", s.handleJoinGroup).Methods(http.MethodPost)
	groupMember.HandleFunc("/{id}/leave", s.handleLeaveGroup).Methods(http.MethodPost)
	groupMember.HandleFunc("/{id}/request", s.handleRequestJoinGroup).Methods(http.MethodPost)
	groupMember.HandleFunc("/{id}/ownership", s.handleTransferOwnership).Methods(http.MethodPost)
	groupMember.HandleFunc("/{id}/invite/{account}", s.handleInviteToGroup).Methods(http.MethodPost)
	groupMember.HandleFunc("/{id}/approve/{account}", s.handleApproveJoinGroup).Methods(http.MethodPost)
	groupMember.HandleFunc("/{id}/reject/{account}", s.handleRejectJoinGroup).Methods(http.MethodPost)
	groupMember.HandleFunc("/{id}/participation/{account}", s.handleUpdateParticipation).Methods(http.MethodPost)
	groupMember.HandleFunc("/{id}/participation/{account}", s.handleKickParticipant).Methods(http.MethodDelete)
	groupMember.HandleFunc("/{id}/participation/{account}/permissions", s.handleUpdateParticipationPermissions).Methods(http.MethodPost)

	groupWrite := group.PathPrefix("").Subrouter()
	groupWrite.Use(s.requireScopes(scopeGroup, scopeGroupWrite))
	groupWrite.HandleFunc("/{id}", s.handleUpdateGroup).Methods(http.MethodPost)
	groupWrite.HandleFunc("/{id}/profile", s.handleUpdateGroupProfile).Methods(http.MethodPost)

	search := r.PathPrefix("").Subrouter()
	search.Use(s.requireScopes(scopeGroup))
	search.HandleFunc("/groups/search", s.handleSearchGroups).Methods(http.MethodGet)

	return r
}
