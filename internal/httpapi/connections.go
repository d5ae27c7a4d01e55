package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
)

const scopeMessageAuthoritative = "message_authoritative"

type notifyRequest struct {
	Notify map[string]interface{} `json:"notify"`
}

func (p Principal) authoritative() bool {
	return p.HasScope(scopeMessageAuthoritative)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	fields := splitCSV(r.URL.Query().Get("profile_fields"))
	if len(fields) == 0 {
		others, err := s.connections.ListConnections(r.Context(), principal.Gamespace, principal.Account)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"connections": others})
		return
	}

	profiles, err := s.connections.GetConnectionsProfiles(r.Context(), principal.Gamespace, principal.Account, fields)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"connections": profiles})
}

func (s *Server) handleListExternal(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	if s.social == nil {
		writeDomainError(w, apperrors.NotFound("external social aggregation", "not configured"))
		return
	}

	fields := splitCSV(r.URL.Query().Get("profile_fields"))
	friends, err := s.social.ListFriends(r.Context(), principal.Gamespace, principal.Account, fields)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"external": friends})
}

func (s *Server) handleRequestConnection(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	target, err := resolveTarget(mux.Vars(r)["account"], principal.Account)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	var body notifyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &body); err != nil {
			writeDomainError(w, apperrors.BadInput("malformed request body"))
			return
		}
	}

	approval := r.URL.Query().Get("approval") != "false"

	key, err := s.connections.RequestConnection(r.Context(), principal.Gamespace, principal.Account, target, approval, principal.Scopes, body.Notify, principal.authoritative())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key})
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	target, err := uintParam(r, "account")
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	var body notifyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &body); err != nil {
			writeDomainError(w, apperrors.BadInput("malformed request body"))
			return
		}
	}

	if err := s.connections.Delete(r.Context(), principal.Gamespace, principal.Account, target, body.Notify, principal.authoritative()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleApproveConnection(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	other, err := uintParam(r, "account")
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeDomainError(w, apperrors.BadInput("key is required"))
		return
	}

	var body notifyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &body); err != nil {
			writeDomainError(w, apperrors.BadInput("malformed request body"))
			return
		}
	}

	if err := s.connections.ApproveConnection(r.Context(), principal.Gamespace, principal.Account, other, key, body.Notify, principal.authoritative()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleRejectConnection(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	other, err := uintParam(r, "account")
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeDomainError(w, apperrors.BadInput("key is required"))
		return
	}

	var body notifyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &body); err != nil {
			writeDomainError(w, apperrors.BadInput("malformed request body"))
			return
		}
	}

	if err := s.connections.RejectConnection(r.Context(), principal.Gamespace, principal.Account, other, key, body.Notify, principal.authoritative()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}
