package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/groups"
)

type createGroupRequest struct {
	Profile              map[string]interface{} `json:"profile"`
	Flags                []string                `json:"flags"`
	JoinMethod           string                  `json:"join_method"`
	MaxMembers           int                     `json:"max_members"`
	ParticipationProfile map[string]interface{}  `json:"participation_profile"`
	Name                 string                  `json:"name"`
}

type mutateRequest struct {
	Payload map[string]interface{} `json:"payload"`
	Merge   bool                   `json:"merge"`
	Notify  map[string]interface{} `json:"notify"`
}

type joinRequest struct {
	Profile map[string]interface{} `json:"profile"`
	Key     string                 `json:"key"`
	Notify  map[string]interface{} `json:"notify"`
}

type inviteRequest struct {
	Role        int                     `json:"role"`
	Permissions []string                `json:"permissions"`
	Notify      map[string]interface{}  `json:"notify"`
}

type approveJoinRequest struct {
	Role        int                    `json:"role"`
	Key         string                 `json:"key"`
	Permissions []string               `json:"permissions"`
	Notify      map[string]interface{} `json:"notify"`
}

type transferOwnershipRequest struct {
	TransferTo uint64                  `json:"transfer_to"`
	Notify     map[string]interface{}  `json:"notify"`
}

func (s *Server) groupID(r *http.Request) (uint64, error) {
	return uintParam(r, "id")
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	var body createGroupRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeDomainError(w, apperrors.BadInput("malformed request body"))
		return
	}
	if body.MaxMembers == 0 {
		body.MaxMembers = domain.DefaultMaxMembers
	}

	joinMethod := domain.GroupJoinMethod(body.JoinMethod)
	if joinMethod == "" {
		joinMethod = domain.JoinMethodFree
	}

	groupID, err := s.groups.CreateGroup(r.Context(), groups.CreateGroupInput{
		Gamespace:            principal.Gamespace,
		Profile:              body.Profile,
		Flags:                domain.NewGroupFlags(body.Flags...),
		JoinMethod:           joinMethod,
		MaxMembers:           body.MaxMembers,
		Owner:                principal.Account,
		ParticipationProfile: body.ParticipationProfile,
		Name:                 body.Name,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"group_id": groupID})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}

	group, participants, self, err := s.groups.GetGroupWithParticipants(r.Context(), principal.Gamespace, groupID, principal.Account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group":        group,
		"participants": participants,
		"me":           self,
	})
}

func (s *Server) handleGetGroupProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}
	group, err := s.groups.GetGroup(r.Context(), principal.Gamespace, groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group.Profile)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}

	var body mutateRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeDomainError(w, apperrors.BadInput("malformed request body"))
		return
	}

	result, err := s.groups.UpdateGroup(r.Context(), principal.Gamespace, groupID, principal.Account, body.Payload, body.Merge, body.Notify)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateGroupProfile(w http.ResponseWriter, r *http.Request) {
	s.handleUpdateGroup(w, r)
}

func (s *Server) handleGetParticipation(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}
	target, err := resolveTarget(mux.Vars(r)["account"], principal.Account)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	participation, err := s.groups.GetGroupParticipation(r.Context(), principal.Gamespace, groupID, target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participation)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}

	var body joinRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &body); err != nil {
			writeDomainError(w, apperrors.BadInput("malformed request body"))
			return
		}
	}

	if err := s.groups.Join(r.Context(), principal.Gamespace, groupID, principal.Account, body.Profile, body.Key, body.Notify); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleRequestJoinGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}

	var body joinRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &body); err != nil {
			writeDomainError(w, apperrors.BadInput("malformed request body"))
			return
		}
	}

	key, err := s.groups.JoinGroupRequest(r.Context(), principal.Gamespace, groupID, principal.Account, body.Profile, body.Notify)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key})
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}

	var body notifyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &body); err != nil {
			writeDomainError(w, apperrors.BadInput("malformed request body"))
			return
		}
	}

	if err := s.groups.Leave(r.Context(), principal.Gamespace, groupID, principal.Account, body.Notify); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleInviteToGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}
	invitee, err := uintParam(r, "account")
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	var body inviteRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeDomainError(w, apperrors.BadInput("malformed request body"))
		return
	}

	key, err := s.groups.InviteToGroup(r.Context(), principal.Gamespace, groupID, principal.Account, invitee, body.Role, body.Permissions, body.Notify)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key})
}

func (s *Server) handleApproveJoinGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}
	applicant, err := uintParam(r, "account")
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	var body approveJoinRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeDomainError(w, apperrors.BadInput("malformed request body"))
		return
	}

	if err := s.groups.ApproveJoinGroup(r.Context(), principal.Gamespace, groupID, principal.Account, applicant, body.Role, body.Key, body.Permissions, body.Notify); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleRejectJoinGroup(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	requester, err := resolveTarget(mux.Vars(r)["account"], principal.Account)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	var body struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r.Body, &body); err != nil {
		writeDomainError(w, apperrors.BadInput("malformed request body"))
		return
	}

	if err := s.groups.RejectRequest(r.Context(), principal.Gamespace, requester, body.Key); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleUpdateParticipation(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}
	target, err := resolveTarget(mux.Vars(r)["account"], principal.Account)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	var body mutateRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeDomainError(w, apperrors.BadInput("malformed request body"))
		return
	}

	result, err := s.groups.UpdateGroupParticipation(r.Context(), principal.Gamespace, groupID, principal.Account, target, body.Payload, body.Merge, body.Notify)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleKickParticipant(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}
	target, err := uintParam(r, "account")
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	if err := s.groups.Kick(r.Context(), principal.Gamespace, groupID, principal.Account, target); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleUpdateParticipationPermissions(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}
	target, err := resolveTarget(mux.Vars(r)["account"], principal.Account)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid account"))
		return
	}

	var body inviteRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeDomainError(w, apperrors.BadInput("malformed request body"))
		return
	}

	if err := s.groups.UpdateGroupParticipationPermissions(r.Context(), principal.Gamespace, groupID, principal.Account, target, body.Role, body.Permissions, body.Notify); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	groupID, err := s.groupID(r)
	if err != nil {
		writeDomainError(w, apperrors.BadInput("invalid group id"))
		return
	}

	var body transferOwnershipRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeDomainError(w, apperrors.BadInput("malformed request body"))
		return
	}

	if err := s.groups.TransferOwnership(r.Context(), principal.Gamespace, groupID, principal.Account, body.TransferTo, body.Notify); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleSearchGroups(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	query := r.URL.Query().Get("query")
	if query == "" {
		writeDomainError(w, apperrors.BadInput("query is required"))
		return
	}

	ids, err := s.groups.SearchGroups(r.Context(), principal.Gamespace, query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": ids})
}
