package groups

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/jsonpatch"
	"github.com/anthill-platform/anthill-social/internal/metrics"
	"github.com/anthill-platform/anthill-social/internal/store"
)

// Join admits account to a free-join group directly, or redeems an
// invite key for an invite-method group (§4.3.2).
func (e *Engine) Join(ctx context.Context, gamespace, groupID, account uint64, participationProfile map[string]interface{}, inviteKey string, notify map[string]interface{}) error {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return err
	}
	if group.FreeMembers <= 0 {
		return apperrors.Gone("group is full")
	}

	var role int
	var permissions []string

	switch group.JoinMethod {
	case domain.JoinMethodFree:
		role = domain.MinimumRole

	case domain.JoinMethodInvite:
		if inviteKey == "" {
			return apperrors.NotAMember("group is invite-based and no invite key was passed")
		}
		req, err := e.ledger.Acquire(ctx, gamespace, account, inviteKey)
		if err != nil {
			return err
		}
		if req.Type != domain.RequestTypeGroup {
			return apperrors.BadInput("request is not a group invite")
		}
		if req.Object != groupID {
			return apperrors.NotAMember("this invite key is not for this group")
		}
		role = intFromPayload(req.Payload, "role", domain.MinimumRole)
		permissions = stringsFromPayload(req.Payload, "permissions")

	default:
		return apperrors.Conflict("group join method is not free or invite, it is: " + string(group.JoinMethod))
	}

	return e.internalJoinGroup(ctx, group, account, role, participationProfile, permissions, notify)
}

// JoinGroupRequest files an approve-method join request against the
// group owner/approvers (§4.3.2).
func (e *Engine) JoinGroupRequest(ctx context.Context, gamespace, groupID, account uint64, participationProfile map[string]interface{}, notify map[string]interface{}) (string, error) {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return "", err
	}
	if group.FreeMembers <= 0 {
		return "", apperrors.Gone("group is full")
	}
	if group.JoinMethod != domain.JoinMethodApprove {
		return "", apperrors.Conflict("this group join cannot be requested, it is: " + string(group.JoinMethod))
	}

	has, err := e.HasGroupParticipation(ctx, gamespace, groupID, account)
	if err != nil {
		return "", err
	}
	if has {
		return "", apperrors.NotAMember("player is already in this group")
	}

	key, err := e.ledger.CreateRequest(ctx, gamespace, account, domain.RequestTypeGroup, groupID, map[string]interface{}{
		"participation_profile": participationProfile,
	})
	if err != nil {
		return "", err
	}

	if notify != nil && group.Flags.Has(domain.MessageSupport) {
		notify["key"] = key
		e.notifyGroup(ctx, gamespace, groupID, account, "group_request", notify)
	}
	return key, nil
}

// InviteToGroup issues an invite-method join key to invitee. A
// non-owner inviter needs send_invite and may not invite at a role
// above their own; their permission grant is capped to their own
// permission set (§4.3.2, §4.3.3).
func (e *Engine) InviteToGroup(ctx context.Context, gamespace, groupID, inviter, invitee uint64, role int, permissions []string, notify map[string]interface{}) (string, error) {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return "", err
	}
	if group.FreeMembers <= 0 {
		return "", apperrors.Gone("group is full")
	}
	if group.JoinMethod != domain.JoinMethodInvite {
		return "", apperrors.Conflict("this group is not invite-based, it is: " + string(group.JoinMethod))
	}

	if !group.IsOwner(inviter) {
		participation, err := e.GetGroupParticipation(ctx, gamespace, groupID, inviter)
		if err != nil {
			return "", err
		}
		if !participation.HasPermission(domain.PermissionSendInvite) {
			return "", apperrors.NotAMember("you have no permission to send invites")
		}
		permissions = participation.Permissions.Intersect(permissions)
		if role > participation.Role {
			return "", apperrors.Conflict("invited role cannot be higher than your own")
		}
	}

	key, err := e.ledger.CreateRequest(ctx, gamespace, invitee, domain.RequestTypeGroup, groupID, map[string]interface{}{
		"role":        role,
		"permissions": permissions,
	})
	if err != nil {
		return "", err
	}

	if notify != nil && group.Flags.Has(domain.MessageSupport) {
		notify["invite_group_id"] = strconv.FormatUint(groupID, 10)
		notify["key"] = key
		e.notifyGroup(ctx, gamespace, groupID, inviter, "group_invite", notify)
	}
	return key, nil
}

// ApproveJoinGroup redeems an approve-method join request. A non-owner
// approver needs request_approval and may not approve at a role above
// their own; their permission grant is capped to their own permission
// set (§4.3.2, §4.3.3).
func (e *Engine) ApproveJoinGroup(ctx context.Context, gamespace, groupID, approver, applicant uint64, role int, key string, permissions []string, notify map[string]interface{}) error {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return err
	}
	if group.FreeMembers <= 0 {
		return apperrors.Gone("group is full")
	}
	if group.JoinMethod != domain.JoinMethodApprove {
		return apperrors.Conflict("this group is not approve-based, it is: " + string(group.JoinMethod))
	}

	if !group.IsOwner(approver) {
		participation, err := e.GetGroupParticipation(ctx, gamespace, groupID, approver)
		if err != nil {
			return err
		}
		if !participation.HasPermission(domain.PermissionRequestApproval) {
			return apperrors.NotAMember("you have no permission to approve join requests")
		}
		permissions = participation.Permissions.Intersect(permissions)
		if role > participation.Role {
			return apperrors.Conflict("approved role cannot be higher than your own")
		}
	}

	req, err := e.ledger.Acquire(ctx, gamespace, applicant, key)
	if err != nil {
		return err
	}
	if req.Type != domain.RequestTypeGroup {
		return apperrors.BadInput("request is not a group join request")
	}
	if req.Object != groupID {
		return apperrors.NotAMember("this request key is not for this group")
	}

	participationProfile := mapFromPayload(req.Payload, "participation_profile")

	if err := e.internalJoinGroup(ctx, group, applicant, role, participationProfile, permissions, notify); err != nil {
		return err
	}

	if notify != nil && group.Flags.Has(domain.MessageSupport) {
		notify["approved_by"] = strconv.FormatUint(approver, 10)
		e.notifyGroup(ctx, gamespace, groupID, applicant, "group_request_approved", notify)
	}
	return nil
}

// internalJoinGroup admits account under a row lock on the group's
// capacity counter: the counter is checked and decremented exactly
// once inside the same transaction as the participant insert, so a
// race for the last slot can never overcommit membership (§4.3.1).
func (e *Engine) internalJoinGroup(ctx context.Context, group *domain.Group, account uint64, role int, participationProfile map[string]interface{}, permissions []string, notify map[string]interface{}) error {
	if group.Flags.Has(domain.MessageSupport) && e.message != nil {
		if err := e.message.JoinGroup(ctx, group.Gamespace, domain.GroupClass, strconv.FormatUint(group.GroupID, 10), account, "member", notify); err != nil {
			return apperrors.Internal("failed to join message group", err)
		}
	}

	profileBytes, err := jsonpatch.Replace(participationProfile)
	if err != nil {
		return apperrors.Internal("failed to encode participation profile", err)
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var freeMembers int
		row := tx.QueryRowContext(ctx, `
			SELECT group_free_members FROM groups WHERE gamespace_id = $1 AND group_id = $2 LIMIT 1 FOR UPDATE
		`, group.Gamespace, group.GroupID)
		if err := row.Scan(&freeMembers); err != nil {
			return apperrors.Internal("failed to read group capacity", err)
		}
		if freeMembers <= 0 {
			return apperrors.Gone("the group is full")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_participants
				(gamespace_id, group_id, account_id, participation_role, participation_permissions, participation_profile)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, group.Gamespace, group.GroupID, account, role, domain.NewPermissions(permissions...).String(), profileBytes); err != nil {
			if store.IsDuplicate(err) {
				return apperrors.Conflict("account has already joined this group")
			}
			return apperrors.Internal("failed to join group", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE groups SET group_free_members = group_free_members - 1
			WHERE gamespace_id = $1 AND group_id = $2
		`, group.Gamespace, group.GroupID); err != nil {
			return apperrors.Internal("failed to update group capacity", err)
		}
		return nil
	})

	switch {
	case err == nil:
		metrics.RecordGroupJoin("ok")
	case apperrors.Is(err, apperrors.KindGone):
		metrics.RecordGroupJoin("full")
	case apperrors.Is(err, apperrors.KindConflict):
		metrics.RecordGroupJoin("conflict")
	default:
		metrics.RecordGroupJoin("error")
	}
	return err
}

// RejectRequest discards the pending request filed under account with
// the given key; it serves both rejecting a group invitation and
// rejecting a join request (§4.3.2).
func (e *Engine) RejectRequest(ctx context.Context, gamespace, account uint64, key string) error {
	_, err := e.ledger.Acquire(ctx, gamespace, account, key)
	return err
}

func intFromPayload(payload map[string]interface{}, key string, fallback int) int {
	v, ok := payload[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func stringsFromPayload(payload map[string]interface{}, key string) []string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapFromPayload(payload map[string]interface{}, key string) map[string]interface{} {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}
