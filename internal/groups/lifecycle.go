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

// CreateGroupInput carries the parameters for CreateGroup (§4.3.5).
type CreateGroupInput struct {
	Gamespace             uint64
	Profile               map[string]interface{}
	Flags                 domain.GroupFlags
	JoinMethod            domain.GroupJoinMethod
	MaxMembers            int
	Owner                 uint64
	ParticipationProfile  map[string]interface{}
	Name                  string
}

// CreateGroup validates capacity bounds, inserts the group and its
// owner participation, and — if MESSAGE_SUPPORT is set — registers the
// group with the message service, rolling the whole creation back on
// failure (§4.3.5).
func (e *Engine) CreateGroup(ctx context.Context, in CreateGroupInput) (uint64, error) {
	if in.MaxMembers < domain.MinMembersLimit {
		return 0, apperrors.BadInput("max_members cannot be less than " + strconv.Itoa(domain.MinMembersLimit))
	}
	if in.MaxMembers > domain.MaxMembersLimit {
		return 0, apperrors.BadInput("max_members cannot be more than " + strconv.Itoa(domain.MaxMembersLimit))
	}

	freeMembers := in.MaxMembers - 1 // owner occupies one slot

	profileBytes, err := jsonpatch.Replace(in.Profile)
	if err != nil {
		return 0, apperrors.Internal("failed to encode group profile", err)
	}
	participationProfileBytes, err := jsonpatch.Replace(in.ParticipationProfile)
	if err != nil {
		return 0, apperrors.Internal("failed to encode participation profile", err)
	}

	var groupID uint64
	var name sql.NullString
	if in.Name != "" {
		name = sql.NullString{String: in.Name, Valid: true}
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO groups
				(gamespace_id, group_profile, group_flags, group_join_method, group_free_members, group_max_members, group_owner, group_name)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING group_id
		`, in.Gamespace, profileBytes, in.Flags.String(), string(in.JoinMethod), freeMembers, in.MaxMembers, in.Owner, name)
		if err := row.Scan(&groupID); err != nil {
			return apperrors.Internal("failed to create group", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_participants
				(gamespace_id, group_id, account_id, participation_role, participation_permissions, participation_profile)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, in.Gamespace, groupID, in.Owner, domain.MaximumRole, "", participationProfileBytes)
		if err != nil {
			return apperrors.Internal("failed to join the owner to their own group", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if in.Flags.Has(domain.MessageSupport) && e.message != nil {
		if err := e.message.CreateGroup(ctx, in.Gamespace, domain.GroupClass, strconv.FormatUint(groupID, 10), in.Owner, "member"); err != nil {
			_ = e.DeleteGroup(ctx, in.Gamespace, groupID)
			return 0, apperrors.Internal("failed to register group with message service", err)
		}
	}

	return groupID, nil
}

// DeleteGroup removes participants then the group row (§4.3.5 cascade).
func (e *Engine) DeleteGroup(ctx context.Context, gamespace, groupID uint64) error {
	return e.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_participants WHERE gamespace_id = $1 AND group_id = $2`, gamespace, groupID); err != nil {
			return apperrors.Internal("failed to delete group participants", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE gamespace_id = $1 AND group_id = $2`, gamespace, groupID); err != nil {
			return apperrors.Internal("failed to delete group", err)
		}
		return nil
	})
}

// UpdateGroup merges or replaces the group profile under a row lock
// (§4.3.4) and notifies participants of the change.
func (e *Engine) UpdateGroup(ctx context.Context, gamespace, groupID, account uint64, patch map[string]interface{}, merge bool, notify map[string]interface{}) (map[string]interface{}, error) {
	if has, err := e.HasGroupParticipation(ctx, gamespace, groupID, account); err != nil {
		return nil, err
	} else if !has {
		return nil, apperrors.NotFound("group participation", strconv.FormatUint(account, 10))
	}

	result, err := e.mutateGroupProfile(ctx, gamespace, groupID, patch, merge)
	if err != nil {
		return nil, err
	}

	if notify != nil {
		e.notifyGroup(ctx, gamespace, groupID, account, "group_profile_updated", notify)
	}
	return result, nil
}

// UpdateGroupParticipation merges or replaces a participant's own
// profile blob, subject to the editing-another-player's-profile rule
// (§4.3.3, §4.3.4).
func (e *Engine) UpdateGroupParticipation(ctx context.Context, gamespace, groupID, updater, target uint64, patch map[string]interface{}, merge bool, notify map[string]interface{}) (map[string]interface{}, error) {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return nil, err
	}

	if !group.IsOwner(updater) && updater != target {
		higher, err := e.CheckGroupParticipationRoleHigher(ctx, gamespace, groupID, updater, target)
		if err != nil {
			return nil, err
		}
		if !higher {
			return nil, apperrors.Forbidden("your role should be higher to edit another player's participation profile")
		}
	}

	result, err := e.mutateParticipationProfile(ctx, gamespace, groupID, target, patch, merge)
	if err != nil {
		return nil, err
	}

	if notify != nil {
		e.notifyGroup(ctx, gamespace, groupID, updater, "participation_profile_updated", notify)
	}
	return result, nil
}

// mutateGroupProfile reads group_profile under FOR UPDATE, applies the
// patch, and writes it back inside the same transaction (§4.3.4).
func (e *Engine) mutateGroupProfile(ctx context.Context, gamespace, groupID uint64, patch map[string]interface{}, merge bool) (map[string]interface{}, error) {
	var raw []byte
	err := e.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT group_profile FROM groups WHERE gamespace_id = $1 AND group_id = $2 LIMIT 1 FOR UPDATE
		`, gamespace, groupID)
		if err := row.Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				return apperrors.NotFound("group", strconv.FormatUint(groupID, 10))
			}
			return apperrors.Internal("failed to read group profile", err)
		}

		next, err := applyPatch(raw, patch, merge)
		if err != nil {
			return err
		}
		raw = next

		if _, err := tx.ExecContext(ctx, `
			UPDATE groups SET group_profile = $1 WHERE gamespace_id = $2 AND group_id = $3
		`, raw, gamespace, groupID); err != nil {
			return apperrors.Internal("failed to write group profile", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := unmarshalProfile(raw, &out); err != nil {
		return nil, apperrors.Internal("failed to decode updated profile", err)
	}
	return out, nil
}

// mutateParticipationProfile is mutateGroupProfile's analogue for a
// single participant's profile column (§4.3.4).
func (e *Engine) mutateParticipationProfile(ctx context.Context, gamespace, groupID, account uint64, patch map[string]interface{}, merge bool) (map[string]interface{}, error) {
	var raw []byte
	err := e.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT participation_profile FROM group_participants
			WHERE gamespace_id = $1 AND group_id = $2 AND account_id = $3 LIMIT 1 FOR UPDATE
		`, gamespace, groupID, account)
		if err := row.Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				return apperrors.NotAMember("account is not a participant of this group")
			}
			return apperrors.Internal("failed to read participation profile", err)
		}

		next, err := applyPatch(raw, patch, merge)
		if err != nil {
			return err
		}
		raw = next

		if _, err := tx.ExecContext(ctx, `
			UPDATE group_participants SET participation_profile = $1
			WHERE gamespace_id = $2 AND group_id = $3 AND account_id = $4
		`, raw, gamespace, groupID, account); err != nil {
			return apperrors.Internal("failed to write participation profile", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := unmarshalProfile(raw, &out); err != nil {
		return nil, apperrors.Internal("failed to decode updated profile", err)
	}
	return out, nil
}

func applyPatch(raw []byte, patch map[string]interface{}, merge bool) ([]byte, error) {
	if merge {
		next, err := jsonpatch.Merge(raw, patch)
		if err != nil {
			return nil, apperrors.BadInput(err.Error())
		}
		return next, nil
	}
	next, err := jsonpatch.Replace(patch)
	if err != nil {
		return nil, apperrors.Internal("failed to encode profile replacement", err)
	}
	return next, nil
}

func (e *Engine) notifyGroup(ctx context.Context, gamespace, groupID, sender uint64, messageType string, payload map[string]interface{}) {
	if e.message == nil {
		return
	}
	if err := e.message.SendMessage(ctx, gamespace, sender, domain.GroupClass, strconv.FormatUint(groupID, 10), messageType, payload, nil, false); err != nil {
		metrics.RecordNotificationFailure(messageType)
	}
}

// UpdateGroupParticipationPermissions implements the three-way role
// algebra of §4.3.3: the owner may set anything; a member editing their
// own role may only lower it; a member editing another's role and
// permissions needs a strictly higher role than the target, may only
// assign a role below their own (Forbidden otherwise), and has the
// granted permissions intersected with their own permission set.
func (e *Engine) UpdateGroupParticipationPermissions(ctx context.Context, gamespace, groupID, updater, target uint64, role int, permissions []string, notify map[string]interface{}) error {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return err
	}

	var roleCheck func(old int) bool

	if !group.IsOwner(updater) {
		if updater == target {
			roleCheck = func(old int) bool { return old >= role } // lower or equal only
		} else {
			actor, err := e.GetGroupParticipation(ctx, gamespace, groupID, updater)
			if err != nil {
				return err
			}
			if role >= actor.Role {
				return apperrors.Forbidden("you cannot set a role greater than or equal to your own")
			}
			permissions = actor.Permissions.Intersect(permissions)
			myRole := actor.Role
			roleCheck = func(old int) bool { return myRole > old }
		}
	}

	if err := e.setParticipationRole(ctx, gamespace, groupID, target, role, permissions, roleCheck); err != nil {
		return err
	}

	if notify != nil {
		e.notifyGroup(ctx, gamespace, groupID, updater, "permissions_updated", notify)
	}
	return nil
}

func (e *Engine) setParticipationRole(ctx context.Context, gamespace, groupID, account uint64, role int, permissions []string, roleCheck func(old int) bool) error {
	return e.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var oldRole int
		row := tx.QueryRowContext(ctx, `
			SELECT participation_role FROM group_participants
			WHERE gamespace_id = $1 AND group_id = $2 AND account_id = $3 LIMIT 1 FOR UPDATE
		`, gamespace, groupID, account)
		if err := row.Scan(&oldRole); err != nil {
			if err == sql.ErrNoRows {
				return apperrors.NotAMember("account is not a participant of this group")
			}
			return apperrors.Internal("failed to read participation role", err)
		}

		if roleCheck != nil && !roleCheck(oldRole) {
			return apperrors.Conflict("cannot update role")
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE group_participants SET participation_role = $1, participation_permissions = $2
			WHERE gamespace_id = $3 AND group_id = $4 AND account_id = $5
		`, role, domain.NewPermissions(permissions...).String(), gamespace, groupID, account); err != nil {
			return apperrors.Internal("failed to update participation role", err)
		}
		return nil
	})
}

// TransferOwnership reassigns group.owner to an existing participant
// (§4.3.3, §4.3.5).
func (e *Engine) TransferOwnership(ctx context.Context, gamespace, groupID, account, transferTo uint64, notify map[string]interface{}) error {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return err
	}
	if !group.IsOwner(account) {
		return apperrors.Conflict("you are not the owner of this group")
	}

	has, err := e.HasGroupParticipation(ctx, gamespace, groupID, transferTo)
	if err != nil {
		return err
	}
	if !has {
		return apperrors.Forbidden("transfer target is not a participant of this group")
	}

	if _, err := e.store.DB.ExecContext(ctx, `
		UPDATE groups SET group_owner = $1 WHERE gamespace_id = $2 AND group_id = $3
	`, transferTo, gamespace, groupID); err != nil {
		return apperrors.Internal("failed to transfer ownership", err)
	}

	if notify != nil {
		e.notifyGroup(ctx, gamespace, groupID, account, "ownership_transferred", notify)
	}
	return nil
}

// Leave removes a non-owner participant. The owner must transfer
// ownership first (§4.3.3). When the group is MESSAGE_SUPPORT-flagged,
// the message service is informed before the local row is removed, and
// failure here is fatal — unlike the other notifications in this
// package (§6.2).
func (e *Engine) Leave(ctx context.Context, gamespace, groupID, account uint64, notify map[string]interface{}) error {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return err
	}
	return e.leaveLocked(ctx, group, account, notify)
}

func (e *Engine) leaveLocked(ctx context.Context, group *domain.Group, account uint64, notify map[string]interface{}) error {
	if group.IsOwner(account) {
		return apperrors.Conflict("group owner cannot leave a group, transfer ownership first")
	}

	if group.Flags.Has(domain.MessageSupport) && e.message != nil {
		if err := e.message.LeaveGroup(ctx, group.Gamespace, domain.GroupClass, strconv.FormatUint(group.GroupID, 10), account, notify); err != nil {
			return apperrors.Internal("failed to leave message group", err)
		}
	}

	if _, err := e.store.DB.ExecContext(ctx, `
		DELETE FROM group_participants WHERE gamespace_id = $1 AND group_id = $2 AND account_id = $3
	`, group.Gamespace, group.GroupID, account); err != nil {
		return apperrors.Internal("failed to leave group", err)
	}
	return nil
}

// Kick removes a participant on another member's initiative. The owner
// may kick anyone but cannot be kicked; a non-owner kicker needs the
// kick permission and a strictly higher role than the target (§4.3.3).
func (e *Engine) Kick(ctx context.Context, gamespace, groupID, kicker, account uint64) error {
	group, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return err
	}
	if group.IsOwner(account) {
		return apperrors.NotAMember("you cannot kick the group owner")
	}

	if !group.IsOwner(kicker) {
		participants, err := e.GetGroupMultipleParticipants(ctx, gamespace, groupID, []uint64{kicker, account})
		if err != nil {
			return err
		}
		if !participants[kicker].HasPermission(domain.PermissionKick) {
			return apperrors.NotAMember("you have no permission to kick")
		}
		if participants[account].Role >= participants[kicker].Role {
			return apperrors.NotAMember("you cannot kick a player with a higher or equal role")
		}
	}

	return e.leaveLocked(ctx, group, account, nil)
}
