// Package groups implements the Group engine (§4.3): named player
// groups with role/permission-gated membership, a join-method state
// machine, and optimistic-merge profile mutation under row locks.
//
// Ownership is tracked on the group row's owner column and is always
// authoritative, independent of whatever role value the owner's
// participation happens to carry (§9, §GLOSSARY).
package groups

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/requests"
	"github.com/anthill-platform/anthill-social/internal/rpc"
	"github.com/anthill-platform/anthill-social/internal/store"
)

// Engine implements the Group engine operations (§4.3).
type Engine struct {
	store   *store.Store
	ledger  *requests.Ledger
	message rpc.MessageClient
}

func New(s *store.Store, ledger *requests.Ledger, message rpc.MessageClient) *Engine {
	return &Engine{store: s, ledger: ledger, message: message}
}

func scanGroup(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Group, error) {
	var g domain.Group
	var flags string
	var name sql.NullString
	var profileBytes []byte
	var joinMethod string

	if err := row.Scan(&g.Gamespace, &g.GroupID, &profileBytes, &flags, &joinMethod,
		&g.FreeMembers, &g.MaxMembers, &g.Owner, &name); err != nil {
		return nil, err
	}

	g.Flags = domain.NewGroupFlags(strings.Split(flags, ",")...)
	g.JoinMethod = domain.GroupJoinMethod(joinMethod)
	if name.Valid {
		g.Name = name.String
		g.HasName = true
	}
	if len(profileBytes) > 0 {
		if err := unmarshalProfile(profileBytes, &g.Profile); err != nil {
			return nil, err
		}
	}
	return &g, nil
}

func scanParticipation(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Participation, error) {
	var p domain.Participation
	var permissions string
	var profileBytes []byte

	if err := row.Scan(&p.Gamespace, &p.GroupID, &p.Account, &p.Role, &permissions, &profileBytes); err != nil {
		return nil, err
	}
	p.Permissions = domain.NewPermissions(splitNonEmpty(permissions)...)
	if len(profileBytes) > 0 {
		if err := unmarshalProfile(profileBytes, &p.Profile); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// GetGroup fetches a group by id (§4.3.5 read operations).
func (e *Engine) GetGroup(ctx context.Context, gamespace, groupID uint64) (*domain.Group, error) {
	row := e.store.DB.QueryRowContext(ctx, `
		SELECT gamespace_id, group_id, group_profile, group_flags, group_join_method,
		       group_free_members, group_max_members, group_owner, group_name
		FROM groups WHERE gamespace_id = $1 AND group_id = $2
	`, gamespace, groupID)

	g, err := scanGroup(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("group", strconv.FormatUint(groupID, 10))
		}
		return nil, apperrors.Internal("failed to get group", err)
	}
	return g, nil
}

// GetGroupParticipation fetches one membership row (§4.3.5).
func (e *Engine) GetGroupParticipation(ctx context.Context, gamespace, groupID, account uint64) (*domain.Participation, error) {
	row := e.store.DB.QueryRowContext(ctx, `
		SELECT gamespace_id, group_id, account_id, participation_role, participation_permissions, participation_profile
		FROM group_participants WHERE gamespace_id = $1 AND group_id = $2 AND account_id = $3
	`, gamespace, groupID, account)

	p, err := scanParticipation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotAMember("account is not a participant of this group")
		}
		return nil, apperrors.Internal("failed to get group participation", err)
	}
	return p, nil
}

// HasGroupParticipation reports whether account participates (§4.3.5).
func (e *Engine) HasGroupParticipation(ctx context.Context, gamespace, groupID, account uint64) (bool, error) {
	var count int
	err := e.store.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM group_participants WHERE gamespace_id = $1 AND group_id = $2 AND account_id = $3
	`, gamespace, groupID, account).Scan(&count)
	if err != nil {
		return false, apperrors.Internal("failed to check group participation", err)
	}
	return count > 0, nil
}

// CheckGroupParticipationRoleHigher reports role(a) > role(b) (§4.3.3).
func (e *Engine) CheckGroupParticipationRoleHigher(ctx context.Context, gamespace, groupID, a, b uint64) (bool, error) {
	pa, err := e.GetGroupParticipation(ctx, gamespace, groupID, a)
	if err != nil {
		return false, err
	}
	pb, err := e.GetGroupParticipation(ctx, gamespace, groupID, b)
	if err != nil {
		return false, err
	}
	return pa.Role > pb.Role, nil
}

// GetGroupMultipleParticipants fetches every requested participant,
// failing NotAMember if any account_id has no row (§4.3.5).
func (e *Engine) GetGroupMultipleParticipants(ctx context.Context, gamespace, groupID uint64, accounts []uint64) (map[uint64]*domain.Participation, error) {
	if len(accounts) == 0 {
		return nil, apperrors.BadInput("empty account id list")
	}

	rows, err := e.store.DB.QueryContext(ctx, `
		SELECT gamespace_id, group_id, account_id, participation_role, participation_permissions, participation_profile
		FROM group_participants
		WHERE gamespace_id = $1 AND group_id = $2 AND account_id = ANY($3)
	`, gamespace, groupID, pq.Array(accounts))
	if err != nil {
		return nil, apperrors.Internal("failed to get group participants", err)
	}
	defer rows.Close()

	out := make(map[uint64]*domain.Participation)
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan participant row", err)
		}
		out[p.Account] = p
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("failed to read group participants", err)
	}
	if len(out) < len(accounts) {
		return nil, apperrors.NotAMember("one or more accounts are not participants of this group")
	}
	return out, nil
}

// ListGroupParticipants returns every participant of a group (§4.3.5).
func (e *Engine) ListGroupParticipants(ctx context.Context, gamespace, groupID uint64) ([]*domain.Participation, error) {
	rows, err := e.store.DB.QueryContext(ctx, `
		SELECT gamespace_id, group_id, account_id, participation_role, participation_permissions, participation_profile
		FROM group_participants WHERE gamespace_id = $1 AND group_id = $2
	`, gamespace, groupID)
	if err != nil {
		return nil, apperrors.Internal("failed to list group participants", err)
	}
	defer rows.Close()

	var out []*domain.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan participant row", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetGroupWithParticipants fetches the group, all its participants,
// and the caller's own participation if present (§4.3.5).
func (e *Engine) GetGroupWithParticipants(ctx context.Context, gamespace, groupID, account uint64) (*domain.Group, []*domain.Participation, *domain.Participation, error) {
	g, err := e.GetGroup(ctx, gamespace, groupID)
	if err != nil {
		return nil, nil, nil, err
	}
	participants, err := e.ListGroupParticipants(ctx, gamespace, groupID)
	if err != nil {
		return nil, nil, nil, err
	}
	var mine *domain.Participation
	for _, p := range participants {
		if p.Account == account {
			mine = p
			break
		}
	}
	return g, participants, mine, nil
}

func unmarshalProfile(raw []byte, out *map[string]interface{}) error {
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
