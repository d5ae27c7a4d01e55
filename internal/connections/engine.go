// Package connections implements the bilateral Connection engine
// (§4.2): symmetric friendship rows, approval-gated or direct creation,
// deletion, and profile-decorated listing.
//
// Every connection is stored as two rows, one per direction, so a
// lookup from either side is a single indexed query. Both rows are
// always written inside one transaction; nothing here ever inserts
// just one side of the pair.
package connections

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/metrics"
	"github.com/anthill-platform/anthill-social/internal/requests"
	"github.com/anthill-platform/anthill-social/internal/rpc"
	"github.com/anthill-platform/anthill-social/internal/store"
)

const scopeConnectionApproval = "connection_approval"

// Engine implements the Connection engine operations (§4.2).
type Engine struct {
	store    *store.Store
	ledger   *requests.Ledger
	message  rpc.MessageClient
	profiles rpc.ProfileClient
}

func New(s *store.Store, ledger *requests.Ledger, message rpc.MessageClient, profiles rpc.ProfileClient) *Engine {
	return &Engine{store: s, ledger: ledger, message: message, profiles: profiles}
}

// insertSymmetricPair writes both directions of a connection inside tx.
// This is the one place that creates a Connection; every caller routes
// through it so the pair can never be written half-complete.
func insertSymmetricPair(ctx context.Context, tx *sql.Tx, gamespace, a, b uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_connections (gamespace_id, account_id, account_connection)
		VALUES ($1,$2,$3), ($1,$3,$2)
		ON CONFLICT DO NOTHING
	`, gamespace, a, b)
	if err != nil {
		return apperrors.Internal("failed to create connection", err)
	}
	return nil
}

// RequestConnection either creates a pending approval request or, when
// approval is false and the caller holds connection_approval, inserts
// the symmetric pair directly (§4.2).
func (e *Engine) RequestConnection(ctx context.Context, gamespace, account, other uint64, approval bool, callerScopes []string, notify map[string]interface{}, authoritative bool) (string, error) {
	if approval {
		key, err := e.ledger.CreateRequest(ctx, gamespace, account, domain.RequestTypeAccount, other, nil)
		if err != nil {
			return "", err
		}
		e.notifyBestEffort(ctx, gamespace, other, "connection_request", map[string]interface{}{
			"account": account,
			"key":     key,
		}, authoritative)
		return key, nil
	}

	if !hasScope(callerScopes, scopeConnectionApproval) {
		return "", apperrors.Forbidden("direct connection requires the connection_approval scope")
	}

	err := e.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertSymmetricPair(ctx, tx, gamespace, account, other)
	})
	if err != nil {
		return "", err
	}

	e.notifyBestEffort(ctx, gamespace, other, "connection_created", map[string]interface{}{
		"account": account,
	}, authoritative)
	return "", nil
}

// ApproveConnection consumes the pending request the original requester
// (other) filed against self and creates the symmetric pair, notifying
// other (§4.2). The request row is addressed by other, not self — self
// is only the approver.
func (e *Engine) ApproveConnection(ctx context.Context, gamespace, self, other uint64, key string, notify map[string]interface{}, authoritative bool) error {
	req, err := e.ledger.Acquire(ctx, gamespace, other, key)
	if err != nil {
		return err
	}
	if req.Type != domain.RequestTypeAccount {
		return apperrors.BadInput("request is not a connection request")
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertSymmetricPair(ctx, tx, gamespace, self, other)
	})
	if err != nil {
		return err
	}

	e.notifyBestEffort(ctx, gamespace, other, "connection_approved", map[string]interface{}{
		"account": self,
	}, authoritative)
	return nil
}

// RejectConnection consumes and discards the pending request other
// filed against self (§4.2). The request row is addressed by other.
func (e *Engine) RejectConnection(ctx context.Context, gamespace, self, other uint64, key string, notify map[string]interface{}, authoritative bool) error {
	if _, err := e.ledger.Acquire(ctx, gamespace, other, key); err != nil {
		return err
	}
	e.notifyBestEffort(ctx, gamespace, other, "connection_rejected", map[string]interface{}{
		"account": self,
	}, authoritative)
	return nil
}

// Delete removes both symmetric rows (§4.2).
func (e *Engine) Delete(ctx context.Context, gamespace, self, other uint64, notify map[string]interface{}, authoritative bool) error {
	_, err := e.store.DB.ExecContext(ctx, `
		DELETE FROM account_connections
		WHERE gamespace_id = $1 AND
		      ((account_id = $2 AND account_connection = $3) OR (account_id = $3 AND account_connection = $2))
	`, gamespace, self, other)
	if err != nil {
		return apperrors.Internal("failed to delete connection", err)
	}

	e.notifyBestEffort(ctx, gamespace, other, "connection_deleted", map[string]interface{}{
		"account": self,
	}, authoritative)
	return nil
}

// ListConnections returns the accounts connected to account (§4.2).
func (e *Engine) ListConnections(ctx context.Context, gamespace, account uint64) ([]uint64, error) {
	rows, err := e.store.DB.QueryContext(ctx, `
		SELECT account_connection FROM account_connections
		WHERE gamespace_id = $1 AND account_id = $2
	`, gamespace, account)
	if err != nil {
		return nil, apperrors.Internal("failed to list connections", err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var other uint64
		if err := rows.Scan(&other); err != nil {
			return nil, apperrors.Internal("failed to scan connection row", err)
		}
		out = append(out, other)
	}
	return out, rows.Err()
}

// GetConnectionsProfiles lists connections and decorates them with
// mass-fetched public profiles (§4.2).
func (e *Engine) GetConnectionsProfiles(ctx context.Context, gamespace, account uint64, profileFields []string) (map[uint64]map[string]interface{}, error) {
	others, err := e.ListConnections(ctx, gamespace, account)
	if err != nil {
		return nil, err
	}
	if len(others) == 0 {
		return map[uint64]map[string]interface{}{}, nil
	}
	profiles, err := e.profiles.MassProfiles(ctx, gamespace, others, profileFields)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch connection profiles", err)
	}
	return profiles, nil
}

// Cleanup deletes every row naming account, on either side (§4.2).
func (e *Engine) Cleanup(ctx context.Context, gamespace, account uint64) error {
	_, err := e.store.DB.ExecContext(ctx, `
		DELETE FROM account_connections
		WHERE gamespace_id = $1 AND (account_id = $2 OR account_connection = $2)
	`, gamespace, account)
	if err != nil {
		return apperrors.Internal("failed to clean up connections", err)
	}
	return nil
}

func (e *Engine) notifyBestEffort(ctx context.Context, gamespace, recipient uint64, messageType string, payload map[string]interface{}, authoritative bool) {
	if e.message == nil {
		return
	}
	sender, _ := payload["account"].(uint64)
	if err := e.message.SendMessage(ctx, gamespace, sender, "account", strconv.FormatUint(recipient, 10), messageType, payload, nil, authoritative); err != nil {
		metrics.RecordNotificationFailure(messageType)
	}
}

func hasScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
