// Package requests implements the request ledger (§4.1): per-gamespace
// pending records keyed by an opaque UUID, typed by domain.RequestType,
// with create-or-return-existing dedup and atomic single-use acquire.
package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/metrics"
	"github.com/anthill-platform/anthill-social/internal/store"
)

// Ledger persists Request rows in Postgres.
type Ledger struct {
	store  *store.Store
	expiry time.Duration
}

// New builds a Ledger with the given default expiry (§4.1: ≈7 days).
func New(s *store.Store, expiry time.Duration) *Ledger {
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &Ledger{store: s, expiry: expiry}
}

// CreateRequest returns the existing key if a row already exists for
// (gamespace, account, type, object); otherwise it inserts a fresh
// UUIDv4-keyed row and returns its key (§4.1 create-or-return-existing).
func (l *Ledger) CreateRequest(ctx context.Context, gamespace uint64, account uint64, typ domain.RequestType, object uint64, payload map[string]interface{}) (string, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Internal("failed to encode request payload", err)
	}

	var existingKey string
	row := l.store.DB.QueryRowContext(ctx, `
		SELECT key FROM requests
		WHERE gamespace_id = $1 AND account_id = $2 AND request_type = $3 AND object_id = $4
		LIMIT 1
	`, gamespace, account, string(typ), object)
	switch err := row.Scan(&existingKey); err {
	case nil:
		return existingKey, nil
	case sql.ErrNoRows:
		// fall through to insert
	default:
		return "", apperrors.Internal("failed to look up existing request", err)
	}

	key := uuid.NewString()
	now := time.Now().UTC()
	expiresAt := now.Add(l.expiry)

	_, err = l.store.DB.ExecContext(ctx, `
		INSERT INTO requests
			(gamespace_id, key, account_id, request_type, object_id, payload, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, gamespace, key, account, string(typ), object, payloadBytes, now, expiresAt)
	if err != nil {
		if store.IsDuplicate(err) {
			return "", apperrors.Conflict("request already exists for this requester and object")
		}
		return "", apperrors.Internal("failed to create request", err)
	}

	metrics.RecordRequestCreated(string(typ))
	return key, nil
}

// Acquire atomically reads and deletes the request identified by key,
// scoped to (gamespace, account) as the requester, and returns it
// parsed. Single-use: a second Acquire for the same key fails NotFound.
func (l *Ledger) Acquire(ctx context.Context, gamespace uint64, account uint64, key string) (*domain.Request, error) {
	var req domain.Request
	var payloadBytes []byte
	var typ string

	err := l.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT gamespace_id, key, account_id, request_type, object_id, payload, created_at, expires_at
			FROM requests
			WHERE gamespace_id = $1 AND account_id = $2 AND key = $3
			LIMIT 1
			FOR UPDATE
		`, gamespace, account, key)

		if err := row.Scan(&req.Gamespace, &req.Key, &req.Account, &typ, &req.Object, &payloadBytes, &req.CreatedAt, &req.ExpiresAt); err != nil {
			if err == sql.ErrNoRows {
				metrics.RecordRequestAcquired("unknown", "not_found")
				return apperrors.NotFound("request", key)
			}
			return apperrors.Internal("failed to read request", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM requests
			WHERE gamespace_id = $1 AND account_id = $2 AND request_type = $3 AND object_id = $4
		`, req.Gamespace, req.Account, typ, req.Object); err != nil {
			return apperrors.Internal("failed to consume request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordRequestAcquired(typ, "ok")

	req.Type = domain.RequestType(typ)
	if len(payloadBytes) > 0 {
		if err := json.Unmarshal(payloadBytes, &req.Payload); err != nil {
			return nil, apperrors.Internal("failed to decode request payload", err)
		}
	}

	return &req, nil
}

// Delete idempotently removes a pending request by its natural key.
func (l *Ledger) Delete(ctx context.Context, gamespace uint64, account uint64, typ domain.RequestType, object uint64) (bool, error) {
	res, err := l.store.DB.ExecContext(ctx, `
		DELETE FROM requests
		WHERE gamespace_id = $1 AND account_id = $2 AND request_type = $3 AND object_id = $4
	`, gamespace, account, string(typ), object)
	if err != nil {
		return false, apperrors.Internal("failed to delete request", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Cleanup bulk-deletes all pending requests made by account (account
// removal, §4.1).
func (l *Ledger) Cleanup(ctx context.Context, gamespace uint64, account uint64) error {
	_, err := l.store.DB.ExecContext(ctx, `
		DELETE FROM requests WHERE gamespace_id = $1 AND account_id = $2
	`, gamespace, account)
	if err != nil {
		return apperrors.Internal("failed to clean up requests", err)
	}
	return nil
}

// SweepExpired removes all rows whose expires_at has passed; meant to
// be invoked by a scheduled task (§4.1 periodic expiry).
func (l *Ledger) SweepExpired(ctx context.Context) (int64, error) {
	res, err := l.store.DB.ExecContext(ctx, `DELETE FROM requests WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, apperrors.Internal("failed to sweep expired requests", err)
	}
	n, _ := res.RowsAffected()
	metrics.RecordRequestsSwept(int(n))
	return n, nil
}
