// Package tokens implements the Token store (§4.4): the mapping from
// an external (credential, username) pair to a platform account, plus
// whatever payload the provider attached (OAuth access token, scopes).
package tokens

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/store"
)

// Store implements the token operations of §4.4.
type Store struct {
	store *store.Store
}

func New(s *store.Store) *Store {
	return &Store{store: s}
}

func scanToken(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Token, error) {
	var t domain.Token
	var account sql.NullInt64
	var expiresAt sql.NullTime
	var payloadBytes []byte

	if err := row.Scan(&t.Gamespace, &t.Credential, &t.Username, &account, &t.AccessToken, &expiresAt, &payloadBytes); err != nil {
		return nil, err
	}
	if account.Valid {
		a := uint64(account.Int64)
		t.Account = &a
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if len(payloadBytes) > 0 {
		if err := json.Unmarshal(payloadBytes, &t.Payload); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// Attach binds a previously-imported token row to an account (§4.4).
func (s *Store) Attach(ctx context.Context, gamespace uint64, credential, username string, account uint64) error {
	res, err := s.store.DB.ExecContext(ctx, `
		UPDATE credential_tokens SET account_id = $1
		WHERE gamespace_id = $2 AND credential = $3 AND username = $4
	`, account, gamespace, credential, username)
	if err != nil {
		return apperrors.Internal("failed to attach account to token", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("credential token", credential+":"+username)
	}
	return nil
}

// GetToken fetches the token a given account holds for credential
// (§4.4).
func (s *Store) GetToken(ctx context.Context, gamespace, account uint64, credential string) (*domain.Token, error) {
	row := s.store.DB.QueryRowContext(ctx, `
		SELECT gamespace_id, credential, username, account_id, access_token, expires_at, payload
		FROM credential_tokens
		WHERE gamespace_id = $1 AND account_id = $2 AND credential = $3
		LIMIT 1
	`, gamespace, account, credential)

	t, err := scanToken(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("credential token", credential)
		}
		return nil, apperrors.Internal("failed to get social token", err)
	}
	return t, nil
}

// GetCredential fetches a token by its external identity, regardless
// of whether it has been attached to an account (§4.4).
func (s *Store) GetCredential(ctx context.Context, gamespace uint64, credential, username string) (*domain.Token, error) {
	row := s.store.DB.QueryRowContext(ctx, `
		SELECT gamespace_id, credential, username, account_id, access_token, expires_at, payload
		FROM credential_tokens
		WHERE gamespace_id = $1 AND credential = $2 AND username = $3
		LIMIT 1
	`, gamespace, credential, username)

	t, err := scanToken(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("credential token", credential+":"+username)
		}
		return nil, apperrors.Internal("failed to get token credential", err)
	}
	return t, nil
}

// LookupAccounts bulk-resolves merged_credential strings ("credential:username")
// to platform account ids, omitting any that aren't attached (§4.4).
func (s *Store) LookupAccounts(ctx context.Context, gamespace uint64, mergedCredentials []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(mergedCredentials))
	if len(mergedCredentials) == 0 {
		return out, nil
	}

	rows, err := s.store.DB.QueryContext(ctx, `
		SELECT credential, username, account_id
		FROM credential_tokens
		WHERE gamespace_id = $1 AND account_id IS NOT NULL AND
		      (credential || ':' || username) = ANY($2::text[])
	`, gamespace, pq.Array(mergedCredentials))
	if err != nil {
		return nil, apperrors.Internal("failed to look up accounts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var credential, username string
		var account uint64
		if err := rows.Scan(&credential, &username, &account); err != nil {
			return nil, apperrors.Internal("failed to scan account lookup row", err)
		}
		out[credential+":"+username] = account
	}
	return out, rows.Err()
}

// ListTokens lists every token attached to account (§4.4).
func (s *Store) ListTokens(ctx context.Context, gamespace, account uint64) ([]*domain.Token, error) {
	rows, err := s.store.DB.QueryContext(ctx, `
		SELECT gamespace_id, credential, username, account_id, access_token, expires_at, payload
		FROM credential_tokens
		WHERE gamespace_id = $1 AND account_id = $2
	`, gamespace, account)
	if err != nil {
		return nil, apperrors.Internal("failed to list tokens", err)
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan token row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateToken inserts a new row if none exists for (credential,
// username), or otherwise refreshes the access token and shallow-merges
// data into the stored payload. Returns the account the token is bound
// to, if any (§4.4).
func (s *Store) UpdateToken(ctx context.Context, gamespace uint64, credential, username, accessToken string, expiresAt *time.Time, data map[string]interface{}) (*uint64, error) {
	existing, err := s.GetCredential(ctx, gamespace, credential, username)
	if err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
		return nil, err
	}

	if existing == nil {
		if data == nil {
			data = map[string]interface{}{}
		}
		payloadBytes, err := json.Marshal(data)
		if err != nil {
			return nil, apperrors.Internal("failed to encode token payload", err)
		}

		_, err = s.store.DB.ExecContext(ctx, `
			INSERT INTO credential_tokens (gamespace_id, credential, username, access_token, expires_at, payload)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, gamespace, credential, username, accessToken, expiresAt, payloadBytes)
		if err != nil {
			return nil, apperrors.Internal("failed to save token", err)
		}
		return nil, nil
	}

	merged := existing.Payload
	if merged == nil {
		merged = map[string]interface{}{}
	}
	for k, v := range data {
		merged[k] = v
	}
	payloadBytes, err := json.Marshal(merged)
	if err != nil {
		return nil, apperrors.Internal("failed to encode token payload", err)
	}

	_, err = s.store.DB.ExecContext(ctx, `
		UPDATE credential_tokens SET access_token = $1, expires_at = $2, payload = $3
		WHERE gamespace_id = $4 AND credential = $5 AND username = $6
	`, accessToken, expiresAt, payloadBytes, gamespace, credential, username)
	if err != nil {
		return nil, apperrors.Internal("failed to save token", err)
	}
	return existing.Account, nil
}

func splitMergedCredential(mergedCredential string) (credential, username string) {
	for i := 0; i < len(mergedCredential); i++ {
		if mergedCredential[i] == ':' {
			return mergedCredential[:i], mergedCredential[i+1:]
		}
	}
	return mergedCredential, ""
}
