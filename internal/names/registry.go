// Package names implements the unique-names registry (§4.5): a
// reservation of (gamespace, kind, name) tuples to accounts, with
// full-text search and profile decoration.
package names

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/cache"
	"github.com/anthill-platform/anthill-social/internal/rpc"
	"github.com/anthill-platform/anthill-social/internal/store"
)

const searchResultLimit = 100

// Registry implements the §4.5 operations.
type Registry struct {
	store    *store.Store
	profiles rpc.ProfileClient
	cache    *cache.TTLCache
}

func New(s *store.Store, profiles rpc.ProfileClient, searchTTL time.Duration) *Registry {
	return &Registry{store: s, profiles: profiles, cache: cache.New(searchTTL)}
}

// SearchResult pairs a reserved name with the account holding it and,
// optionally, their public profile (§4.5).
type SearchResult struct {
	Account uint64
	Name    string
	Profile map[string]interface{}
}

// AcquireName upserts a (gamespace, account, kind) → name reservation.
// If name is already held by a different account under the same
// (gamespace, kind), the unique-name constraint rejects it and this
// returns a Conflict (§4.5 NameIsBusy).
func (r *Registry) AcquireName(ctx context.Context, gamespace, account uint64, kind, name string) error {
	_, err := r.store.DB.ExecContext(ctx, `
		INSERT INTO unique_names (gamespace_id, account_id, kind, name)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (gamespace_id, account_id, kind) DO UPDATE SET name = EXCLUDED.name
	`, gamespace, account, kind, name)
	if err != nil {
		if store.IsDuplicate(err) {
			return apperrors.Conflict("name is already taken")
		}
		return apperrors.Internal("failed to acquire name", err)
	}
	return nil
}

// ReleaseName frees account's reservation for kind, if any (§4.5).
func (r *Registry) ReleaseName(ctx context.Context, gamespace, account uint64, kind string) (bool, error) {
	res, err := r.store.DB.ExecContext(ctx, `
		DELETE FROM unique_names WHERE gamespace_id = $1 AND account_id = $2 AND kind = $3
	`, gamespace, account, kind)
	if err != nil {
		return false, apperrors.Internal("failed to release name", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CheckName reports which account, if any, holds name (§4.5).
func (r *Registry) CheckName(ctx context.Context, gamespace uint64, kind, name string) (*uint64, error) {
	var account uint64
	err := r.store.DB.QueryRowContext(ctx, `
		SELECT account_id FROM unique_names WHERE gamespace_id = $1 AND kind = $2 AND name = $3 LIMIT 1
	`, gamespace, kind, name).Scan(&account)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Internal("failed to check name", err)
	}
	return &account, nil
}

// SearchNames tokenizes query like the Group engine does, but looks at
// only the first 32 words and returns no results (rather than an error)
// when no usable token remains; it runs a prefix full-text search
// capped at 100 results, and — when
// profileFields is non-nil — decorates each hit with a cached public
// profile (§4.5, 20s TTL).
func (r *Registry) SearchNames(ctx context.Context, gamespace uint64, kind, query string, profileFields []string) ([]SearchResult, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	tsQuery := make([]string, len(tokens))
	for i, t := range tokens {
		tsQuery[i] = t + ":*"
	}

	rows, err := r.store.DB.QueryContext(ctx, `
		SELECT account_id, name FROM unique_names
		WHERE gamespace_id = $1 AND kind = $2 AND to_tsvector('simple', name) @@ to_tsquery('simple', $3)
		LIMIT $4
	`, gamespace, kind, strings.Join(tsQuery, " & "), searchResultLimit)
	if err != nil {
		return nil, apperrors.Internal("failed to search names", err)
	}
	defer rows.Close()

	var results []SearchResult
	var accounts []uint64
	for rows.Next() {
		var sr SearchResult
		if err := rows.Scan(&sr.Account, &sr.Name); err != nil {
			return nil, apperrors.Internal("failed to scan name search result", err)
		}
		results = append(results, sr)
		accounts = append(accounts, sr.Account)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("failed to read name search results", err)
	}

	if profileFields == nil || len(results) == 0 || r.profiles == nil {
		return results, nil
	}

	cacheKey := cache.HashKey("names", strconv.FormatUint(gamespace, 10), kind, cache.FieldsKey(profileFields), accountsKey(accounts))
	var profiles map[uint64]map[string]interface{}
	if cached, ok := r.cache.Get(cacheKey); ok {
		profiles = cached.(map[uint64]map[string]interface{})
	} else {
		profiles, err = r.profiles.MassProfiles(ctx, gamespace, accounts, profileFields)
		if err != nil {
			return nil, err
		}
		r.cache.Set(cacheKey, profiles)
	}

	for i := range results {
		results[i].Profile = profiles[results[i].Account]
	}
	return results, nil
}

// AccountsDeleted purges every reservation held by the given accounts,
// optionally scoped to one gamespace rather than globally (§4.5).
func (r *Registry) AccountsDeleted(ctx context.Context, gamespace uint64, accounts []uint64, gamespaceOnly bool) error {
	var err error
	if gamespaceOnly {
		_, err = r.store.DB.ExecContext(ctx, `
			DELETE FROM unique_names WHERE gamespace_id = $1 AND account_id = ANY($2)
		`, gamespace, pq.Array(accounts))
	} else {
		_, err = r.store.DB.ExecContext(ctx, `
			DELETE FROM unique_names WHERE account_id = ANY($1)
		`, pq.Array(accounts))
	}
	if err != nil {
		return apperrors.Internal("failed to delete unique names", err)
	}
	return nil
}

func tokenize(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	for i, f := range fields {
		if i >= 32 {
			break
		}
		token := sanitizeToken(f)
		if len(token) <= 2 {
			continue
		}
		out = append(out, token)
	}
	return out
}

func sanitizeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\'' || r == ':' || r == '&' || r == '|' || r == '!' || r == '(' || r == ')' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func accountsKey(accounts []uint64) string {
	parts := make([]string, len(accounts))
	for i, a := range accounts {
		parts[i] = strconv.FormatUint(a, 10)
	}
	return strings.Join(parts, ",")
}
