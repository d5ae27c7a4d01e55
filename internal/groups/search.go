package groups

import (
	"context"
	"strings"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
)

const searchResultLimit = 100

// SearchGroups tokenizes query on whitespace, discards tokens of
// length ≤ 2, and runs a full-text prefix search against group.name,
// gamespace-scoped and capped at 100 results (§4.3.5).
func (e *Engine) SearchGroups(ctx context.Context, gamespace uint64, query string) ([]uint64, error) {
	tokens := tokenizeSearch(query)
	if len(tokens) == 0 {
		return nil, apperrors.BadInput("search query has no usable tokens")
	}

	tsQuery := make([]string, len(tokens))
	for i, t := range tokens {
		tsQuery[i] = t + ":*"
	}

	rows, err := e.store.DB.QueryContext(ctx, `
		SELECT group_id FROM groups
		WHERE gamespace_id = $1 AND to_tsvector('simple', group_name) @@ to_tsquery('simple', $2)
		LIMIT $3
	`, gamespace, strings.Join(tsQuery, " & "), searchResultLimit)
	if err != nil {
		return nil, apperrors.Internal("failed to search groups", err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Internal("failed to scan group search result", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// tokenizeSearch splits on whitespace and discards short tokens; it
// also strips characters to_tsquery would otherwise choke on.
func tokenizeSearch(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
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
