package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ProfileClient is the read-only sibling "profile" service surface
// this service consumes for mass profile decoration (§4.4, §6.2).
type ProfileClient interface {
	MassProfiles(ctx context.Context, gamespace uint64, accounts []uint64, fields []string) (map[uint64]map[string]interface{}, error)
}

// HTTPProfileClient calls the profile service over HTTP.
type HTTPProfileClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPProfileClient(baseURL string, timeout time.Duration) *HTTPProfileClient {
	return &HTTPProfileClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

// MassProfiles fetches profile blobs for many accounts in one round
// trip, optionally restricted to fields (§4.4: used to decorate
// connection, friend, and name-search listings).
func (c *HTTPProfileClient) MassProfiles(ctx context.Context, gamespace uint64, accounts []uint64, fields []string) (map[uint64]map[string]interface{}, error) {
	if len(accounts) == 0 {
		return map[uint64]map[string]interface{}{}, nil
	}

	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = strconv.FormatUint(a, 10)
	}

	q := url.Values{}
	q.Set("accounts", strings.Join(ids, ","))
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}

	reqURL := fmt.Sprintf("%s/profile/mass/%d?%s", c.BaseURL, gamespace, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("profile rpc mass_profiles: status %d", resp.StatusCode)
	}

	var decoded map[string]map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	out := make(map[uint64]map[string]interface{}, len(decoded))
	for key, profile := range decoded {
		account, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			continue
		}
		out[account] = profile
	}
	return out, nil
}
