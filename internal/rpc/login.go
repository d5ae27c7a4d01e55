package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anthill-platform/anthill-social/internal/cache"
)

// LoginClient is the sibling "login" service surface this service
// consumes to resolve a gamespace's signing/verification key (§6.2),
// used when validating external credential assertions.
type LoginClient interface {
	GetKey(ctx context.Context, gamespace uint64, keyName string) (string, error)
}

// HTTPLoginClient calls the login service over HTTP, caching results
// for 300s (mirrors the aggregator's own friend-list cache TTL, §9).
type HTTPLoginClient struct {
	BaseURL string
	HTTP    *http.Client
	cache   *cache.TTLCache
}

func NewHTTPLoginClient(baseURL string, timeout time.Duration) *HTTPLoginClient {
	return &HTTPLoginClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		cache:   cache.New(300 * time.Second),
	}
}

func (c *HTTPLoginClient) GetKey(ctx context.Context, gamespace uint64, keyName string) (string, error) {
	cacheKey := cache.HashKey("login-key", fmt.Sprint(gamespace), keyName)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(string), nil
	}

	reqURL := fmt.Sprintf("%s/login/key/%d/%s", c.BaseURL, gamespace, keyName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("login rpc get_key: status %d", resp.StatusCode)
	}

	var decoded struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}

	c.cache.Set(cacheKey, decoded.Key)
	return decoded.Key, nil
}
