// Package rpc provides thin clients for the sibling services this
// service consumes (§6.2): message (fire-and-forget notifications),
// profile (read-only mass profile fetch), and login (private-key
// lookup). Only their interfaces are in scope (§1); these clients are
// deliberately minimal HTTP callers with context-bound timeouts.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MessageClient is the sibling "message" service surface this service
// consumes (§6.2).
type MessageClient interface {
	SendMessage(ctx context.Context, gamespace uint64, sender uint64, recipientClass, recipientKey, messageType string, payload map[string]interface{}, flags []string, authoritative bool) error
	CreateGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, joinAccount uint64, role string) error
	JoinGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, account uint64, role string, notify map[string]interface{}) error
	LeaveGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, account uint64, notify map[string]interface{}) error
}

// HTTPMessageClient calls the message service over HTTP.
type HTTPMessageClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPMessageClient builds a client with the given base URL and timeout.
func NewHTTPMessageClient(baseURL string, timeout time.Duration) *HTTPMessageClient {
	return &HTTPMessageClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

func (c *HTTPMessageClient) post(ctx context.Context, path string, body interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("message rpc %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (c *HTTPMessageClient) SendMessage(ctx context.Context, gamespace uint64, sender uint64, recipientClass, recipientKey, messageType string, payload map[string]interface{}, flags []string, authoritative bool) error {
	return c.post(ctx, "/message/send", map[string]interface{}{
		"gamespace":       gamespace,
		"sender":          sender,
		"recipient_class": recipientClass,
		"recipient_key":   recipientKey,
		"message_type":    messageType,
		"payload":         payload,
		"flags":           flags,
		"authoritative":   authoritative,
	})
}

func (c *HTTPMessageClient) CreateGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, joinAccount uint64, role string) error {
	return c.post(ctx, "/message/group/create", map[string]interface{}{
		"gamespace":        gamespace,
		"group_class":      groupClass,
		"group_key":        groupKey,
		"join_account_id":  joinAccount,
		"join_role":        role,
	})
}

func (c *HTTPMessageClient) JoinGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, account uint64, role string, notify map[string]interface{}) error {
	return c.post(ctx, "/message/group/join", map[string]interface{}{
		"gamespace":   gamespace,
		"group_class": groupClass,
		"group_key":   groupKey,
		"account_id":  account,
		"role":        role,
		"notify":      notify,
	})
}

func (c *HTTPMessageClient) LeaveGroup(ctx context.Context, gamespace uint64, groupClass, groupKey string, account uint64, notify map[string]interface{}) error {
	return c.post(ctx, "/message/group/leave", map[string]interface{}{
		"gamespace":   gamespace,
		"group_class": groupClass,
		"group_key":   groupKey,
		"account_id":  account,
		"notify":      notify,
	})
}
