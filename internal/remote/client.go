// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/safadev/safachat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotAuthenticated indicates no session cookie is configured.
var ErrNotAuthenticated = errors.New("no backend session")

// BackendError is a non-2xx response from the backend.
type BackendError struct {
	Op     string
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed (HTTP %d): %s", e.Op, e.Status, e.Body)
}

// =============================================================================
// CLIENT
// =============================================================================

const (
	// DefaultTimeout bounds every backend call. Sync is best-effort;
	// a slow backend must never stall the conversation.
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 4 * 1024
)

// snapshot is the push body: one chat plus its full message list.
type snapshot struct {
	Chat     *model.Chat     `json:"chat"`
	Messages []model.Message `json:"messages"`
}

// Client talks to the chat backend for listing, deleting, and pushing
// chat snapshots. Every request carries the session cookie and a fresh
// X-Request-ID for correlation in backend logs.
type Client struct {
	baseURL       string
	sessionCookie *http.Cookie
	httpClient    *http.Client
	log           *logrus.Logger
}

// NewClient creates a backend client. cookie may be nil for an
// unauthenticated session; calls then fail with ErrNotAuthenticated.
func NewClient(baseURL string, cookie *http.Cookie) *Client {
	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		sessionCookie: cookie,
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		log:           logrus.StandardLogger(),
	}
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithLogger sets the logger used for request diagnostics.
func (c *Client) WithLogger(log *logrus.Logger) *Client {
	c.log = log
	return c
}

// IsAuthenticated reports whether a session cookie is present.
func (c *Client) IsAuthenticated() bool {
	return c.sessionCookie != nil
}

// ListChats fetches the user's chats from the backend.
func (c *Client) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	var chats []model.Chat
	err := c.do(ctx, "list chats", http.MethodGet, "/api/chats?userId="+userID, nil, &chats)
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// DeleteChat deletes the chat on the backend. Callers must not remove
// the chat locally unless this succeeds, or the next sync resurrects it.
func (c *Client) DeleteChat(ctx context.Context, id int64) error {
	return c.do(ctx, "delete chat", http.MethodDelete, fmt.Sprintf("/api/chats/%d", id), nil, nil)
}

// PushSnapshot uploads the chat and its messages. The backend replaces
// its copy wholesale; there is no field-level merge.
func (c *Client) PushSnapshot(ctx context.Context, chat *model.Chat, msgs []model.Message) error {
	return c.do(ctx, "push snapshot", http.MethodPost, "/api/sync", &snapshot{Chat: chat, Messages: msgs}, nil)
}

// do performs one authenticated JSON request and decodes the response
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.AddCookie(c.sessionCookie)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &BackendError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}
