// Package client provides a Go client for the karmabot HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

// Karma is a user's balance, with leaderboard position when the user has
// earned any.
type Karma struct {
	UserID     int64    `json:"user_id"`
	Balance    int64    `json:"balance"`
	Percentile *float64 `json:"percentile,omitempty"`
}

type LeaderboardEntry struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

type Message struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	AuthorID  int64     `json:"author_id"`
	SentAt    time.Time `json:"sent_at"`
}

type Health struct {
	Status  string          `json:"status"`
	Breaker string          `json:"breaker,omitempty"`
	Metrics json.RawMessage `json:"metrics,omitempty"`
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Karma fetches the karma balance for a user.
func (c *Client) Karma(ctx context.Context, userID int64) (Karma, error) {
	var out Karma
	err := c.getJSON(ctx, fmt.Sprintf("/api/karma/%d", userID), &out)
	return out, err
}

// Leaderboard fetches the top balances. limit <= 0 uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	path := "/api/leaderboard"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out struct {
		Leaderboard []LeaderboardEntry `json:"leaderboard"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Leaderboard, nil
}

// Message fetches a tracked message by chat and message id.
func (c *Client) Message(ctx context.Context, chatID, messageID int64) (Message, error) {
	var out Message
	err := c.getJSON(ctx, fmt.Sprintf("/api/messages/%d/%d", chatID, messageID), &out)
	return out, err
}

// Health fetches the server health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.getJSON(ctx, "/api/health", &out)
	return out, err
}

// ErrNotFound is returned when the server reports 404 for a lookup.
var ErrNotFound = fmt.Errorf("not found")

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
