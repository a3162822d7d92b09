// WebSocket support for live karma and sweep event subscriptions.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// EventHandler is called for each event received over the WebSocket. The
// payload is the raw JSON event; type-switch on the "type" field.
type EventHandler func(event json.RawMessage)

// WSClient maintains a WebSocket subscription to the server's event feed.
type WSClient struct {
	baseURL   string
	reconnect bool

	mu       sync.RWMutex
	handlers []EventHandler
	conn     *websocket.Conn

	done chan struct{}
	once sync.Once
}

type WSOption func(*WSClient)

// WithAutoReconnect controls reconnection on disconnect. Enabled by default.
func WithAutoReconnect(enabled bool) WSOption {
	return func(c *WSClient) {
		c.reconnect = enabled
	}
}

func NewWSClient(baseURL string, opts ...WSOption) *WSClient {
	c := &WSClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		reconnect: true,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnEvent registers an event handler. Register before Connect.
func (c *WSClient) OnEvent(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Connect dials the event feed and starts the read loop.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx)
	return nil
}

// Close stops the read loop and closes the connection.
func (c *WSClient) Close() error {
	c.once.Do(func() { close(c.done) })
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := c.baseURL
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + strings.TrimPrefix(wsURL, "https")
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + strings.TrimPrefix(wsURL, "http")
	}
	conn, _, err := websocket.Dial(ctx, wsURL+"/ws/events", nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

func (c *WSClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if !c.reconnect {
				return
			}
			if !c.redial(ctx) {
				return
			}
			continue
		}
		c.dispatch(raw)
	}
}

// redial reconnects with backoff. Returns false when the client is closed.
func (c *WSClient) redial(ctx context.Context) bool {
	backoff := time.Second
	for {
		select {
		case <-c.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			return true
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (c *WSClient) dispatch(raw json.RawMessage) {
	c.mu.RLock()
	handlers := append([]EventHandler(nil), c.handlers...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(raw)
	}
}
