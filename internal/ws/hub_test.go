package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for hub.Subscribers() != want {
		select {
		case <-deadline:
			t.Fatalf("expected %d subscribers, have %d", want, hub.Subscribers())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHubBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForSubscribers(t, hub, 1)

	hub.Broadcast(map[string]string{"type": "karma.applied"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got map[string]string
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["type"] != "karma.applied" {
		t.Fatalf("unexpected event: %v", got)
	}
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	c1 := dial(t, srv)
	defer c1.Close(websocket.StatusNormalClosure, "")
	c2 := dial(t, srv)
	defer c2.Close(websocket.StatusNormalClosure, "")
	waitForSubscribers(t, hub, 2)

	hub.Broadcast(map[string]string{"type": "retention.sweep"})

	for _, conn := range []*websocket.Conn{c1, c2} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var got map[string]string
		err := wsjson.Read(ctx, conn, &got)
		cancel()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got["type"] != "retention.sweep" {
			t.Fatalf("unexpected event: %v", got)
		}
	}
}

func TestHubRemovesClosedConnections(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	waitForSubscribers(t, hub, 1)
	conn.Close(websocket.StatusNormalClosure, "")
	waitForSubscribers(t, hub, 0)
}
