package internal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/okroshka/karmabot/internal/core"
	httpapi "github.com/okroshka/karmabot/internal/http"
	"github.com/okroshka/karmabot/internal/policy"
	"github.com/okroshka/karmabot/internal/reconcile"
	"github.com/okroshka/karmabot/internal/storage/sqlite"
	"github.com/okroshka/karmabot/internal/ws"
)

func getJSON[T any](t *testing.T, url string) T {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return v
}

// Full pipeline: connector-shaped events through the reconciler into the
// SQLite store, observed over the HTTP API and the WebSocket feed.
func TestSmoke(t *testing.T) {
	base, err := sqlite.NewInMemory(nil)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	store := sqlite.NewResilient(base)
	t.Cleanup(func() { store.Close() })

	hub := ws.NewHub()
	rec := reconcile.New(store, policy.Default(), hub, nil, reconcile.Options{})

	svc := httpapi.NewService(store, nil).
		WithMetrics(rec).
		WithBreakerState(store.CircuitBreakerState)
	mux := http.NewServeMux()
	mux.Handle("/api/", httpapi.NewRouter(svc))
	mux.Handle("/ws/events", hub.Handler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Subscribe to the event feed before generating karma.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	deadline := time.After(2 * time.Second)
	for hub.Subscribers() == 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ctx := context.Background()
	if err := rec.OnMessageSent(ctx, -100500, 42, 7, time.Now().UTC()); err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := rec.OnReactionAdded(ctx, -100500, 42, 20, "👍"); err != nil {
		t.Fatalf("reaction: %v", err)
	}
	// Duplicate delivery must not double-count.
	if err := rec.OnReactionAdded(ctx, -100500, 42, 20, "👍"); err != nil {
		t.Fatalf("duplicate reaction: %v", err)
	}

	karma := getJSON[struct {
		UserID  int64 `json:"user_id"`
		Balance int64 `json:"balance"`
	}](t, srv.URL+"/api/karma/7")
	if karma.Balance != 1 {
		t.Fatalf("expected balance 1, got %d", karma.Balance)
	}

	board := getJSON[struct {
		Leaderboard []struct {
			UserID  int64 `json:"user_id"`
			Balance int64 `json:"balance"`
		} `json:"leaderboard"`
	}](t, srv.URL+"/api/leaderboard")
	if len(board.Leaderboard) != 1 || board.Leaderboard[0].UserID != 7 {
		t.Fatalf("unexpected leaderboard: %+v", board.Leaderboard)
	}

	health := getJSON[struct {
		Status  string `json:"status"`
		Breaker string `json:"breaker"`
	}](t, srv.URL+"/api/health")
	if health.Status != "ok" || health.Breaker != "closed" {
		t.Fatalf("unexpected health: %+v", health)
	}

	// Exactly one karma event on the feed.
	readCtx, cancelRead := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRead()
	var ev core.KarmaEvent
	if err := wsjson.Read(readCtx, conn, &ev); err != nil {
		t.Fatalf("ws read: %v", err)
	}
	if ev.Author != 7 || ev.Reactor != 20 || ev.Delta != 1 || ev.Balance != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// Removal reverses.
	if err := rec.OnReactionRemoved(ctx, -100500, 42, 20, "👍"); err != nil {
		t.Fatalf("removal: %v", err)
	}
	karma = getJSON[struct {
		UserID  int64 `json:"user_id"`
		Balance int64 `json:"balance"`
	}](t, srv.URL+"/api/karma/7")
	if karma.Balance != 0 {
		t.Fatalf("expected balance 0 after removal, got %d", karma.Balance)
	}
}
