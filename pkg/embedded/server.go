// Package embedded runs a karmabot instance in-process: store, reconciler,
// event hub and HTTP API, without the Telegram connector. Host programs feed
// events through the Reconciler directly.
package embedded

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	httpapi "github.com/okroshka/karmabot/internal/http"
	"github.com/okroshka/karmabot/internal/policy"
	"github.com/okroshka/karmabot/internal/reconcile"
	"github.com/okroshka/karmabot/internal/storage/sqlite"
	"github.com/okroshka/karmabot/internal/ws"
)

// Config configures the embedded server.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// If empty, defaults to ~/.karmabot/data.db
	DBPath string

	// Addr is the address to listen on. If empty, a random localhost
	// port is chosen.
	Addr string

	// Policy maps reaction kinds to deltas. Zero value uses the stock
	// emoji policy.
	Policy *policy.Config
}

// Server is an embedded karmabot instance.
type Server struct {
	store *sqlite.ResilientStore
	hub   *ws.Hub
	rec   *reconcile.Reconciler
	http  *http.Server
	ln    net.Listener

	mu      sync.Mutex
	started bool
}

func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".karmabot", "data.db")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	pol := policy.Default()
	if cfg.Policy != nil {
		pol = policy.New(*cfg.Policy)
	}

	base, err := sqlite.New(cfg.DBPath, nil)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	store := sqlite.NewResilient(base)
	hub := ws.NewHub()
	rec := reconcile.New(store, pol, hub, nil, reconcile.Options{})

	svc := httpapi.NewService(store, nil).
		WithMetrics(rec).
		WithBreakerState(store.CircuitBreakerState)
	mux := http.NewServeMux()
	mux.Handle("/api/", httpapi.NewRouter(svc))
	mux.Handle("/ws/events", hub.Handler())

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Server{
		store: store,
		hub:   hub,
		rec:   rec,
		http:  &http.Server{Handler: mux},
		ln:    ln,
	}, nil
}

// Start serves the HTTP API in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	go func() {
		if err := s.http.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "karmabot server error: %v\n", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully and closes the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return s.store.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL returns the base URL for the server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.Addr())
}

// Reconciler exposes the event intake for the host program.
func (s *Server) Reconciler() *reconcile.Reconciler {
	return s.rec
}
