package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/okroshka/karmabot/internal/core"
)

// slidingWindow is a moving-window rate limiter keyed per (chat, reactor).
// Throttled reactions are dropped silently; there is no way to reply to a
// reaction anyway.
type slidingWindow struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	hits      map[string][]time.Time
	lastSweep time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

func throttleKey(chat core.ChatID, reactor core.UserID) string {
	return fmt.Sprintf("chat:%d:user:%d", chat, reactor)
}

// allow records a hit for key and reports whether it stays under the limit.
func (w *slidingWindow) allow(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sweep(now)

	horizon := now.Add(-w.window)
	kept := w.hits[key][:0]
	for _, hit := range w.hits[key] {
		if hit.After(horizon) {
			kept = append(kept, hit)
		}
	}
	if len(kept) >= w.limit {
		w.hits[key] = kept
		return false
	}
	w.hits[key] = append(kept, now)
	return true
}

// forgive returns the most recent hit for key, handing the slot back when an
// admitted reaction turned out not to move karma.
func (w *slidingWindow) forgive(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	hits := w.hits[key]
	if len(hits) == 0 {
		return
	}
	hits = hits[:len(hits)-1]
	if len(hits) == 0 {
		delete(w.hits, key)
		return
	}
	w.hits[key] = hits
}

// sweep drops keys whose hits have all expired, keeping the map bounded by
// the set of recently active reactors. Runs at most once per window; callers
// hold mu.
func (w *slidingWindow) sweep(now time.Time) {
	if now.Sub(w.lastSweep) < w.window {
		return
	}
	w.lastSweep = now

	horizon := now.Add(-w.window)
	for key, hits := range w.hits {
		kept := hits[:0]
		for _, hit := range hits {
			if hit.After(horizon) {
				kept = append(kept, hit)
			}
		}
		if len(kept) == 0 {
			delete(w.hits, key)
			continue
		}
		w.hits[key] = kept
	}
}
