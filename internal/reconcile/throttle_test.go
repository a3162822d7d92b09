package reconcile

import (
	"testing"
	"time"
)

func TestSlidingWindowEnforcesLimit(t *testing.T) {
	w := newSlidingWindow(2, time.Minute)
	now := time.Now()

	if !w.allow("k", now) || !w.allow("k", now) {
		t.Fatal("first two hits must pass")
	}
	if w.allow("k", now) {
		t.Fatal("third hit inside the window must be rejected")
	}
}

func TestSlidingWindowExpiresHits(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)
	now := time.Now()

	if !w.allow("k", now) {
		t.Fatal("first hit must pass")
	}
	if w.allow("k", now.Add(30*time.Second)) {
		t.Fatal("hit inside window must be rejected")
	}
	if !w.allow("k", now.Add(61*time.Second)) {
		t.Fatal("hit after window must pass")
	}
}

func TestSlidingWindowForgiveReturnsSlot(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)
	now := time.Now()

	if !w.allow("k", now) {
		t.Fatal("first hit must pass")
	}
	if w.allow("k", now) {
		t.Fatal("second hit must be rejected")
	}
	w.forgive("k")
	if !w.allow("k", now) {
		t.Fatal("forgiven slot must be reusable")
	}
}

func TestSlidingWindowForgiveUnknownKey(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)
	w.forgive("never-seen")
	if !w.allow("never-seen", time.Now()) {
		t.Fatal("first hit after forgive must pass")
	}
}

func TestSlidingWindowEvictsIdleKeys(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)
	now := time.Now()

	if !w.allow("idle", now) {
		t.Fatal("first hit must pass")
	}
	// A hit two windows later sweeps the expired key out entirely.
	if !w.allow("busy", now.Add(2*time.Minute)) {
		t.Fatal("hit on another key must pass")
	}

	w.mu.Lock()
	_, idleKept := w.hits["idle"]
	size := len(w.hits)
	w.mu.Unlock()
	if idleKept {
		t.Fatal("expired key must be evicted")
	}
	if size != 1 {
		t.Fatalf("expected only the active key, got %d entries", size)
	}
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)
	now := time.Now()

	if !w.allow(throttleKey(1, 20), now) {
		t.Fatal("first key must pass")
	}
	if !w.allow(throttleKey(2, 20), now) {
		t.Fatal("same reactor in another chat must have its own budget")
	}
	if !w.allow(throttleKey(1, 21), now) {
		t.Fatal("another reactor in the same chat must have its own budget")
	}
}
