package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/okroshka/karmabot/internal/core"
	"github.com/okroshka/karmabot/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*ResilientStore)(nil)

// ResilientStore wraps every Store method with CircuitBreaker + RetryOnBusy.
// Expected business outcomes (unknown message, duplicate, self-reaction) pass
// through without counting as breaker failures; only store-level errors do.
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient creates a ResilientStore with default breaker settings
// (threshold=5, resetTimeout=30s).
func NewResilient(inner *Store) *ResilientStore {
	return &ResilientStore{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

// NewResilientWithBreaker creates a ResilientStore with a custom breaker.
func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *ResilientStore {
	return &ResilientStore{inner: inner, cb: cb}
}

// CircuitBreakerState returns the breaker state as a string, for health
// reporting.
func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

// run executes fn with retry and breaker protection, preserving expected
// business sentinels across the breaker boundary.
func (r *ResilientStore) run(fn func() error) error {
	var opErr error
	cbErr := r.cb.Execute(func() error {
		opErr = RetryOnBusy(fn)
		if isExpectedOutcome(opErr) {
			return nil
		}
		return opErr
	})
	if cbErr != nil && opErr == nil {
		// Breaker rejected the call without running it.
		return cbErr
	}
	return opErr
}

func isExpectedOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, core.ErrUnknownMessage) ||
		errors.Is(err, core.ErrDuplicateMessage) ||
		errors.Is(err, core.ErrSelfReaction)
}

func (r *ResilientStore) RecordMessage(ctx context.Context, msg core.TrackedMessage) error {
	return r.run(func() error {
		return r.inner.RecordMessage(ctx, msg)
	})
}

func (r *ResilientStore) GetMessage(ctx context.Context, ref core.MessageRef) (core.TrackedMessage, error) {
	var result core.TrackedMessage
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.GetMessage(ctx, ref)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ApplyReaction(ctx context.Context, ref core.MessageRef, reactor core.UserID, kind core.ReactionKind, delta int64) (bool, core.UserID, int64, error) {
	var (
		applied bool
		author  core.UserID
		balance int64
	)
	err := r.run(func() error {
		var innerErr error
		applied, author, balance, innerErr = r.inner.ApplyReaction(ctx, ref, reactor, kind, delta)
		return innerErr
	})
	return applied, author, balance, err
}

func (r *ResilientStore) RemoveReaction(ctx context.Context, ref core.MessageRef, reactor core.UserID, kind core.ReactionKind) (bool, core.UserID, int64, error) {
	var (
		removed bool
		author  core.UserID
		balance int64
	)
	err := r.run(func() error {
		var innerErr error
		removed, author, balance, innerErr = r.inner.RemoveReaction(ctx, ref, reactor, kind)
		return innerErr
	})
	return removed, author, balance, err
}

func (r *ResilientStore) Balance(ctx context.Context, user core.UserID) (int64, error) {
	var result int64
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.Balance(ctx, user)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) TopBalances(ctx context.Context, limit int) ([]core.KarmaBalance, error) {
	var result []core.KarmaBalance
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.TopBalances(ctx, limit)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) Percentile(ctx context.Context, user core.UserID) (float64, bool, error) {
	var (
		p  float64
		ok bool
	)
	err := r.run(func() error {
		var innerErr error
		p, ok, innerErr = r.inner.Percentile(ctx, user)
		return innerErr
	})
	return p, ok, err
}

func (r *ResilientStore) PurgeMessagesOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	var result int64
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.PurgeMessagesOlderThan(ctx, cutoff, batchSize)
		return innerErr
	})
	return result, err
}

// Close delegates directly to the inner store without breaker or retry.
func (r *ResilientStore) Close() error {
	return r.inner.Close()
}
