// Package reconcile turns platform reaction events into durable, idempotent
// karma effects. Events may arrive out of order, duplicated, or referencing
// messages that were never tracked or have been purged; none of that is an
// error here, only store-level failures escalate.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okroshka/karmabot/internal/core"
	"github.com/okroshka/karmabot/internal/storage"
)

// DeltaPolicy resolves a reaction kind to a karma delta. It is supplied from
// outside; the reconciler never decides point values.
type DeltaPolicy interface {
	DeltaFor(kind core.ReactionKind) int64
}

// Broadcaster receives karma events after successful ledger mutations.
type Broadcaster interface {
	Broadcast(event any)
}

// Options tune the optional reaction gates.
type Options struct {
	// ThrottleLimit/ThrottleWindow rate-limit karma changes per
	// (reactor, chat). Zero limit disables throttling.
	ThrottleLimit  int
	ThrottleWindow time.Duration
	// RequireTopPercentile drops reactions from reactors outside the top
	// share of the leaderboard (0.3 = top 30%). Zero disables the gate.
	RequireTopPercentile float64
}

// Reconciler consumes connector events and applies them to the store exactly
// once per (message, reactor, kind) tuple.
type Reconciler struct {
	store   storage.Store
	policy  DeltaPolicy
	bus     Broadcaster
	logger  *zap.Logger
	limiter *slidingWindow
	gate    float64
	metrics Metrics
}

// New creates a Reconciler. bus may be nil.
func New(store storage.Store, policy DeltaPolicy, bus Broadcaster, logger *zap.Logger, opts Options) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		store:  store,
		policy: policy,
		bus:    bus,
		logger: logger,
		gate:   opts.RequireTopPercentile,
	}
	if opts.ThrottleLimit > 0 && opts.ThrottleWindow > 0 {
		r.limiter = newSlidingWindow(opts.ThrottleLimit, opts.ThrottleWindow)
	}
	return r
}

// OnMessageSent registers an outgoing message so later reactions can resolve
// its author. Duplicate delivery is tolerated: the connector offers no
// exactly-once guarantee.
func (r *Reconciler) OnMessageSent(ctx context.Context, chat core.ChatID, messageID int64, author core.UserID, sentAt time.Time) error {
	msg := core.TrackedMessage{
		Ref:    core.MessageRef{Chat: chat, MessageID: messageID},
		Author: author,
		SentAt: sentAt,
	}
	err := r.store.RecordMessage(ctx, msg)
	if errors.Is(err, core.ErrDuplicateMessage) {
		r.metrics.DuplicateMessages.Add(1)
		return nil
	}
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	r.metrics.MessagesTracked.Add(1)
	return nil
}

// OnReactionAdded applies the reaction's karma effect exactly once.
func (r *Reconciler) OnReactionAdded(ctx context.Context, chat core.ChatID, messageID int64, reactor core.UserID, kind core.ReactionKind) error {
	delta := r.policy.DeltaFor(kind)
	if delta == 0 {
		r.metrics.Ignored.Add(1)
		return nil
	}
	key := throttleKey(chat, reactor)
	if r.limiter != nil && !r.limiter.allow(key, time.Now()) {
		r.metrics.Throttled.Add(1)
		r.logger.Debug("reactor throttled",
			zap.Int64("chat", int64(chat)), zap.Int64("reactor", int64(reactor)))
		return nil
	}
	if !r.admitGate(ctx, reactor) {
		r.refund(key)
		return nil
	}

	// Outcomes that cannot move karma hand the window slot back, so misses
	// never burn a reactor's budget.
	ref := core.MessageRef{Chat: chat, MessageID: messageID}
	applied, author, balance, err := r.store.ApplyReaction(ctx, ref, reactor, kind, delta)
	switch {
	case errors.Is(err, core.ErrUnknownMessage):
		r.refund(key)
		r.metrics.UnknownMessages.Add(1)
		r.logger.Debug("reaction for untracked message",
			zap.Int64("chat", int64(chat)), zap.Int64("message", messageID))
		return nil
	case errors.Is(err, core.ErrSelfReaction):
		r.refund(key)
		r.metrics.SelfReactions.Add(1)
		return nil
	case err != nil:
		r.refund(key)
		return fmt.Errorf("apply reaction: %w", err)
	}
	if !applied {
		r.refund(key)
		r.metrics.DuplicateReactions.Add(1)
		return nil
	}

	r.metrics.Applied.Add(1)
	r.emit(chat, messageID, author, reactor, kind, delta, balance, false)
	return nil
}

// OnReactionRemoved reverses a previously applied reaction. The reversal uses
// the delta stored at apply time, never the current policy, so a reaction
// stays reversible after its kind is dropped from the policy. Removing a
// reaction that was never applied is a no-op.
func (r *Reconciler) OnReactionRemoved(ctx context.Context, chat core.ChatID, messageID int64, reactor core.UserID, kind core.ReactionKind) error {
	ref := core.MessageRef{Chat: chat, MessageID: messageID}
	removed, author, balance, err := r.store.RemoveReaction(ctx, ref, reactor, kind)
	switch {
	case errors.Is(err, core.ErrUnknownMessage):
		r.metrics.UnknownMessages.Add(1)
		return nil
	case err != nil:
		return fmt.Errorf("remove reaction: %w", err)
	}
	if !removed {
		r.metrics.Ignored.Add(1)
		return nil
	}

	r.metrics.Reversed.Add(1)
	r.emit(chat, messageID, author, reactor, kind, 0, balance, true)
	return nil
}

// admitGate applies the optional top-percentile gate to a reaction add.
func (r *Reconciler) admitGate(ctx context.Context, reactor core.UserID) bool {
	if r.gate <= 0 {
		return true
	}
	p, ok, err := r.store.Percentile(ctx, reactor)
	if err != nil {
		r.logger.Warn("percentile gate check failed", zap.Error(err))
		return false
	}
	if !ok || p >= r.gate {
		r.metrics.Gated.Add(1)
		return false
	}
	return true
}

func (r *Reconciler) refund(key string) {
	if r.limiter != nil {
		r.limiter.forgive(key)
	}
}

func (r *Reconciler) emit(chat core.ChatID, messageID int64, author, reactor core.UserID, kind core.ReactionKind, delta, balance int64, removed bool) {
	if r.bus == nil {
		return
	}
	r.bus.Broadcast(core.KarmaEvent{
		ID:        uuid.NewString(),
		Chat:      chat,
		MessageID: messageID,
		Author:    author,
		Reactor:   reactor,
		Kind:      kind,
		Delta:     delta,
		Balance:   balance,
		Removed:   removed,
		At:        time.Now().UTC(),
	})
}
