package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okroshka/karmabot/internal/core"
)

// Store is the transactional backing for the reconciliation core. All
// reaction mutations are atomic: the registry lookup, the state-row change,
// and the ledger adjustment succeed or fail as one unit.
type Store interface {
	// RecordMessage registers a tracked message. A row already present for
	// the same (chat, message) returns core.ErrDuplicateMessage; authorship
	// is never overwritten.
	RecordMessage(ctx context.Context, msg core.TrackedMessage) error
	// GetMessage returns core.ErrUnknownMessage when the pair was never
	// tracked or has been purged.
	GetMessage(ctx context.Context, ref core.MessageRef) (core.TrackedMessage, error)

	// ApplyReaction transitions the (message, reactor, kind) tuple to
	// applied and credits the author's balance with delta. A tuple already
	// applied is a no-op with applied=false. Returns core.ErrUnknownMessage
	// or core.ErrSelfReaction for the expected misses.
	ApplyReaction(ctx context.Context, ref core.MessageRef, reactor core.UserID, kind core.ReactionKind, delta int64) (applied bool, author core.UserID, balance int64, err error)
	// RemoveReaction reverts the tuple to unapplied, debiting exactly the
	// delta that was stored when it was applied. An unapplied tuple is a
	// no-op with removed=false.
	RemoveReaction(ctx context.Context, ref core.MessageRef, reactor core.UserID, kind core.ReactionKind) (removed bool, author core.UserID, balance int64, err error)

	// Balance returns 0 for users with no ledger row.
	Balance(ctx context.Context, user core.UserID) (int64, error)
	// TopBalances returns up to limit balances, highest first.
	TopBalances(ctx context.Context, limit int) ([]core.KarmaBalance, error)
	// Percentile returns the share of ledger users with a strictly higher
	// balance (0 = top). ok is false when the user has no ledger row.
	Percentile(ctx context.Context, user core.UserID) (p float64, ok bool, err error)

	// PurgeMessagesOlderThan deletes up to batchSize messages sent before
	// cutoff, cascading to their reaction applications. A batchSize of zero
	// or less falls back to DefaultPurgeBatchSize. Callers loop until it
	// returns fewer rows than the batch size.
	PurgeMessagesOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	Close() error
}

// DefaultPurgeBatchSize bounds a purge pass when the caller does not.
const DefaultPurgeBatchSize = 500

// InMemory is a mutex-guarded store for tests. It honours the same atomicity
// and idempotence contracts as the SQLite store.
type InMemory struct {
	mu        sync.Mutex
	messages  map[core.MessageRef]core.TrackedMessage
	reactions map[reactionKey]core.ReactionApplication
	balances  map[core.UserID]core.KarmaBalance
}

type reactionKey struct {
	ref     core.MessageRef
	reactor core.UserID
	kind    core.ReactionKind
}

func NewInMemory() *InMemory {
	return &InMemory{
		messages:  make(map[core.MessageRef]core.TrackedMessage),
		reactions: make(map[reactionKey]core.ReactionApplication),
		balances:  make(map[core.UserID]core.KarmaBalance),
	}
}

func (m *InMemory) RecordMessage(_ context.Context, msg core.TrackedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.Ref]; ok {
		return core.ErrDuplicateMessage
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	m.messages[msg.Ref] = msg
	return nil
}

func (m *InMemory) GetMessage(_ context.Context, ref core.MessageRef) (core.TrackedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return core.TrackedMessage{}, core.ErrUnknownMessage
	}
	return msg, nil
}

func (m *InMemory) ApplyReaction(_ context.Context, ref core.MessageRef, reactor core.UserID, kind core.ReactionKind, delta int64) (bool, core.UserID, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return false, 0, 0, core.ErrUnknownMessage
	}
	if msg.Author == reactor {
		return false, msg.Author, 0, core.ErrSelfReaction
	}
	key := reactionKey{ref: ref, reactor: reactor, kind: kind}
	if _, ok := m.reactions[key]; ok {
		return false, msg.Author, m.balances[msg.Author].Balance, nil
	}
	m.reactions[key] = core.ReactionApplication{
		Ref: ref, Reactor: reactor, Kind: kind, Delta: delta, AppliedAt: time.Now().UTC(),
	}
	bal := m.adjustLocked(msg.Author, delta)
	return true, msg.Author, bal, nil
}

func (m *InMemory) RemoveReaction(_ context.Context, ref core.MessageRef, reactor core.UserID, kind core.ReactionKind) (bool, core.UserID, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return false, 0, 0, core.ErrUnknownMessage
	}
	key := reactionKey{ref: ref, reactor: reactor, kind: kind}
	app, ok := m.reactions[key]
	if !ok {
		return false, msg.Author, m.balances[msg.Author].Balance, nil
	}
	delete(m.reactions, key)
	bal := m.adjustLocked(msg.Author, -app.Delta)
	return true, msg.Author, bal, nil
}

func (m *InMemory) adjustLocked(user core.UserID, delta int64) int64 {
	bal := m.balances[user]
	bal.User = user
	bal.Balance += delta
	bal.UpdatedAt = time.Now().UTC()
	m.balances[user] = bal
	return bal.Balance
}

func (m *InMemory) Balance(_ context.Context, user core.UserID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[user].Balance, nil
}

func (m *InMemory) TopBalances(_ context.Context, limit int) ([]core.KarmaBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.KarmaBalance, 0, len(m.balances))
	for _, bal := range m.balances {
		out = append(out, bal)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].User < out[j].User
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) Percentile(_ context.Context, user core.UserID) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[user]
	if !ok || len(m.balances) == 0 {
		return 0, false, nil
	}
	higher := 0
	for _, other := range m.balances {
		if other.Balance > bal.Balance {
			higher++
		}
	}
	return float64(higher) / float64(len(m.balances)), true, nil
}

func (m *InMemory) PurgeMessagesOlderThan(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if batchSize <= 0 {
		batchSize = DefaultPurgeBatchSize
	}
	var deleted int64
	for ref, msg := range m.messages {
		if deleted >= int64(batchSize) {
			break
		}
		if msg.SentAt.Before(cutoff) {
			delete(m.messages, ref)
			for key := range m.reactions {
				if key.ref == ref {
					delete(m.reactions, key)
				}
			}
			deleted++
		}
	}
	return deleted, nil
}

func (m *InMemory) Close() error { return nil }
