package reconcile

import "sync/atomic"

// Metrics are the reconciler's outcome counters. Absorbed business outcomes
// (unknown message, self-reaction, duplicates) are visible only here; they
// never propagate as errors.
type Metrics struct {
	MessagesTracked    atomic.Int64
	DuplicateMessages  atomic.Int64
	Applied            atomic.Int64
	Reversed           atomic.Int64
	DuplicateReactions atomic.Int64
	UnknownMessages    atomic.Int64
	SelfReactions      atomic.Int64
	Throttled          atomic.Int64
	Gated              atomic.Int64
	Ignored            atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	MessagesTracked    int64 `json:"messages_tracked"`
	DuplicateMessages  int64 `json:"duplicate_messages"`
	Applied            int64 `json:"applied"`
	Reversed           int64 `json:"reversed"`
	DuplicateReactions int64 `json:"duplicate_reactions"`
	UnknownMessages    int64 `json:"unknown_messages"`
	SelfReactions      int64 `json:"self_reactions"`
	Throttled          int64 `json:"throttled"`
	Gated              int64 `json:"gated"`
	Ignored            int64 `json:"ignored"`
}

// MetricsSnapshot returns a copy of the current counters.
func (r *Reconciler) MetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesTracked:    r.metrics.MessagesTracked.Load(),
		DuplicateMessages:  r.metrics.DuplicateMessages.Load(),
		Applied:            r.metrics.Applied.Load(),
		Reversed:           r.metrics.Reversed.Load(),
		DuplicateReactions: r.metrics.DuplicateReactions.Load(),
		UnknownMessages:    r.metrics.UnknownMessages.Load(),
		SelfReactions:      r.metrics.SelfReactions.Load(),
		Throttled:          r.metrics.Throttled.Load(),
		Gated:              r.metrics.Gated.Load(),
		Ignored:            r.metrics.Ignored.Load(),
	}
}
