package core

import "errors"

// Expected business outcomes. The reconciler absorbs all of these locally
// (they become counters, not failures); only store-level errors escalate to
// the connector.
var (
	// ErrUnknownMessage means a reaction referenced a (chat, message) pair
	// that was never tracked or has already been purged.
	ErrUnknownMessage = errors.New("message not tracked")

	// ErrDuplicateMessage means a message registration already exists for
	// the (chat, message) pair. Authorship is never overwritten.
	ErrDuplicateMessage = errors.New("message already tracked")

	// ErrSelfReaction means the reactor is the message author. Self-reactions
	// never move karma.
	ErrSelfReaction = errors.New("self reaction")
)
