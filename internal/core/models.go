package core

import "time"

// ChatID is the platform identifier of a chat. Message identifiers are only
// unique within a chat, never across chats.
type ChatID int64

// UserID is the platform identifier of a user.
type UserID int64

// ReactionKind is a platform-specific reaction category (an emoji type).
// Which kinds carry karma, and how much, is policy supplied from outside.
type ReactionKind string

// MessageRef is the composite identity of a tracked message.
type MessageRef struct {
	Chat      ChatID
	MessageID int64
}

// TrackedMessage is one message eligible for reaction-based karma changes.
// It is written once when the connector reports the message and never
// updated afterwards; the retention sweeper removes it past the horizon.
type TrackedMessage struct {
	Ref    MessageRef
	Author UserID
	SentAt time.Time
}

// ReactionApplication records that a reactor's reaction of a given kind has
// been applied to a message, along with the delta that was credited. Absence
// of a record means the tuple is unapplied; presence means applied. The
// stored delta is what gets reversed on removal, so a later policy change
// cannot unbalance the ledger.
type ReactionApplication struct {
	Ref       MessageRef
	Reactor   UserID
	Kind      ReactionKind
	Delta     int64
	AppliedAt time.Time
}

// KarmaBalance is the per-user karma counter. It is only ever moved by
// relative adjustments tied to reaction applications.
type KarmaBalance struct {
	User      UserID
	Balance   int64
	UpdatedAt time.Time
}

// KarmaEvent is emitted after every successful ledger mutation, for live
// subscribers (leaderboards, log sinks).
type KarmaEvent struct {
	ID        string       `json:"id"`
	Chat      ChatID       `json:"chat"`
	MessageID int64        `json:"message_id"`
	Author    UserID       `json:"author"`
	Reactor   UserID       `json:"reactor"`
	Kind      ReactionKind `json:"kind"`
	Delta     int64        `json:"delta"`
	Balance   int64        `json:"balance"`
	Removed   bool         `json:"removed,omitempty"`
	At        time.Time    `json:"at"`
}
