package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okroshka/karmabot/internal/core"
	"github.com/okroshka/karmabot/internal/storage"
)

// RecordMessage inserts a tracked message, creating the chat and user anchor
// rows as needed. Re-delivery of the same (chat, message) pair returns
// core.ErrDuplicateMessage without touching the existing row.
func (s *Store) RecordMessage(ctx context.Context, msg core.TrackedMessage) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO chats (id) VALUES (?)`, int64(msg.Ref.Chat)); err != nil {
		return fmt.Errorf("ensure chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, int64(msg.Author)); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (chat_id, message_id, author_id, sent_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (chat_id, message_id) DO NOTHING`,
		int64(msg.Ref.Chat), msg.Ref.MessageID, int64(msg.Author), msg.SentAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if n == 0 {
		return core.ErrDuplicateMessage
	}
	return nil
}

// GetMessage looks up a tracked message by its composite platform identity.
func (s *Store) GetMessage(ctx context.Context, ref core.MessageRef) (core.TrackedMessage, error) {
	var author, sentAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT author_id, sent_at FROM messages WHERE chat_id = ? AND message_id = ?`,
		int64(ref.Chat), ref.MessageID,
	).Scan(&author, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TrackedMessage{}, core.ErrUnknownMessage
	}
	if err != nil {
		return core.TrackedMessage{}, fmt.Errorf("get message: %w", err)
	}
	return core.TrackedMessage{
		Ref:    ref,
		Author: core.UserID(author),
		SentAt: time.UnixMilli(sentAt).UTC(),
	}, nil
}

// PurgeMessagesOlderThan deletes up to batchSize messages sent before cutoff.
// Reaction applications go with them via the schema's cascade rule. One batch
// is one transaction, so an interrupted sweep resumes cleanly.
func (s *Store) PurgeMessagesOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = storage.DefaultPurgeBatchSize
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id IN (
		     SELECT id FROM messages WHERE sent_at < ? ORDER BY sent_at LIMIT ?
		 )`,
		cutoff.UnixMilli(), batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	return n, nil
}
