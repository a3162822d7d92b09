package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okroshka/karmabot/internal/core"
)

// ApplyReaction transitions (message, reactor, kind) to applied and credits
// the author's balance, all in one transaction. The registry lookup, the
// state check, and the ledger mutation are one all-or-nothing unit: a message
// purged mid-flight surfaces as core.ErrUnknownMessage, and a tuple that is
// already applied commits nothing (applied=false).
func (s *Store) ApplyReaction(ctx context.Context, ref core.MessageRef, reactor core.UserID, kind core.ReactionKind, delta int64) (bool, core.UserID, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	msgPK, author, err := lookupMessageTx(ctx, tx, ref)
	if err != nil {
		return false, 0, 0, err
	}
	if author == reactor {
		return false, author, 0, core.ErrSelfReaction
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO reaction_applications (message_pk, reactor_id, kind, delta, applied_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (message_pk, reactor_id, kind) DO NOTHING`,
		msgPK, int64(reactor), string(kind), delta, now.UnixMilli(),
	)
	if err != nil {
		return false, 0, 0, fmt.Errorf("apply reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, 0, fmt.Errorf("apply reaction: %w", err)
	}
	if n == 0 {
		// Idempotent re-delivery: tuple already applied.
		balance, err := balanceTx(ctx, tx, author)
		if err != nil {
			return false, 0, 0, err
		}
		if err := tx.Commit(); err != nil {
			return false, 0, 0, fmt.Errorf("commit: %w", err)
		}
		return false, author, balance, nil
	}

	balance, err := adjustBalanceTx(ctx, tx, author, delta, now)
	if err != nil {
		return false, 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, 0, fmt.Errorf("commit: %w", err)
	}
	return true, author, balance, nil
}

// RemoveReaction reverts the tuple to unapplied, debiting exactly the delta
// recorded when it was applied. Removing a tuple that was never applied is a
// no-op (removed=false).
func (s *Store) RemoveReaction(ctx context.Context, ref core.MessageRef, reactor core.UserID, kind core.ReactionKind) (bool, core.UserID, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	msgPK, author, err := lookupMessageTx(ctx, tx, ref)
	if err != nil {
		return false, 0, 0, err
	}

	var delta int64
	err = tx.QueryRowContext(ctx,
		`SELECT delta FROM reaction_applications
		 WHERE message_pk = ? AND reactor_id = ? AND kind = ?`,
		msgPK, int64(reactor), string(kind),
	).Scan(&delta)
	if errors.Is(err, sql.ErrNoRows) {
		balance, err := balanceTx(ctx, tx, author)
		if err != nil {
			return false, 0, 0, err
		}
		if err := tx.Commit(); err != nil {
			return false, 0, 0, fmt.Errorf("commit: %w", err)
		}
		return false, author, balance, nil
	}
	if err != nil {
		return false, 0, 0, fmt.Errorf("lookup reaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reaction_applications WHERE message_pk = ? AND reactor_id = ? AND kind = ?`,
		msgPK, int64(reactor), string(kind),
	); err != nil {
		return false, 0, 0, fmt.Errorf("remove reaction: %w", err)
	}

	balance, err := adjustBalanceTx(ctx, tx, author, -delta, time.Now().UTC())
	if err != nil {
		return false, 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, 0, fmt.Errorf("commit: %w", err)
	}
	return true, author, balance, nil
}

func lookupMessageTx(ctx context.Context, tx *sql.Tx, ref core.MessageRef) (int64, core.UserID, error) {
	var msgPK, author int64
	err := tx.QueryRowContext(ctx,
		`SELECT id, author_id FROM messages WHERE chat_id = ? AND message_id = ?`,
		int64(ref.Chat), ref.MessageID,
	).Scan(&msgPK, &author)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, core.ErrUnknownMessage
	}
	if err != nil {
		return 0, 0, fmt.Errorf("lookup message: %w", err)
	}
	return msgPK, core.UserID(author), nil
}
