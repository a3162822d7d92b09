package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okroshka/karmabot/internal/core"
)

// adjustBalanceTx moves a user's balance by delta inside an open transaction.
// The upsert does the arithmetic in SQL so there is no read-modify-write
// window at the application layer.
func adjustBalanceTx(ctx context.Context, tx *sql.Tx, user core.UserID, delta int64, now time.Time) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO karma_balances (user_id, balance, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		     balance = balance + excluded.balance,
		     updated_at = excluded.updated_at`,
		int64(user), delta, now.UnixMilli(),
	); err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	return balanceTx(ctx, tx, user)
}

func balanceTx(ctx context.Context, tx *sql.Tx, user core.UserID) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM karma_balances WHERE user_id = ?`, int64(user),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// Balance returns the user's current karma, 0 if the user has no ledger row.
func (s *Store) Balance(ctx context.Context, user core.UserID) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM karma_balances WHERE user_id = ?`, int64(user),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// TopBalances returns up to limit balances ordered highest first.
func (s *Store) TopBalances(ctx context.Context, limit int) ([]core.KarmaBalance, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, balance, updated_at FROM karma_balances
		 ORDER BY balance DESC, user_id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []core.KarmaBalance
	for rows.Next() {
		var user, balance, updatedAt int64
		if err := rows.Scan(&user, &balance, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, core.KarmaBalance{
			User:      core.UserID(user),
			Balance:   balance,
			UpdatedAt: time.UnixMilli(updatedAt).UTC(),
		})
	}
	return out, rows.Err()
}

// Percentile returns the share of ledger users with strictly higher balance
// (0 = top of the board). ok is false when the user has no ledger row.
func (s *Store) Percentile(ctx context.Context, user core.UserID) (float64, bool, error) {
	var higher, total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM karma_balances o WHERE o.balance > k.balance),
		     (SELECT COUNT(*) FROM karma_balances)
		 FROM karma_balances k WHERE k.user_id = ?`,
		int64(user),
	).Scan(&higher, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("percentile: %w", err)
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(higher) / float64(total), true, nil
}
