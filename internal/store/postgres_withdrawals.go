package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const withdrawalColumns = `id, user_id, amount, method, destination_number, status, created_at, decided_at`

func scanWithdrawal(row pgx.Row) (*Withdrawal, error) {
	var w Withdrawal
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Method, &w.DestinationNumber, &w.Status, &w.CreatedAt, &w.DecidedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWithdrawal reserves the amount (conditional debit) and inserts the
// pending record in one transaction, so the balance can never be spent twice
// through a pending request.
func (s *PostgresStore) CreateWithdrawal(ctx context.Context, req NewWithdrawal) (*Withdrawal, error) {
	var created *Withdrawal
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
UPDATE users SET balance = balance - $2, updated_at = NOW()
WHERE id = $1 AND balance >= $2;`, req.UserID, req.Amount)
		if err != nil {
			return fmt.Errorf("reserve balance: %w", err)
		}
		if ct.RowsAffected() == 0 {
			var balance int64
			err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1;`, req.UserID).Scan(&balance)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			if err != nil {
				return fmt.Errorf("check balance: %w", err)
			}
			return ErrInsufficientBalance
		}

		row := tx.QueryRow(ctx, `
INSERT INTO withdrawals (id, user_id, amount, method, destination_number, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+withdrawalColumns+`;`,
			uuid.NewString(), req.UserID, req.Amount, req.Method, req.DestinationNumber, StatusPending)

		created, err = scanWithdrawal(row)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetWithdrawal retrieves a withdrawal by identifier.
func (s *PostgresStore) GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	const q = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 LIMIT 1;`
	w, err := scanWithdrawal(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

// DecideWithdrawal flips a pending withdrawal to approved or rejected exactly
// once. A rejection refunds the reserved amount in the same transaction, so
// no window exists where the status is rejected but the balance not yet
// restored.
func (s *PostgresStore) DecideWithdrawal(ctx context.Context, id string, approve bool, now time.Time) (*Withdrawal, error) {
	status := StatusApproved
	if !approve {
		status = StatusRejected
	}

	var decided *Withdrawal
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
UPDATE withdrawals SET status = $2, decided_at = $3
WHERE id = $1 AND status = $4
RETURNING `+withdrawalColumns+`;`, id, status, now, StatusPending)

		w, err := scanWithdrawal(row)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("decide withdrawal: %w", err)
			}
			var current string
			err := tx.QueryRow(ctx, `SELECT status FROM withdrawals WHERE id = $1;`, id).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("check withdrawal status: %w", err)
			}
			return ErrAlreadyDecided
		}

		if !approve {
			if _, err := tx.Exec(ctx, `
UPDATE users SET balance = balance + $2, updated_at = NOW()
WHERE id = $1;`, w.UserID, w.Amount); err != nil {
				return fmt.Errorf("refund balance: %w", err)
			}
		}
		decided = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

// ListPendingWithdrawals returns pending requests oldest first, for fair
// operator processing.
func (s *PostgresStore) ListPendingWithdrawals(ctx context.Context) ([]Withdrawal, error) {
	const q = `
SELECT ` + withdrawalColumns + `
FROM withdrawals
WHERE status = $1
ORDER BY created_at ASC;`

	rows, err := s.pool.Query(ctx, q, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending withdrawals: %w", err)
	}
	defer rows.Close()

	var result []Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending withdrawal: %w", err)
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending withdrawals: %w", err)
	}
	return result, nil
}
