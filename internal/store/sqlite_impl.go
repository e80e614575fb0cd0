package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -- Users --

const sqliteUserColumns = `id, display_name, balance, last_ad_at, last_daily_bonus_at, referred_by, created_at, updated_at`

type sqliteRow interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row sqliteRow) (*User, error) {
	var (
		u                       User
		displayName, referredBy sql.NullString
		lastAd, lastDaily       int64
		createdAt, updatedAt    int64
	)
	err := row.Scan(&u.ID, &displayName, &u.Balance, &lastAd, &lastDaily, &referredBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if displayName.Valid {
		u.DisplayName = &displayName.String
	}
	if referredBy.Valid {
		u.ReferredBy = &referredBy.String
	}
	u.LastAdAt = time.Unix(lastAd, 0).UTC()
	u.LastDailyBonusAt = time.Unix(lastDaily, 0).UTC()
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &u, nil
}

func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, userID, displayName string) (*User, error) {
	now := time.Now().Unix()
	const q = `
INSERT INTO users (id, display_name, created_at, updated_at)
VALUES (?, NULLIF(?, ''), ?, ?)
ON CONFLICT (id) DO UPDATE SET
    display_name = COALESCE(NULLIF(excluded.display_name, ''), users.display_name),
    updated_at = excluded.updated_at
RETURNING ` + sqliteUserColumns + `;`

	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx, q, userID, displayName, now, now))
	if err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*User, error) {
	const q = `SELECT ` + sqliteUserColumns + ` FROM users WHERE id = ? LIMIT 1;`
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// -- Balance --

func (s *SQLiteStore) CreditBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	const q = `
UPDATE users SET balance = balance + ?, updated_at = ?
WHERE id = ?
RETURNING balance;`

	var balance int64
	err := s.db.QueryRowContext(ctx, q, amount, time.Now().Unix(), userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

func (s *SQLiteStore) DebitBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	const q = `
UPDATE users SET balance = balance - ?, updated_at = ?
WHERE id = ? AND balance >= ?
RETURNING balance;`

	var balance int64
	err := s.db.QueryRowContext(ctx, q, amount, time.Now().Unix(), userID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	if _, gerr := s.GetUser(ctx, userID); gerr != nil {
		return 0, gerr
	}
	return 0, ErrInsufficientBalance
}

func (s *SQLiteStore) ClaimTimedReward(ctx context.Context, userID string, timer TimerKind, now, cutoff time.Time, points int64) (int64, error) {
	col, err := timerColumn(timer)
	if err != nil {
		return 0, err
	}

	q := fmt.Sprintf(`
UPDATE users SET balance = balance + ?, %[1]s = ?, updated_at = ?
WHERE id = ? AND %[1]s <= ?
RETURNING balance;`, col)

	var balance int64
	err = s.db.QueryRowContext(ctx, q, points, now.Unix(), now.Unix(), userID, cutoff.Unix()).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("claim timed reward: %w", err)
	}

	u, gerr := s.GetUser(ctx, userID)
	if gerr != nil {
		return 0, gerr
	}
	last := u.LastAdAt
	if timer == TimerDailyBonus {
		last = u.LastDailyBonusAt
	}
	return 0, &TimerActiveError{Timer: timer, Last: last}
}

func (s *SQLiteStore) AttributeReferral(ctx context.Context, userID, referrerID string, bonus int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		nowUnix := time.Now().Unix()
		res, err := tx.ExecContext(ctx, `
INSERT INTO users (id, referred_by, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET referred_by = excluded.referred_by, updated_at = excluded.updated_at
WHERE users.referred_by IS NULL;`, userID, referrerID, nowUnix, nowUnix)
		if err != nil {
			return fmt.Errorf("set referred_by: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("set referred_by rows: %w", err)
		}
		if affected == 0 {
			return ErrAlreadyReferred
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO users (id, balance, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET balance = users.balance + excluded.balance, updated_at = excluded.updated_at;`,
			referrerID, bonus, nowUnix, nowUnix); err != nil {
			return fmt.Errorf("credit referrer: %w", err)
		}
		return nil
	})
}

// -- Withdrawals --

const sqliteWithdrawalColumns = `id, user_id, amount, method, destination_number, status, created_at, decided_at`

func scanSQLiteWithdrawal(row sqliteRow) (*Withdrawal, error) {
	var (
		w         Withdrawal
		createdAt int64
		decidedAt sql.NullInt64
	)
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Method, &w.DestinationNumber, &w.Status, &createdAt, &decidedAt)
	if err != nil {
		return nil, err
	}
	w.CreatedAt = time.Unix(createdAt, 0).UTC()
	if decidedAt.Valid {
		t := time.Unix(decidedAt.Int64, 0).UTC()
		w.DecidedAt = &t
	}
	return &w, nil
}

func (s *SQLiteStore) CreateWithdrawal(ctx context.Context, req NewWithdrawal) (*Withdrawal, error) {
	var created *Withdrawal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		nowUnix := time.Now().Unix()
		res, err := tx.ExecContext(ctx, `
UPDATE users SET balance = balance - ?, updated_at = ?
WHERE id = ? AND balance >= ?;`, req.Amount, nowUnix, req.UserID, req.Amount)
		if err != nil {
			return fmt.Errorf("reserve balance: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve balance rows: %w", err)
		}
		if affected == 0 {
			var balance int64
			err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?;`, req.UserID).Scan(&balance)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			if err != nil {
				return fmt.Errorf("check balance: %w", err)
			}
			return ErrInsufficientBalance
		}

		row := tx.QueryRowContext(ctx, `
INSERT INTO withdrawals (id, user_id, amount, method, destination_number, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING `+sqliteWithdrawalColumns+`;`,
			uuid.NewString(), req.UserID, req.Amount, req.Method, req.DestinationNumber, StatusPending, nowUnix)

		created, err = scanSQLiteWithdrawal(row)
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

func (s *SQLiteStore) GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	const q = `SELECT ` + sqliteWithdrawalColumns + ` FROM withdrawals WHERE id = ? LIMIT 1;`
	w, err := scanSQLiteWithdrawal(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

func (s *SQLiteStore) DecideWithdrawal(ctx context.Context, id string, approve bool, now time.Time) (*Withdrawal, error) {
	status := StatusApproved
	if !approve {
		status = StatusRejected
	}

	var decided *Withdrawal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
UPDATE withdrawals SET status = ?, decided_at = ?
WHERE id = ? AND status = ?
RETURNING `+sqliteWithdrawalColumns+`;`, status, now.Unix(), id, StatusPending)

		w, err := scanSQLiteWithdrawal(row)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("decide withdrawal: %w", err)
			}
			var current string
			err := tx.QueryRowContext(ctx, `SELECT status FROM withdrawals WHERE id = ?;`, id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("check withdrawal status: %w", err)
			}
			return ErrAlreadyDecided
		}

		if !approve {
			if _, err := tx.ExecContext(ctx, `
UPDATE users SET balance = balance + ?, updated_at = ?
WHERE id = ?;`, w.Amount, now.Unix(), w.UserID); err != nil {
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

func (s *SQLiteStore) ListPendingWithdrawals(ctx context.Context) ([]Withdrawal, error) {
	const q = `
SELECT ` + sqliteWithdrawalColumns + `
FROM withdrawals
WHERE status = ?
ORDER BY created_at ASC, id ASC;`

	rows, err := s.db.QueryContext(ctx, q, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending withdrawals: %w", err)
	}
	defer rows.Close()

	var result []Withdrawal
	for rows.Next() {
		w, err := scanSQLiteWithdrawal(rows)
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
