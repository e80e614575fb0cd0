package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore provides typed access to the Postgres database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres opens a new connection pool to the database.
func NewPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "store_postgres"),
	}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (s *PostgresStore) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return applyPostgresMigrations(ctx, s.pool, filesystem)
}

// WithTx executes fn within a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

const userColumns = `id, display_name, balance, last_ad_at, last_daily_bonus_at, referred_by, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Balance, &u.LastAdAt, &u.LastDailyBonusAt, &u.ReferredBy, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateUser fetches the user, creating a zero-balance record on first
// contact. An empty displayName never overwrites a stored one.
func (s *PostgresStore) GetOrCreateUser(ctx context.Context, userID, displayName string) (*User, error) {
	const q = `
INSERT INTO users (id, display_name)
VALUES ($1, NULLIF($2, ''))
ON CONFLICT (id) DO UPDATE SET
    display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
    updated_at = NOW()
RETURNING ` + userColumns + `;`

	u, err := scanUser(s.pool.QueryRow(ctx, q, userID, displayName))
	if err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	return u, nil
}

// GetUser returns a user by identifier.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1;`
	u, err := scanUser(s.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreditBalance atomically increments the balance and returns the new value.
func (s *PostgresStore) CreditBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	const q = `
UPDATE users SET balance = balance + $2, updated_at = NOW()
WHERE id = $1
RETURNING balance;`

	var balance int64
	if err := s.pool.QueryRow(ctx, q, userID, amount).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

// DebitBalance decrements the balance only when sufficient funds exist. The
// balance guard lives in the statement itself, so concurrent debits cannot
// both succeed past the available balance.
func (s *PostgresStore) DebitBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	const q = `
UPDATE users SET balance = balance - $2, updated_at = NOW()
WHERE id = $1 AND balance >= $2
RETURNING balance;`

	var balance int64
	err := s.pool.QueryRow(ctx, q, userID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	if _, gerr := s.GetUser(ctx, userID); gerr != nil {
		return 0, gerr
	}
	return 0, ErrInsufficientBalance
}

func timerColumn(timer TimerKind) (string, error) {
	switch timer {
	case TimerAd:
		return "last_ad_at", nil
	case TimerDailyBonus:
		return "last_daily_bonus_at", nil
	default:
		return "", fmt.Errorf("unknown timer kind %q", timer)
	}
}

// ClaimTimedReward applies the gate check, the timer update and the credit in
// a single statement.
func (s *PostgresStore) ClaimTimedReward(ctx context.Context, userID string, timer TimerKind, now, cutoff time.Time, points int64) (int64, error) {
	col, err := timerColumn(timer)
	if err != nil {
		return 0, err
	}

	q := fmt.Sprintf(`
UPDATE users SET balance = balance + $4, %[1]s = $2, updated_at = NOW()
WHERE id = $1 AND %[1]s <= $3
RETURNING balance;`, col)

	var balance int64
	err = s.pool.QueryRow(ctx, q, userID, now, cutoff, points).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
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

// AttributeReferral sets referred_by once and pays the referrer inside one
// transaction. Both the referred user and the referrer are created on the fly
// when absent, mirroring the lazy user creation elsewhere.
func (s *PostgresStore) AttributeReferral(ctx context.Context, userID, referrerID string, bonus int64) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
INSERT INTO users (id, referred_by) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET referred_by = $2, updated_at = NOW()
WHERE users.referred_by IS NULL;`, userID, referrerID)
		if err != nil {
			return fmt.Errorf("set referred_by: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrAlreadyReferred
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO users (id, balance) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET balance = users.balance + $2, updated_at = NOW();`, referrerID, bonus); err != nil {
			return fmt.Errorf("credit referrer: %w", err)
		}
		return nil
	})
}
