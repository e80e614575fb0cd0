package store

import (
	"context"
	"io/fs"
	"time"
)

// Store defines the persistence interface. Every conditional transition
// (debit with sufficient balance, timed-reward gate, one-shot referral
// assignment, one-shot withdrawal decision) is pushed down into the store so
// that two concurrent requests can never both observe the precondition as
// true and both apply the mutation.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	GetOrCreateUser(ctx context.Context, userID, displayName string) (*User, error)
	GetUser(ctx context.Context, userID string) (*User, error)

	// Balance
	CreditBalance(ctx context.Context, userID string, amount int64) (int64, error)
	DebitBalance(ctx context.Context, userID string, amount int64) (int64, error)

	// ClaimTimedReward atomically checks that the selected timer is at or
	// before cutoff, then sets it to now and credits points, all in one
	// statement. Returns the new balance, or a *TimerActiveError when the
	// gate has not expired.
	ClaimTimedReward(ctx context.Context, userID string, timer TimerKind, now, cutoff time.Time, points int64) (int64, error)

	// AttributeReferral sets referred_by on the user (only when unset) and
	// credits the referrer's balance in the same transaction. Both users are
	// created lazily when absent.
	AttributeReferral(ctx context.Context, userID, referrerID string, bonus int64) error

	// Withdrawals
	CreateWithdrawal(ctx context.Context, req NewWithdrawal) (*Withdrawal, error)
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	DecideWithdrawal(ctx context.Context, id string, approve bool, now time.Time) (*Withdrawal, error)
	ListPendingWithdrawals(ctx context.Context) ([]Withdrawal, error)
}
