package store

import "time"

// Withdrawal status values. Transitions are one-shot: pending may move to
// approved or rejected, never back.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// TimerKind selects one of the per-user reward timers.
type TimerKind string

const (
	TimerAd         TimerKind = "ad"
	TimerDailyBonus TimerKind = "daily_bonus"
)

// User represents a row in the users table. Timer fields default to the Unix
// epoch so a fresh user passes every gate immediately.
type User struct {
	ID               string
	DisplayName      *string
	Balance          int64
	LastAdAt         time.Time
	LastDailyBonusAt time.Time
	ReferredBy       *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Withdrawal represents a row in the withdrawals table. Amount was already
// debited from the user when the row was created.
type Withdrawal struct {
	ID                string
	UserID            string
	Amount            int64
	Method            string
	DestinationNumber string
	Status            string
	CreatedAt         time.Time
	DecidedAt         *time.Time
}

// NewWithdrawal carries data used to create a pending withdrawal.
type NewWithdrawal struct {
	UserID            string
	Amount            int64
	Method            string
	DestinationNumber string
}
