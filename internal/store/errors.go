package store

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyDecided      = errors.New("withdrawal already decided")
	ErrAlreadyReferred     = errors.New("user already referred")
)

// TimerActiveError reports a timed-reward claim that arrived before its gate
// expired. Last carries the timer value observed by the store so callers can
// compute the remaining wait.
type TimerActiveError struct {
	Timer TimerKind
	Last  time.Time
}

func (e *TimerActiveError) Error() string {
	return fmt.Sprintf("%s timer active since %s", e.Timer, e.Last.UTC().Format(time.RFC3339))
}
