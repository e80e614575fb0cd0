package withdraw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adpoints/internal/ledger"
	"adpoints/internal/metrics"
	"adpoints/internal/notify"
	"adpoints/internal/store"
)

var (
	// ErrInvalidMethod rejects a payout method outside the allowed set.
	ErrInvalidMethod = errors.New("invalid withdraw method")
	// ErrBelowMinimum rejects an amount under the minimum withdrawal.
	ErrBelowMinimum = errors.New("amount below minimum withdrawal")
)

// Methods is the allowed payout method set.
var Methods = []string{"bKash", "Nagad", "USDT"}

// Decision actions accepted by Decide.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Service owns the withdrawal lifecycle: request → pending →
// {approved | rejected-with-refund}. The amount is reserved (debited) when
// the request is created, so a pending withdrawal can never be double-spent.
type Service struct {
	store        store.Store
	ledger       *ledger.Ledger
	notifier     *notify.Dispatcher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	operatorChat string
	nowFunc      func() time.Time
}

func New(st store.Store, l *ledger.Ledger, notifier *notify.Dispatcher, m *metrics.Metrics, logger *slog.Logger, operatorChat string) *Service {
	return &Service{
		store:        st,
		ledger:       l,
		notifier:     notifier,
		metrics:      m,
		logger:       logger.With("component", "withdraw"),
		operatorChat: operatorChat,
		nowFunc:      time.Now,
	}
}

func methodAllowed(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Request validates and creates a pending withdrawal. Validation order:
// method, minimum amount, user existence, sufficient balance; the first
// failure wins. The debit and the pending record share one store
// transaction.
func (s *Service) Request(ctx context.Context, userID string, amount int64, method, destinationNumber string) (*store.Withdrawal, error) {
	if !methodAllowed(method) {
		s.metrics.WithdrawalRequests.WithLabelValues("invalid_method").Inc()
		return nil, ErrInvalidMethod
	}
	if amount < s.ledger.Policy().MinWithdrawal {
		s.metrics.WithdrawalRequests.WithLabelValues("below_minimum").Inc()
		return nil, ErrBelowMinimum
	}

	w, err := s.store.CreateWithdrawal(ctx, store.NewWithdrawal{
		UserID:            userID,
		Amount:            amount,
		Method:            method,
		DestinationNumber: destinationNumber,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			s.metrics.WithdrawalRequests.WithLabelValues("user_not_found").Inc()
		case errors.Is(err, store.ErrInsufficientBalance):
			s.metrics.WithdrawalRequests.WithLabelValues("insufficient_balance").Inc()
		default:
			s.metrics.Errors.WithLabelValues("withdraw").Inc()
		}
		return nil, err
	}

	s.ledger.Invalidate(ctx, userID)
	s.metrics.WithdrawalRequests.WithLabelValues("created").Inc()
	s.logger.Info("withdrawal requested", "withdrawal_id", w.ID, "user_id", userID, "amount", amount, "method", method)

	s.notifier.Enqueue(userID, fmt.Sprintf("Your withdraw request of %d points via %s was received and is pending review.", amount, method))
	s.notifier.Enqueue(s.operatorChat, fmt.Sprintf("New withdraw request %s: user %s, %d points via %s (%s).", w.ID, userID, amount, method, destinationNumber))

	return w, nil
}

// Decide applies a one-shot operator decision. Approval changes no balance
// (the funds were reserved at request time); rejection refunds the amount in
// the same transaction that flips the status.
func (s *Service) Decide(ctx context.Context, withdrawalID string, approve bool) (*store.Withdrawal, error) {
	w, err := s.store.DecideWithdrawal(ctx, withdrawalID, approve, s.nowFunc())
	if err != nil {
		return nil, err
	}

	if approve {
		s.metrics.WithdrawalDecisions.WithLabelValues(ActionApprove).Inc()
		s.notifier.Enqueue(w.UserID, fmt.Sprintf("Your withdraw request of %d points via %s was approved.", w.Amount, w.Method))
	} else {
		s.ledger.Invalidate(ctx, w.UserID)
		s.metrics.WithdrawalDecisions.WithLabelValues(ActionReject).Inc()
		s.notifier.Enqueue(w.UserID, fmt.Sprintf("Your withdraw request of %d points via %s was rejected. The points were refunded to your balance.", w.Amount, w.Method))
	}

	s.logger.Info("withdrawal decided", "withdrawal_id", w.ID, "status", w.Status)
	return w, nil
}

// Get returns a withdrawal by identifier, decided or not.
func (s *Service) Get(ctx context.Context, withdrawalID string) (*store.Withdrawal, error) {
	return s.store.GetWithdrawal(ctx, withdrawalID)
}

// ListPending returns pending withdrawals oldest first.
func (s *Service) ListPending(ctx context.Context) ([]store.Withdrawal, error) {
	return s.store.ListPendingWithdrawals(ctx)
}

// FailureMessage renders a request rejection as user-facing text.
func (s *Service) FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMethod):
		return "Invalid withdraw method"
	case errors.Is(err, ErrBelowMinimum):
		return fmt.Sprintf("Minimum withdraw %d coins", s.ledger.Policy().MinWithdrawal)
	case errors.Is(err, store.ErrUserNotFound):
		return "User not registered"
	case errors.Is(err, store.ErrInsufficientBalance):
		return "Insufficient balance"
	default:
		return "Server error"
	}
}
