package referral

import (
	"context"
	"errors"
	"log/slog"

	"adpoints/internal/ledger"
	"adpoints/internal/metrics"
)

// ErrSelfReferral rejects a user referring themselves.
var ErrSelfReferral = errors.New("self referral")

// Engine attributes one-time referral bonuses. Attribution and payout run as
// one ledger transaction; repeated calls after a success fail with
// store.ErrAlreadyReferred and never pay twice.
type Engine struct {
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(l *ledger.Ledger, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		ledger:  l,
		metrics: m,
		logger:  logger.With("component", "referral"),
	}
}

// Attribute records referrerID as the referrer of userID and credits the
// referral bonus to the referrer.
func (e *Engine) Attribute(ctx context.Context, userID, referrerID string) error {
	if userID == referrerID {
		return ErrSelfReferral
	}
	if err := e.ledger.AttributeReferral(ctx, userID, referrerID); err != nil {
		return err
	}
	e.metrics.ReferralsAttributed.Inc()
	e.logger.Info("referral attributed", "user_id", userID, "referrer_id", referrerID)
	return nil
}
