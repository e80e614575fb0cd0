package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"adpoints/internal/ledger"
	"adpoints/internal/metrics"
)

// Service orchestrates the two rate-limited reward actions. Rejections are
// expected business outcomes, not errors: a rejected claim changes no state
// and maps to a user-facing message.
type Service struct {
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// AdResult reports a granted ad reward.
type AdResult struct {
	Reward  int64
	Balance int64
}

func New(l *ledger.Ledger, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		ledger:  l,
		metrics: m,
		logger:  logger.With("component", "reward"),
	}
}

// WatchAd credits the fixed ad reward, or fails with
// *ledger.CooldownActiveError inside the cooldown window.
func (s *Service) WatchAd(ctx context.Context, userID string) (*AdResult, error) {
	balance, err := s.ledger.WatchAd(ctx, userID)
	if err != nil {
		var cooldown *ledger.CooldownActiveError
		if errors.As(err, &cooldown) {
			s.metrics.RewardsRejected.WithLabelValues("ad", "cooldown").Inc()
		}
		return nil, err
	}
	s.metrics.RewardsGranted.WithLabelValues("ad").Inc()
	s.logger.Debug("ad reward granted", "user_id", userID, "balance", balance)
	return &AdResult{Reward: s.ledger.Policy().AdRewardPoints, Balance: balance}, nil
}

// ClaimDaily credits the daily bonus, or fails with
// *ledger.AlreadyClaimedError inside the daily window.
func (s *Service) ClaimDaily(ctx context.Context, userID string) (int64, error) {
	balance, err := s.ledger.ClaimDailyBonus(ctx, userID)
	if err != nil {
		var claimed *ledger.AlreadyClaimedError
		if errors.As(err, &claimed) {
			s.metrics.RewardsRejected.WithLabelValues("daily_bonus", "already_claimed").Inc()
		}
		return 0, err
	}
	s.metrics.RewardsGranted.WithLabelValues("daily_bonus").Inc()
	s.logger.Debug("daily bonus granted", "user_id", userID, "balance", balance)
	return balance, nil
}

// FailureMessage renders a reward rejection as the user-facing text shown in
// the mini-app.
func FailureMessage(err error) string {
	var cooldown *ledger.CooldownActiveError
	if errors.As(err, &cooldown) {
		return fmt.Sprintf("Please wait %d seconds between ads.", cooldown.RemainingSeconds())
	}
	var claimed *ledger.AlreadyClaimedError
	if errors.As(err, &claimed) {
		hours := claimed.RemainingHours()
		if hours <= 1 {
			return "Already claimed, try again within the hour."
		}
		return fmt.Sprintf("Already claimed, try again in %d hours.", hours)
	}
	return "Something went wrong, please try again."
}
