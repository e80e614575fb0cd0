package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adpoints/internal/cache"
	"adpoints/internal/config"
	"adpoints/internal/metrics"
	"adpoints/internal/store"
)

// CooldownActiveError reports an ad-watch claim inside the cooldown window.
type CooldownActiveError struct {
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("ad cooldown active, %ds remaining", e.RemainingSeconds())
}

// RemainingSeconds returns the wait rounded up to whole seconds.
func (e *CooldownActiveError) RemainingSeconds() int64 {
	return ceilSeconds(e.Remaining)
}

// AlreadyClaimedError reports a daily-bonus claim inside the 24h window.
type AlreadyClaimedError struct {
	Remaining time.Duration
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("daily bonus already claimed, %dh remaining", e.RemainingHours())
}

// RemainingHours returns the wait rounded up to whole hours.
func (e *AlreadyClaimedError) RemainingHours() int64 {
	return ceilHours(e.Remaining)
}

// Ledger owns every balance mutation and the reward timers. Other components
// never write balances directly; they go through Credit/Debit or the claim
// operations here, all of which resolve races inside the store.
type Ledger struct {
	store   store.Store
	cache   *cache.Redis
	metrics *metrics.Metrics
	logger  *slog.Logger
	policy  config.RewardPolicy
	nowFunc func() time.Time
}

// New creates a Ledger. The redis cache may be nil.
func New(st store.Store, redis *cache.Redis, m *metrics.Metrics, logger *slog.Logger, policy config.RewardPolicy) *Ledger {
	return &Ledger{
		store:   st,
		cache:   redis,
		metrics: m,
		logger:  logger.With("component", "ledger"),
		policy:  policy,
		nowFunc: time.Now,
	}
}

func (l *Ledger) observe(op string, start time.Time) {
	l.metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetNowFunc overrides the clock. Test hook.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	l.nowFunc = now
}

// Policy exposes the active reward policy.
func (l *Ledger) Policy() config.RewardPolicy {
	return l.policy
}

// GetOrCreate fetches the user, lazily creating a zero-balance record.
func (l *Ledger) GetOrCreate(ctx context.Context, userID, displayName string) (*store.User, error) {
	defer l.observe("get_or_create_user", time.Now())
	return l.store.GetOrCreateUser(ctx, userID, displayName)
}

func balanceKey(userID string) string {
	return "balance:" + userID
}

// Balance returns the user's balance through a short-lived read cache,
// creating the user when absent.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var cached int64
	if hit, err := l.cache.GetJSON(ctx, balanceKey(userID), &cached); err != nil {
		l.logger.Warn("balance cache read failed", "user_id", userID, "error", err)
	} else if hit {
		return cached, nil
	}

	start := time.Now()
	u, err := l.store.GetOrCreateUser(ctx, userID, "")
	l.observe("get_or_create_user", start)
	if err != nil {
		return 0, err
	}
	l.cacheBalance(ctx, userID, u.Balance)
	return u.Balance, nil
}

// Credit atomically adds amount to the user's balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	defer l.observe("credit_balance", time.Now())
	balance, err := l.store.CreditBalance(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	l.invalidate(ctx, userID)
	return balance, nil
}

// Debit atomically subtracts amount, failing with store.ErrInsufficientBalance
// when the balance does not cover it.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	defer l.observe("debit_balance", time.Now())
	balance, err := l.store.DebitBalance(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	l.invalidate(ctx, userID)
	return balance, nil
}

// WatchAd credits the ad reward when the cooldown has elapsed. The gate check
// and the credit are one store statement, so two near-simultaneous requests
// can never both pass.
func (l *Ledger) WatchAd(ctx context.Context, userID string) (int64, error) {
	now := l.nowFunc()
	defer l.observe("claim_timed_reward", time.Now())
	balance, err := l.store.ClaimTimedReward(ctx, userID, store.TimerAd, now, now.Add(-l.policy.AdCooldown), l.policy.AdRewardPoints)
	if err != nil {
		var timerErr *store.TimerActiveError
		if errors.As(err, &timerErr) {
			_, remaining := Gate(timerErr.Last, now, l.policy.AdCooldown)
			return 0, &CooldownActiveError{Remaining: remaining}
		}
		return 0, err
	}
	l.invalidate(ctx, userID)
	return balance, nil
}

// ClaimDailyBonus credits the daily bonus at most once per window.
func (l *Ledger) ClaimDailyBonus(ctx context.Context, userID string) (int64, error) {
	now := l.nowFunc()
	defer l.observe("claim_timed_reward", time.Now())
	balance, err := l.store.ClaimTimedReward(ctx, userID, store.TimerDailyBonus, now, now.Add(-l.policy.DailyBonusWindow), l.policy.DailyBonusPoints)
	if err != nil {
		var timerErr *store.TimerActiveError
		if errors.As(err, &timerErr) {
			_, remaining := Gate(timerErr.Last, now, l.policy.DailyBonusWindow)
			return 0, &AlreadyClaimedError{Remaining: remaining}
		}
		return 0, err
	}
	l.invalidate(ctx, userID)
	return balance, nil
}

// AttributeReferral sets the user's referrer once and pays the referral
// bonus to the referrer, both inside a single store transaction so a retry
// can never double-pay.
func (l *Ledger) AttributeReferral(ctx context.Context, userID, referrerID string) error {
	defer l.observe("attribute_referral", time.Now())
	if err := l.store.AttributeReferral(ctx, userID, referrerID, l.policy.ReferralBonus); err != nil {
		return err
	}
	l.invalidate(ctx, referrerID)
	return nil
}

// Invalidate drops cached balances after an out-of-band mutation (withdrawal
// request, refund, referral payout).
func (l *Ledger) Invalidate(ctx context.Context, userIDs ...string) {
	l.invalidate(ctx, userIDs...)
}

func (l *Ledger) invalidate(ctx context.Context, userIDs ...string) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, balanceKey(id))
	}
	if err := l.cache.Delete(ctx, keys...); err != nil {
		l.logger.Warn("balance cache invalidation failed", "error", err)
	}
}

func (l *Ledger) cacheBalance(ctx context.Context, userID string, balance int64) {
	if l.policy.BalanceCacheTTL <= 0 {
		return
	}
	if err := l.cache.SetJSON(ctx, balanceKey(userID), balance, l.policy.BalanceCacheTTL); err != nil {
		l.logger.Warn("balance cache write failed", "user_id", userID, "error", err)
	}
}
