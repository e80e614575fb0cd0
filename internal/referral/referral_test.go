package referral_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"adpoints/internal/config"
	"adpoints/internal/ledger"
	"adpoints/internal/metrics"
	"adpoints/internal/referral"
	"adpoints/internal/store"
	"adpoints/migrations"
)

func newTestEngine(t *testing.T) (*referral.Engine, *ledger.Ledger) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.RunMigrations(context.Background(), migrations.Files); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	m := metrics.Registry("referraltest")
	l := ledger.New(st, nil, m, logger, config.RewardPolicy{
		AdRewardPoints:   10,
		AdCooldown:       60 * time.Second,
		DailyBonusPoints: 20,
		DailyBonusWindow: 24 * time.Hour,
		ReferralBonus:    100,
		MinWithdrawal:    100,
	})
	return referral.New(l, m, logger), l
}

func balanceOf(t *testing.T, l *ledger.Ledger, id string) int64 {
	t.Helper()
	balance, err := l.Balance(context.Background(), id)
	if err != nil {
		t.Fatalf("balance of %s: %v", id, err)
	}
	return balance
}

func TestAttributePaysReferrerOnce(t *testing.T) {
	e, l := newTestEngine(t)
	ctx := context.Background()

	if _, err := l.GetOrCreate(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := l.GetOrCreate(ctx, "bob", "Bob"); err != nil {
		t.Fatalf("create referrer: %v", err)
	}

	if err := e.Attribute(ctx, "alice", "bob"); err != nil {
		t.Fatalf("attribute: %v", err)
	}
	if got := balanceOf(t, l, "bob"); got != 100 {
		t.Fatalf("referrer balance = %d, want 100", got)
	}

	// Retrying, even with a different referrer, never pays again.
	if err := e.Attribute(ctx, "alice", "bob"); !errors.Is(err, store.ErrAlreadyReferred) {
		t.Fatalf("repeat attribute error = %v, want ErrAlreadyReferred", err)
	}
	if err := e.Attribute(ctx, "alice", "carol"); !errors.Is(err, store.ErrAlreadyReferred) {
		t.Fatalf("second referrer error = %v, want ErrAlreadyReferred", err)
	}
	if got := balanceOf(t, l, "bob"); got != 100 {
		t.Fatalf("referrer balance after retries = %d, want 100", got)
	}
}

func TestAttributeSelfReferral(t *testing.T) {
	e, l := newTestEngine(t)
	ctx := context.Background()

	if _, err := l.GetOrCreate(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := e.Attribute(ctx, "alice", "alice"); !errors.Is(err, referral.ErrSelfReferral) {
		t.Fatalf("error = %v, want ErrSelfReferral", err)
	}
	if got := balanceOf(t, l, "alice"); got != 0 {
		t.Fatalf("balance after self referral = %d, want 0", got)
	}
}

func TestAttributeCreatesReferrerLazily(t *testing.T) {
	e, l := newTestEngine(t)
	ctx := context.Background()

	if _, err := l.GetOrCreate(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := e.Attribute(ctx, "alice", "newcomer"); err != nil {
		t.Fatalf("attribute: %v", err)
	}
	if got := balanceOf(t, l, "newcomer"); got != 100 {
		t.Fatalf("lazily created referrer balance = %d, want 100", got)
	}
}

func TestAttributeCreatesReferredUserLazily(t *testing.T) {
	e, l := newTestEngine(t)
	ctx := context.Background()

	// The referred user has never registered; attribution creates the record
	// and still pays the referrer.
	if err := e.Attribute(ctx, "stranger", "bob"); err != nil {
		t.Fatalf("attribute: %v", err)
	}
	if got := balanceOf(t, l, "bob"); got != 100 {
		t.Fatalf("referrer balance = %d, want 100", got)
	}
	if got := balanceOf(t, l, "stranger"); got != 0 {
		t.Fatalf("referred user balance = %d, want 0", got)
	}

	// The lazily created record carries the attribution, so it stays one-shot.
	if err := e.Attribute(ctx, "stranger", "carol"); !errors.Is(err, store.ErrAlreadyReferred) {
		t.Fatalf("repeat attribute error = %v, want ErrAlreadyReferred", err)
	}
	if got := balanceOf(t, l, "carol"); got != 0 {
		t.Fatalf("second referrer balance = %d, want 0", got)
	}
}
