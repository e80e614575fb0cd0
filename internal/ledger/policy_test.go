package ledger

import (
	"testing"
	"time"
)

func TestGate(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)

	cases := []struct {
		name          string
		last          time.Time
		now           time.Time
		window        time.Duration
		wantAllowed   bool
		wantRemaining time.Duration
	}{
		{"epoch zero always allowed", time.Unix(0, 0), base, time.Minute, true, 0},
		{"exactly at window boundary", base, base.Add(time.Minute), time.Minute, true, 0},
		{"one second early", base, base.Add(59 * time.Second), time.Minute, false, time.Second},
		{"immediately after grant", base, base, time.Minute, false, time.Minute},
		{"daily window half elapsed", base, base.Add(12 * time.Hour), 24 * time.Hour, false, 12 * time.Hour},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			allowed, remaining := Gate(tc.last, tc.now, tc.window)
			if allowed != tc.wantAllowed {
				t.Fatalf("allowed = %v, want %v", allowed, tc.wantAllowed)
			}
			if remaining != tc.wantRemaining {
				t.Fatalf("remaining = %v, want %v", remaining, tc.wantRemaining)
			}
		})
	}
}

func TestCeilSeconds(t *testing.T) {
	if got := ceilSeconds(0); got != 0 {
		t.Fatalf("ceilSeconds(0) = %d, want 0", got)
	}
	if got := ceilSeconds(500 * time.Millisecond); got != 1 {
		t.Fatalf("ceilSeconds(500ms) = %d, want 1", got)
	}
	if got := ceilSeconds(60 * time.Second); got != 60 {
		t.Fatalf("ceilSeconds(60s) = %d, want 60", got)
	}
	if got := ceilSeconds(60*time.Second + time.Millisecond); got != 61 {
		t.Fatalf("ceilSeconds(60s+1ms) = %d, want 61", got)
	}
}

func TestCeilHours(t *testing.T) {
	if got := ceilHours(23*time.Hour + time.Minute); got != 24 {
		t.Fatalf("ceilHours(23h1m) = %d, want 24", got)
	}
	if got := ceilHours(time.Minute); got != 1 {
		t.Fatalf("ceilHours(1m) = %d, want 1", got)
	}
}
