package ledger

import "time"

// Gate is the single time-gate rule shared by the ad cooldown and the daily
// bonus window: a claim is allowed once the full window has elapsed since the
// last grant. Remaining is zero when allowed, otherwise the wait left.
func Gate(last, now time.Time, window time.Duration) (allowed bool, remaining time.Duration) {
	elapsed := now.Sub(last)
	if elapsed >= window {
		return true, 0
	}
	return false, window - elapsed
}

// ceilSeconds rounds a duration up to whole seconds for user-facing waits, so
// "wait 0 seconds" is never shown while the gate is still active.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// ceilHours rounds a duration up to whole hours.
func ceilHours(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	hours := int64(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}
