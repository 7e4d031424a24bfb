package schedule

import "time"

const (
	backoffFloor = 60 * time.Second
	backoffCeil  = 86_400 * time.Second
)

// Backoff computes the retry delay after the n-th consecutive failure
// (n >= 1): clamp(60*2^(n-1), 60, 86400) seconds (spec §4.3).
func Backoff(n int) time.Duration {
	if n <= 0 {
		return backoffFloor
	}
	shift := n - 1
	if shift > 20 { // guard against overflow; ceiling clamps long before this matters
		return backoffCeil
	}
	d := backoffFloor << shift
	if d > backoffCeil {
		return backoffCeil
	}
	return d
}
