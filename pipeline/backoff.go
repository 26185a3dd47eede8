package pipeline

import "time"

// backoff computes a deterministic capped exponential backoff duration for
// the given retry attempt (attempt 0 returns base).
func backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
