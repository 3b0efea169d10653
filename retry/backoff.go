package retry

import (
	"math/rand/v2"
	"time"
)

// maxShift bounds the doubling so BaseDelay<<attempt cannot overflow.
const maxShift = 30

// backoff returns the delay before retry number attempt (0-indexed):
// BaseDelay doubled per attempt, capped at MaxDelay when set, then spread by
// ±Jitter.
func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.BaseDelay << min(attempt, maxShift)
	if cfg.MaxDelay > 0 && (d > cfg.MaxDelay || d < 0) {
		d = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		d += time.Duration(float64(d) * cfg.Jitter * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}
