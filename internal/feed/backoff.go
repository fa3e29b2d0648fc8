package feed

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is exponential backoff with optional full jitter for resubscribing.
type Backoff struct {
	Base       time.Duration `yaml:"base"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     bool          `yaml:"jitter"`
}

// DefaultBackoff: 500ms doubling up to 30s, full jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second, Multiplier: 2, Jitter: true}
}

// Delay returns the wait before retry number attempt (0-indexed), capped at Max
// (DefaultBackoff().Max when unset).
// With Jitter the result is uniform in [0, capped].
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	limit := b.Max
	if limit <= 0 {
		limit = DefaultBackoff().Max
	}
	d := float64(b.Base) * math.Pow(mult, float64(attempt))
	if d > float64(limit) {
		d = float64(limit)
	}
	delay := time.Duration(d)
	if b.Jitter {
		delay = time.Duration(rand.Int64N(int64(delay) + 1))
	}
	return delay
}
