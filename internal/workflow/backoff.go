package workflow

import (
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before a transiently failed job is dispatched
// again: Base * 2^attempt, capped at Max, scaled by a random factor in
// [1-Jitter, 1+Jitter].
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// maxDoublings bounds the shift so the delay cannot overflow.
const maxDoublings = 32

// Delay returns the wait after the attempt-th failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	attempt = max(attempt, 0)
	delay := b.Base
	for i := 0; i < attempt && i < maxDoublings; i++ {
		if b.Max > 0 && delay >= b.Max {
			break
		}
		delay *= 2
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	if b.Jitter > 0 {
		r := b.Rand
		if r == nil {
			r = rand.Float64
		}
		factor := 1 + b.Jitter*(2*r()-1)
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}
