package batch_writer

import (
	"math"
	"math/rand"
	"time"
)

const maxBackoffDelay = 30 * time.Second

// ExponentialJitterBackoff provides backoff delays with jitter based on the
// number of attempts.
type ExponentialJitterBackoff struct {
	minDelay time.Duration
}

func NewExponentialJitterBackoff(minDelay time.Duration) *ExponentialJitterBackoff {
	return &ExponentialJitterBackoff{minDelay: minDelay}
}

// Delay returns the duration to wait before the given retry attempt
// (0-based). The calculated jitter is between [0.8, 1.2).
func (j *ExponentialJitterBackoff) Delay(attempt int) time.Duration {
	jitter := float64(rand.Intn(120-80)+80) / 100

	delay := time.Duration(float64(j.minDelay) * math.Pow(3, float64(attempt)) * jitter)
	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	return delay
}
