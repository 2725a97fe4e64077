package export

import (
	"math"
	"math/rand"
	"time"
)

// RetryStrategy defines exponential backoff for ledger submissions
type RetryStrategy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Jitter      bool
}

// NewRetryStrategy creates a strategy with the default 1s/8s window
func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts: 4,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  8 * time.Second,
		Jitter:      true,
	}
}

// CalculateBackoff returns the wait before the given retry attempt.
// Backoff doubles per attempt (1s, 2s, 4s, 8s) and is capped at MaxBackoff.
func (s *RetryStrategy) CalculateBackoff(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseBackoff
	}

	multiplier := math.Pow(2, float64(attemptNumber-1))
	backoff := time.Duration(multiplier) * s.BaseBackoff
	if backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.Jitter {
		// spread +-10% so parallel retries do not land together
		jitterRange := backoff / 10
		if jitterRange > 0 {
			jitter := time.Duration(rand.Intn(int(jitterRange*2))) - jitterRange
			backoff += jitter
			if backoff < s.BaseBackoff {
				backoff = s.BaseBackoff
			}
		}
	}

	return backoff
}

// IsRetryableStatusCode reports whether an HTTP status warrants retry.
// 4xx replies are permanent except 429; 5xx replies are transient.
func (s *RetryStrategy) IsRetryableStatusCode(statusCode int) bool {
	if statusCode >= 400 && statusCode < 500 {
		return statusCode == 429
	}
	return statusCode >= 500 && statusCode < 600
}
