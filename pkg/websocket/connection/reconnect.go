package connection

import (
	"time"
)

// linearBackoffStrategy waits BaseDelay*attempt before the Nth retry, up to
// maxAttempts retries.
type linearBackoffStrategy struct {
	baseDelay   time.Duration
	maxAttempts int
}

func NewLinearBackoffStrategy(baseDelay time.Duration, maxAttempts int) ReconnectionStrategy {
	return &linearBackoffStrategy{
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
	}
}

func (lbs *linearBackoffStrategy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return lbs.baseDelay
	}
	return lbs.baseDelay * time.Duration(attempt)
}

func (lbs *linearBackoffStrategy) MaxAttempts() int {
	return lbs.maxAttempts
}
