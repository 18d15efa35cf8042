package executor

import (
	"context"
	"time"
)

// Backoff defaults for in-run retries.
const (
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 30 * time.Second
	DefaultMultiplier = 2.0
)

// RetryConfig configures exponential backoff between attempts of one job.
type RetryConfig struct {
	MaxAttempts int           // 1 disables retry
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns a config making maxAttempts attempts.
func DefaultRetryConfig(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// retryWithBackoff runs fn until it succeeds, attempts are exhausted or ctx
// is done. It returns the number of attempts made and the last error.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) (int, error) {
	attempts := max(config.MaxAttempts, 1)
	backoff := config.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == attempts {
			return attempt, lastErr
		}

		select {
		case <-ctx.Done():
			return attempt, lastErr
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * config.Multiplier)
			if config.MaxDelay > 0 && backoff > config.MaxDelay {
				backoff = config.MaxDelay
			}
		}
	}
	return attempts, lastErr
}
