package exchange

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior for idempotent reads.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig keeps retries short; the trading loop polls again soon anyway.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2.0,
	}
}

// WithRetry executes fn with exponential backoff. Never use it for order submission.
func WithRetry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		return fn()
	}

	var lastErr error
	delay := config.BaseDelay
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
