// pkg/retry/retry.go - functions for retrying actions with exponential backoff.

package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/windowsadmins/msixinstaller/pkg/logging"
)

// RetryConfig defines the configuration for retry attempts
type RetryConfig struct {
	MaxRetries      int // total attempts, including the first
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultConfig is used when the configuration leaves retries unset.
var DefaultConfig = RetryConfig{MaxRetries: 3, InitialInterval: 200 * time.Millisecond, Multiplier: 2}

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.Multiplier >= 1 {
		b.Multiplier = c.Multiplier
	}
	b.MaxElapsedTime = 0

	attempts := c.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs action until it succeeds, returns a permanent error, the attempts
// run out or ctx is cancelled. The last error is returned.
func Do(ctx context.Context, config RetryConfig, what string, action func() error) error {
	attempt := 0
	op := func() error {
		attempt++
		return action()
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn(fmt.Sprintf("Attempt %d/%d failed: %v. Retrying in %s...", attempt, config.MaxRetries, err, wait),
			"target", what, "attempt", attempt)
	}

	err := backoff.RetryNotify(op, config.backOff(ctx), notify)
	if err != nil && attempt > 1 {
		logging.Warn(fmt.Sprintf("Attempt %d/%d failed: %v. No more retries.", attempt, config.MaxRetries, err),
			"target", what, "final_failure", true)
	}
	return err
}
