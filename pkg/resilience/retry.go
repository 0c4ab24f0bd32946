// Package resilience provides exponential-backoff retry for operations whose
// failures may be transient, such as WAL appends against a full disk or a
// store that is briefly unreachable.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/config"
)

// Defaults are sized for a caller holding an HTTP request or an
// uncommitted Kafka message: three attempts finish well under a second.
const (
	defaultMaxAttempts    = 3
	defaultInitialDelay   = 10 * time.Millisecond
	defaultMaxDelay       = 500 * time.Millisecond
	defaultMultiplier     = 2.0
	defaultJitterFraction = 0.2
)

type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// Retryable reports whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(error) bool
}

// ForWAL derives the append retry policy from the wal section of the
// config. Zero values fall back to the package defaults.
func ForWAL(cfg config.WALConfig, retryable func(error) bool) RetryConfig {
	return RetryConfig{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryBaseDelay,
		Retryable:    retryable,
	}.withDefaults()
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = max(defaultMaxDelay, c.InitialDelay)
	}
	if c.Multiplier <= 0 {
		c.Multiplier = defaultMultiplier
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = defaultJitterFraction
	}
	return c
}

// Retry runs fn until it succeeds, returns an error cfg.Retryable rejects,
// runs out of attempts or ctx is done. Non-retryable errors are returned
// unwrapped.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, lastErr)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}

		delay := cfg.delay(attempt)
		logger.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", lastErr,
			"next_delay", delay,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
}

// delay is the backoff before attempt+1, jittered and capped at MaxDelay.
func (c RetryConfig) delay(attempt int) time.Duration {
	backoff := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	backoff += backoff * c.JitterFraction * (2*rand.Float64() - 1)
	switch {
	case backoff > float64(c.MaxDelay):
		return c.MaxDelay
	case backoff <= 0:
		return c.InitialDelay
	}
	return time.Duration(backoff)
}
