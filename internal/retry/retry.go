// Package retry runs operations with exponential backoff. Attempts stop
// early when the error is not transient, so misconfiguration and bad data
// never burn the retry budget.
package retry

import (
	"context"
	"time"

	"github.com/portfolio-sentinel/internal/errors"
)

// Outcome is the terminal state of a retried operation.
type Outcome string

const (
	// OutcomeSucceeded means an attempt completed without error.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeRetryable means every attempt failed with a transient error.
	// The operation is eligible for a future pass.
	OutcomeRetryable Outcome = "retryable"
	// OutcomeFatal means an attempt failed with a non-transient error and
	// retrying would not help.
	OutcomeFatal Outcome = "fatal"
)

// Config holds retry behavior parameters
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Observer, when set, is called after every attempt with its error
	// (nil on success).
	Observer func(attempt int, err error)
}

// DefaultConfig returns sensible retry defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Result describes how a retried operation ended
type Result struct {
	Outcome       Outcome
	Attempts      int
	TotalDuration time.Duration
	Err           error
}

// Run executes fn until it succeeds, fails fatally, or the attempt budget
// runs out. The attempt number passed to fn is 1-based.
func Run(ctx context.Context, cfg Config, fn func(ctx context.Context, attempt int) error) Result {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if cfg.Observer != nil {
			cfg.Observer(attempt, err)
		}

		if err == nil {
			return Result{
				Outcome:       OutcomeSucceeded,
				Attempts:      attempt,
				TotalDuration: time.Since(start),
			}
		}
		lastErr = err

		if !errors.IsTransient(err) {
			return Result{
				Outcome:       OutcomeFatal,
				Attempts:      attempt,
				TotalDuration: time.Since(start),
				Err:           err,
			}
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delayFor(cfg, attempt)):
		case <-ctx.Done():
			return Result{
				Outcome:       OutcomeRetryable,
				Attempts:      attempt,
				TotalDuration: time.Since(start),
				Err:           ctx.Err(),
			}
		}
	}

	return Result{
		Outcome:       OutcomeRetryable,
		Attempts:      cfg.MaxAttempts,
		TotalDuration: time.Since(start),
		Err:           lastErr,
	}
}

// delayFor computes the backoff before the next attempt:
// initial * multiplier^(attempt-1), capped at MaxDelay.
func delayFor(cfg Config, attempt int) time.Duration {
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}
