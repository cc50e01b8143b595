// Package retry provides a bounded-retry executor shared by every remote-call
// component in the generation pipeline.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/socialads/notegen/internal/logger"
)

// DelayPolicy selects how the wait between attempts is computed.
type DelayPolicy int

const (
	// PolicyFixed waits the configured delay between every attempt.
	PolicyFixed DelayPolicy = iota
	// PolicyExponential waits delay * 2^(attempt-1) before retry attempt n.
	PolicyExponential
)

const (
	// DefaultMaxRetries matches the pipeline-wide default of 3 retries
	// (4 attempts total) per remote operation.
	DefaultMaxRetries = 3
	// DefaultDelay is the default fixed wait between attempts.
	DefaultDelay = 2 * time.Second
)

// Config describes one retry contract: how many retries, how long to wait,
// and how the wait grows.
type Config struct {
	MaxRetries int
	Delay      time.Duration
	Policy     DelayPolicy
}

// DefaultConfig returns the fixed-delay defaults used by most stages.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		Delay:      DefaultDelay,
		Policy:     PolicyFixed,
	}
}

// ExhaustedError reports that an operation failed after all retries.
// It names the operation and wraps the last underlying failure.
type ExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retriable: Do returns the wrapped error
// immediately instead of burning the remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Executor runs operations with bounded retry and per-attempt logging.
type Executor struct {
	logger logger.Logger
}

// NewExecutor creates an executor logging through the given logger.
func NewExecutor(log logger.Logger) *Executor {
	return &Executor{logger: log}
}

// Do executes fn, retrying on failure according to cfg. The label names the
// operation in logs and in the exhaustion error. Context cancellation aborts
// the wait between attempts.
func (e *Executor) Do(ctx context.Context, label string, cfg Config, fn func(context.Context) error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}

	var lastErr error
	attempts := cfg.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := cfg.delayFor(attempt - 1)
			e.logger.Info("retrying operation",
				logger.String("operation", label),
				logger.Int("retry", attempt-1),
				logger.Int("max_retries", cfg.MaxRetries),
				logger.Duration("wait", wait),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("operation succeeded after retry",
					logger.String("operation", label),
					logger.Int("attempt", attempt),
				)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			e.logger.Warn("operation failed permanently",
				logger.String("operation", label),
				logger.Int("attempt", attempt),
				logger.Error(perm.err),
			)
			return perm.err
		}

		lastErr = err
		e.logger.Warn("operation attempt failed",
			logger.String("operation", label),
			logger.Int("attempt", attempt),
			logger.Int("attempts_allowed", attempts),
			logger.Error(err),
		)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return &ExhaustedError{Label: label, Attempts: attempts, Err: lastErr}
}

// DoValue is the value-returning form of Executor.Do.
func DoValue[T any](ctx context.Context, e *Executor, label string, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, label, cfg, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (c Config) delayFor(retry int) time.Duration {
	if c.Policy == PolicyExponential {
		return c.Delay << (retry - 1)
	}
	return c.Delay
}
