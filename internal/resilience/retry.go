package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls the in-activity retry loop. Pipeline-level retry
// budgets live in the task queue's policies; this layer only smooths over
// blips that would otherwise burn a whole activity attempt.
type RetryConfig struct {
	// MaxAttempts counts the first try. Default: 4.
	MaxAttempts int

	// InitialBackoff seeds the exponential schedule. Default: 2s.
	InitialBackoff time.Duration

	// MaxBackoff caps a single sleep. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier scales the backoff between attempts. Default: 2.0.
	Multiplier float64

	// ShouldRetry widens or narrows the default IsTransient check. Parse
	// errors are terminal regardless; see DoVal.
	ShouldRetry func(err error) bool

	// OnRetry observes each scheduled retry with the attempt that failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig matches the attempt budget the rest of the pipeline
// runs with.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	return cfg
}

// DoVal runs fn until it succeeds, the attempt budget is spent, or the error
// is one retrying cannot fix. Parse errors short-circuit unconditionally:
// resubmitting malformed output yields the same malformed output.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if IsParse(err) || !retryable(err) || attempt >= cfg.MaxAttempts || ctx.Err() != nil {
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(backoff(cfg, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// Do is DoVal for calls with no result.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// backoff computes the sleep after the given failed attempt: exponential
// growth, capped, with equal jitter so synchronized callers spread out.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	half := d / 2
	return time.Duration(half + rand.Float64()*half)
}
