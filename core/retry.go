package core

import (
	"context"
	"math"
	"time"
)

type RetryOptions struct {
	Retries       int
	InitialDelay  time.Duration
	BackoffFactor float64
	// ShouldRetry decides on the normalized error. Defaults to Retryable.
	ShouldRetry func(err *ApplicationError) bool
	Normalizer  *ErrorNormalizer
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		Retries:       2,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2,
	}
}

// Retry runs op until it succeeds, the predicate rejects the failure, or the
// retry budget is spent. Attempt n waits InitialDelay*BackoffFactor^(n-1)
// before running again. The returned error is normalized and carries the
// number of attempts made.
func Retry[T any](ctx context.Context, op func(context.Context) (T, error), opts RetryOptions) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = 1
	}
	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err *ApplicationError) bool { return err.Retryable }
	}
	classify := opts.Normalizer.Classify

	attempt := 0
	for {
		attempt++
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		normalized := classify(err)
		if attempt > opts.Retries || !shouldRetry(normalized) {
			return zero, annotateAttempts(normalized, attempt)
		}
		if waitErr := sleepContext(ctx, BackoffDelay(opts.InitialDelay, opts.BackoffFactor, attempt)); waitErr != nil {
			return zero, annotateAttempts(normalized, attempt)
		}
	}
}

// BackoffDelay returns the wait after the given attempt (1 based).
func BackoffDelay(initial time.Duration, factor float64, attempt int) time.Duration {
	if initial <= 0 || attempt < 1 {
		return 0
	}
	if factor <= 0 {
		factor = 1
	}
	delay := float64(initial) * math.Pow(factor, float64(attempt-1))
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

func annotateAttempts(err *ApplicationError, attempts int) *ApplicationError {
	out := err.Clone()
	out.Attempts = attempts
	return out.WithContext(map[string]any{"attempts": attempts})
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
