package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Options controls the backoff behaviour of Execute.
type Options struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // first backoff step
	MaxDelay   time.Duration // upper bound per sleep, jitter included
	MaxJitter  time.Duration // uniform random addition per sleep
}

// DefaultOptions returns the backoff settings used for processor calls.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		MaxJitter:  1 * time.Second,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable. Execute re-raises it
// immediately without consuming a retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked via Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Execute runs op and retries it with exponential backoff and jitter until it
// succeeds, returns a permanent error, the context is cancelled, or
// MaxRetries retries are exhausted. The last error is returned to the caller,
// never swallowed. name is only used for log lines.
func Execute[T any](ctx context.Context, name string, op func() (T, error), opts Options) (T, error) {
	var zero T
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}
		if attempt == opts.MaxRetries {
			break
		}

		delay := backoffDelay(opts, attempt)
		log.Warnf("[Retry] %s attempt %d/%d failed, waiting %s: %v", name, attempt+1, opts.MaxRetries, delay, err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// backoffDelay computes base*2^attempt plus uniform jitter, capped at MaxDelay.
func backoffDelay(opts Options, attempt int) time.Duration {
	delay := opts.BaseDelay << uint(attempt)
	if opts.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(opts.MaxJitter)))
	}
	if opts.MaxDelay > 0 && delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}
	return delay
}
