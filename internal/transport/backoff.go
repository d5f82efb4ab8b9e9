package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted is wrapped together with the last failure once every
// attempt has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Backoff runs an operation until it succeeds, fails with an error that is
// not retryable, or runs out of attempts. Delays double after each retry.
type Backoff struct {
	Retries int           // attempts after the first
	Delay   time.Duration // wait before the first retry
	Max     time.Duration // cap on one wait, zero for none

	// Retryable decides whether err deserves another attempt. Nil retries
	// everything except context cancellation and deadline errors.
	Retryable func(err error) bool

	// OnRetry, when set, runs before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do runs fn under the policy. Cancelling ctx stops the wait between
// attempts and returns ctx.Err().
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	retryable := b.Retryable
	if retryable == nil {
		retryable = notContextError
	}

	if b.Retries < 0 {
		b.Retries = 0
	}

	delay := b.Delay
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == b.Retries {
			break
		}

		if b.OnRetry != nil {
			b.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}

	if b.Retries == 0 {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, b.Retries+1, err)
}

type singleAttemptKey struct{}

// SingleAttempt marks ctx so transports make one attempt per call. Callers
// that run their own retry policy use it.
func SingleAttempt(ctx context.Context) context.Context {
	return context.WithValue(ctx, singleAttemptKey{}, true)
}

// IsSingleAttempt reports whether ctx was marked by SingleAttempt.
func IsSingleAttempt(ctx context.Context) bool {
	v, _ := ctx.Value(singleAttemptKey{}).(bool)
	return v
}

func notContextError(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
