package retry

import (
	"context"
	"errors"
	"time"
)

// Policy controls how many times an operation is attempted and how long
// to sleep between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    4 * time.Second,
	}
}

// Transient marks an error as retryable. Errors not wrapped with
// Transient are returned to the caller on the first attempt.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do runs op until it succeeds, returns a non-transient error, or the
// policy's attempt budget is exhausted. The delay doubles after each
// failed attempt, capped at MaxDelay.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return lastErr
}

// RetryableStatus reports whether an HTTP status code indicates a
// transient upstream condition worth retrying.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 429, 502, 503, 504, 540:
		return true
	default:
		return false
	}
}
