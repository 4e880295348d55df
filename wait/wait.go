// Package wait polls conditions against a live page until they hold or a
// timeout elapses.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/teranos/dolly/condition"
	"github.com/teranos/dolly/driver"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 50 * time.Millisecond
)

// ErrTimeout matches every *TimeoutError with errors.Is.
var ErrTimeout = errors.New("wait: timed out")

// Options controls a single wait.
type Options struct {
	// Timeout bounds the whole wait. Zero means check exactly once.
	Timeout time.Duration
	// Interval is the minimum time between two checks.
	Interval time.Duration
	// Message is prepended to the timeout error.
	Message string
}

// DefaultOptions returns the default timeout and poll interval.
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

// TimeoutError describes a wait that ran out of time.
type TimeoutError struct {
	Description string
	Message     string
	Timeout     time.Duration
	Attempts    int
	Observed    string // last observation, if any
	LastErr     error  // last retryable error, if any
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %v waiting for %s (%d attempts)", e.Timeout, e.Description, e.Attempts)
	if e.Message != "" {
		msg = e.Message + ": " + msg
	}
	if e.Observed != "" {
		msg += ": last observed: " + e.Observed
	}
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Until polls cond against page until it holds.
//
// Errors from the check are retried unless driver.IsFatal reports them as
// final. Cancellation of ctx ends the wait with the context error.
func Until(ctx context.Context, page driver.Page, cond condition.Condition, opts Options) error {
	var observed string
	err := Poll(ctx, opts, func(ctx context.Context) (bool, error) {
		res, err := cond.Evaluate(ctx, page)
		if err != nil {
			return false, err
		}
		observed = res.Observed
		return res.Met, nil
	})

	var te *TimeoutError
	if errors.As(err, &te) {
		te.Description = cond.Description
		te.Observed = observed
	}
	return err
}

// Poll calls fn until it returns true, a fatal error, or opts.Timeout elapses.
// The first call happens immediately. On timeout fn gets one last call at the
// deadline so a condition that became true during the final interval is
// not reported as a failure. A zero Timeout calls fn exactly once.
func Poll(ctx context.Context, opts Options, fn func(ctx context.Context) (bool, error)) error {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	var (
		attempts int
		lastErr  error
	)
	check := func(ctx context.Context) (bool, error) {
		attempts++
		ok, err := fn(ctx)
		if err != nil {
			if driver.IsFatal(err) {
				return false, err
			}
			lastErr = err
			return false, nil
		}
		lastErr = nil
		return ok, nil
	}
	timedOut := func() error {
		return &TimeoutError{
			Message:  opts.Message,
			Timeout:  opts.Timeout,
			Attempts: attempts,
			LastErr:  lastErr,
		}
	}

	if opts.Timeout <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("wait cancelled: %w", err)
		}
		ok, err := check(ctx)
		if err != nil || ok {
			return err
		}
		return timedOut()
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	limiter.Allow() // the first check does not wait

	for {
		ok, err := check(deadlineCtx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// Wait refuses up front when the next token lands past the deadline.
		if err := limiter.Wait(deadlineCtx); err != nil {
			<-deadlineCtx.Done()
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait cancelled: %w", err)
	}

	// Last look, on the parent context since the deadline has passed.
	ok, err := check(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return timedOut()
}
