// Package retry provides a generic bounded-retry executor with exponential
// backoff, reused by every fallible step of the exchange (writing the ack,
// dispatching, reading a half-written file).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy configures a retry run.
type Policy struct {
	Attempts   int           // Total attempts including the first (default 3).
	Delay      time.Duration // Delay before the second attempt (default 100ms).
	Multiplier float64       // Backoff multiplier per attempt (default 2).
	MaxDelay   time.Duration // Delay ceiling (default 5s).
}

func (p Policy) withDefaults() Policy {
	out := p
	if out.Attempts <= 0 {
		out.Attempts = 3
	}
	if out.Delay <= 0 {
		out.Delay = 100 * time.Millisecond
	}
	if out.Multiplier <= 0 {
		out.Multiplier = 2
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 5 * time.Second
	}
	return out
}

// Permanent marks an error as not worth retrying; Do propagates it
// immediately.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Do runs op until it succeeds or the attempt budget is exhausted, sleeping
// between attempts with exponential backoff capped at MaxDelay. The last
// error is propagated, never swallowed. Context cancellation aborts the
// wait and returns ctx.Err().
func Do(ctx context.Context, p Policy, op func() error) error {
	p = p.withDefaults()
	delay := p.Delay

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		if attempt == p.Attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.Attempts, err)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Timed wraps op so its wall-clock duration is reported to observe on every
// call, success or failure. It is a plain higher-order function usable by
// any component that wants per-operation timing.
func Timed(op func() error, observe func(time.Duration, error)) func() error {
	return func() error {
		start := time.Now()
		err := op()
		observe(time.Since(start), err)
		return err
	}
}
