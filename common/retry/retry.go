// Package retry retries idempotent calls against external collaborators
// (directory reads, room joins) with exponential back-off.
//
// Usage:
//
//	err := retry.Do(ctx, retry.DefaultPolicy, "directory.list_users", func(ctx context.Context) error {
//	    return client.get(ctx, path, &out)
//	})
//
// Errors wrapped with Permanent stop the loop immediately.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls the retry behaviour.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	// Values below 1 mean a single call.
	Attempts int
	// Delay is the wait before the second call; it doubles after every
	// failure up to MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultPolicy suits short HTTP round trips.
var DefaultPolicy = Policy{
	Attempts: 3,
	Delay:    300 * time.Millisecond,
	MaxDelay: 5 * time.Second,
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the attempts are
// exhausted or ctx is done. op only labels the debug log lines.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultPolicy.Delay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultPolicy.MaxDelay
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(err, ctxErr)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= attempts {
			return err
		}

		slog.Debug("retrying", "op", op, "attempt", attempt, "of", attempts, "delay", delay, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, maxDelay)
	}
}
