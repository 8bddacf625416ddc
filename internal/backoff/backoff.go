// Package backoff is the retry combinator shared by the fetcher and the
// LLM client.
package backoff

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy parameterizes exponential retries.
type Policy struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

// DefaultPolicy returns three attempts starting at one second, doubling,
// capped at ten seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// newBackoff builds a fresh go-retry Backoff for one Do call.
func (p Policy) newBackoff() retry.Backoff {
	delay := p.InitialDelay
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		next := delay
		delay = time.Duration(float64(delay) * p.Multiplier)
		return next, false
	})
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Do calls fn until it succeeds, returns an error isRetryable rejects,
// or the policy is exhausted. The last error from fn is returned; when
// ctx ends while waiting, the context error is joined with it.
func Do(ctx context.Context, p Policy, isRetryable func(error) bool, fn func(context.Context) error) error {
	p = p.normalized()
	attempt := 0
	var lastErr error

	err := retry.Do(ctx, p.newBackoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable != nil && isRetryable(err) {
			slog.Debug("retryable failure", "attempt", attempt, "max_attempts", p.MaxAttempts, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil && lastErr != nil && ctx.Err() != nil && !errors.Is(err, lastErr) {
		return errors.Join(ctx.Err(), lastErr)
	}
	return err
}

// DoValue is Do for functions that return a value.
func DoValue[T any](ctx context.Context, p Policy, isRetryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, isRetryable, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
