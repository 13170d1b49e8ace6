package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes exponential backoff between attempts.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor spreads each wait by up to ±factor
	JitterFactor float64
}

// DefaultPolicy waits 500ms, 1s, 2s before giving up.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// OnRetry is called before waiting for the next attempt.
type OnRetry func(attempt int, err error, wait time.Duration)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a permanent error, the policy is spent, or ctx ends.
func (p Policy) Do(ctx context.Context, op Operation) error {
	return p.DoNotify(ctx, op, nil)
}

// DoNotify is Do with a hook invoked before every retry.
func (p Policy) DoNotify(ctx context.Context, op Operation, onRetry OnRetry) error {
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, lastErr)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == p.MaxRetries {
			break
		}

		wait := p.backoff(attempt)
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}

		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxRetries+1, lastErr)
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 500 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 10 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	p.JitterFactor = math.Max(0, math.Min(1, p.JitterFactor))
	return p
}

func (p Policy) backoff(attempt int) time.Duration {
	interval := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt))
	if p.JitterFactor > 0 {
		jitter := interval * p.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}
	if interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	if interval <= 0 {
		interval = float64(p.InitialInterval)
	}
	return time.Duration(interval)
}
