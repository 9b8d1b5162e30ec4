// Package retry runs RPC calls with capped exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Class tells Do whether an error is worth another attempt.
type Class int

const (
	Retryable Class = iota
	Fatal
)

// Policy configures Do. Zero values fall back to one attempt, a 200ms base
// delay and a 10s cap.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration

	// Classify defaults to retrying everything except context errors and
	// errors marked with Permanent.
	Classify func(error) Class

	// OnRetry is called before sleeping.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// RPC is the policy used for node requests.
var RPC = Policy{
	MaxAttempts: 5,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    10 * time.Second,
	Jitter:      100 * time.Millisecond,
}

type permanent struct {
	error
}

func (p permanent) Unwrap() error { return p.error }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err}
}

func defaultClassify(err error) Class {
	var p permanent
	switch {
	case errors.As(err, &p):
		return Fatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Fatal
	default:
		return Retryable
	}
}

// Backoff returns the wait before attempt+1, without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	wait := p.BaseDelay << (attempt - 1)
	if wait > p.MaxDelay || wait <= 0 {
		wait = p.MaxDelay
	}
	return wait
}

// Do calls fn until it succeeds, fails fatally, the attempts run out or ctx
// is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	classify := p.Classify
	if classify == nil {
		classify = defaultClassify
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if classify(err) == Fatal || attempt == p.MaxAttempts {
			break
		}

		wait := p.Backoff(attempt)
		if p.Jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(p.Jitter)))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	var p2 permanent
	if errors.As(lastErr, &p2) {
		return p2.error
	}
	return lastErr
}
