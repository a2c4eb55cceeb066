// Package retry wraps transient object store and catalog calls in a
// bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds retry attempts and spacing.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialInterval is the delay before the first retry. Subsequent
	// delays grow exponentially with jitter.
	InitialInterval time.Duration
}

// DefaultPolicy retries three times starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, InitialInterval: time.Second}
}

// Do invokes op until it succeeds, the policy is exhausted, or the
// context is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
}

// Permanent marks an error as non-retryable so Do returns it
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
