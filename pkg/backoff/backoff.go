// Package backoff wraps go-retry with the jittered, capped exponential
// policy shared by the intake workflow and the reconciliation retrier.
package backoff

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/salesdesk-backend/pkg/config"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxRetries    uint64
	Base          time.Duration
	Cap           time.Duration
	JitterPercent uint64
}

// FromIntakeConfig reads the retry knobs from the intake configuration.
func FromIntakeConfig(cfg config.IntakeConfig) Policy {
	return Policy{
		MaxRetries:    cfg.MaxRetries,
		Base:          cfg.RetryBase,
		Cap:           cfg.RetryCap,
		JitterPercent: cfg.JitterPercent,
	}
}

// Backoff builds a fresh go-retry backoff for one loop.
func (p Policy) Backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	if p.Cap > 0 {
		b = retry.WithCappedDuration(p.Cap, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Do runs fn until it succeeds, returns an error retryable rejects, or the
// policy runs out. The last error from fn is returned.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.Backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
