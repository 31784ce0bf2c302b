package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pulse/internal/config"
	"pulse/pkg/metrics"
)

// FatalError stops retrying when IsFatal reports true. *errors.Error from
// pkg/errors satisfies it.
type FatalError interface {
	error
	IsFatal() bool
}

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  30 * time.Second,
	}
}

// PolicyFrom overlays configured values on DefaultPolicy.
func PolicyFrom(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		p.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		p.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		p.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		p.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Do runs fn until it succeeds, returns a fatal error, or the policy is exhausted.
// The last error is returned. Each retry is counted under operation.
func Do(ctx context.Context, operation string, policy Policy, fn func(ctx context.Context) error) error {
	return DoWithCallback(ctx, operation, policy, fn, nil)
}

// DoWithCallback is Do with a hook invoked before each retry sleep.
func DoWithCallback(ctx context.Context, operation string, policy Policy, fn func(ctx context.Context) error, onRetry func(err error, next time.Duration)) error {
	attempt := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var fatal FatalError
		if errors.As(err, &fatal) && fatal.IsFatal() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		metrics.IncRetryAttempt(operation)
		if onRetry != nil {
			onRetry(err, next)
		}
	}

	return backoff.RetryNotify(attempt, policy.backOff(ctx), notify)
}
