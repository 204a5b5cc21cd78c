package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy configures WithRetry. Only transient failures are retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *slog.Logger
}

// DefaultRetryPolicy returns the policy used when the configuration leaves
// retry settings unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second}
}

type retrying struct {
	next   Generator
	policy RetryPolicy
}

// WithRetry wraps g so transient failures are retried with jittered
// exponential backoff. Fatal failures return immediately. A policy with fewer
// than two attempts returns g unchanged.
func WithRetry(g Generator, p RetryPolicy) Generator {
	if p.MaxAttempts < 2 {
		return g
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &retrying{next: g, policy: p}
}

func (r *retrying) Generate(ctx context.Context, req Request) (Response, error) {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}

	attempt := 0
	op := func() (Response, error) {
		attempt++
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) {
			return Response{}, backoff.Permanent(err)
		}
		return Response{}, err
	}
	notify := func(err error, wait time.Duration) {
		r.policy.Logger.Warn("retrying generation",
			"purpose", req.Purpose, "attempt", attempt, "wait", wait, "err", err)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(notify),
	)
}

type timeout struct {
	next Generator
	d    time.Duration
}

// WithTimeout bounds every call to g. Expiry of the per-call deadline is
// reported as a transient failure; cancellation of the parent context is not.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return &timeout{next: g, d: d}
}

func (t *timeout) Generate(ctx context.Context, req Request) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	resp, err := t.next.Generate(callCtx, req)
	if err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
		return Response{}, Transient(req.Purpose, err)
	}
	return resp, err
}
