package payerr

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy is an exponential backoff schedule.
type RetryPolicy struct {
	Attempts   int           `yaml:"attempts"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
}

// DefaultRetryPolicy retries transient failures three times.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:   4,
	BaseDelay:  200 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	Multiplier: 2,
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	out := time.Duration(d)
	if p.MaxDelay > 0 && out > p.MaxDelay {
		out = p.MaxDelay
	}
	return out
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. A RetryAfter hint on the error overrides the backoff.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt == attempts {
			return err
		}
		wait := p.delay(attempt)
		if hint := RetryAfter(err); hint > 0 {
			wait = hint
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
	return err
}

// FromContext classifies context cancellation and deadline errors. Deadlines
// become retryable ServiceTimeout errors; other errors are returned unchanged.
func FromContext(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindServiceTimeout, Op: op, Err: err, RetryAfter: time.Second}
	}
	return err
}
