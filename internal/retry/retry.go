// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"interview-processor-go/internal/apperr"
)

type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultPolicy = Policy{
	MaxRetries: 2,
	BaseDelay:  time.Second,
	MaxDelay:   60 * time.Second,
}

// Delay is the pause before retry number attempt (0-based): min(base*2^attempt, max).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// policyBackOff hands out Delay(0), Delay(1), ... to the backoff retry loop.
type policyBackOff struct {
	policy Policy
	next   int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	d := b.policy.Delay(b.next)
	b.next++
	return d
}

func (b *policyBackOff) Reset() { b.next = 0 }

type options struct {
	service string
	timer   backoff.Timer
	notify  func(attempt int, err error, wait time.Duration)
	log     *logrus.Entry
}

type Option func(*options)

// WithService names the operation in the returned ServiceError.
func WithService(name string) Option {
	return func(o *options) { o.service = name }
}

// WithTimer replaces the sleep between attempts.
func WithTimer(t backoff.Timer) Option {
	return func(o *options) { o.timer = t }
}

// WithNotify is called after each failed attempt that will be retried.
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}

func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}

// Do runs op until it succeeds, fails with a non-retryable error, or the policy is exhausted.
// Every failure comes back as an *apperr.ServiceError wrapping the last error, so a
// validation failure stays reachable through errors.As and apperr.KindOf.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, opts ...Option) error {
	o := options{service: "operation"}
	for _, fn := range opts {
		fn(&o)
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	attempts := 0
	var last error
	wrapped := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		if !apperr.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if o.log != nil {
			o.log.WithFields(logrus.Fields{
				"attempt": attempts,
				"wait":    wait.String(),
				"error":   err.Error(),
			}).Warn("attempt failed, retrying")
		}
		if o.notify != nil {
			o.notify(attempts, err, wait)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&policyBackOff{policy: p}, uint64(p.MaxRetries)), ctx)
	err := backoff.RetryNotifyWithTimer(wrapped, b, notify, o.timer)
	if err == nil {
		return nil
	}

	if last == nil {
		// cancelled before the first attempt finished
		return err
	}
	if !errors.Is(err, last) {
		// context ended while waiting between attempts
		last = errors.Join(last, err)
	}
	return &apperr.ServiceError{
		Service:  o.service,
		Code:     apperr.Code(last),
		Attempts: attempts,
		Err:      last,
	}
}
