// Package retry wraps fallible external calls with exponential backoff,
// jitter, and an in-sequence circuit-breaker delay. Each call site gets its
// own retry state; failures at one site never affect another.
package retry

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// Kind classifies an error for retry dispatch. Anything untagged is Transient.
type Kind int

const (
	KindTransient Kind = iota
	KindNotRetryable
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotRetryable:
		return "not_retryable"
	case KindValidation:
		return "validation"
	default:
		return "transient"
	}
}

// TaggedError carries a retry Kind alongside the underlying error.
type TaggedError struct {
	Kind Kind
	Err  error
}

func (e *TaggedError) Error() string {
	return e.Err.Error()
}

func (e *TaggedError) Unwrap() error {
	return e.Err
}

func (e *TaggedError) RetryKind() Kind {
	return e.Kind
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TaggedError{Kind: KindTransient, Err: err}
}

func NotRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &TaggedError{Kind: KindNotRetryable, Err: err}
}

func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &TaggedError{Kind: KindValidation, Err: err}
}

type kinder interface {
	RetryKind() Kind
}

// KindOf walks the error chain for a tagged kind. Untagged errors are treated
// as Transient so plain network failures get retried.
func KindOf(err error) Kind {
	for err != nil {
		if k, ok := err.(kinder); ok {
			return k.RetryKind()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindTransient
}

// Policy controls backoff timing. Sleep and Jitter are injectable so tests can
// simulate time without real delays.
type Policy struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	BreakerThreshold int // consecutive failures before the breaker delay applies
	BreakerBase      time.Duration

	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() time.Duration
}

// DefaultPolicy is the canonical policy for every external call site.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		InitialDelay:     1 * time.Second,
		MaxDelay:         30 * time.Second,
		BreakerThreshold: 2,
		BreakerBase:      5 * time.Second,
	}
}

func realSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func defaultJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(time.Second)))
}

// Do runs op up to p.MaxAttempts times. The delay before attempt i+1 is
// min(InitialDelay*2^(i-1)+jitter, MaxDelay); after more than BreakerThreshold
// consecutive failures an additional min(BreakerBase*2^(n-threshold), MaxDelay)
// is applied. NotRetryable and Validation errors surface immediately with no
// backoff wait. Exhaustion wraps the last underlying error.
func Do(ctx context.Context, p Policy, label string, op func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = realSleep
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}

	consecutive := 0
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		consecutive++

		kind := KindOf(err)
		if kind == KindNotRetryable || kind == KindValidation {
			log.Printf("[Retry] %s attempt=%d/%d kind=%s giving up err=%v", label, attempt, p.MaxAttempts, kind, err)
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.InitialDelay << uint(attempt-1)
		delay += jitter()
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		if p.BreakerThreshold > 0 && consecutive > p.BreakerThreshold {
			extra := p.BreakerBase << uint(consecutive-p.BreakerThreshold)
			if p.MaxDelay > 0 && extra > p.MaxDelay {
				extra = p.MaxDelay
			}
			delay += extra
		}
		log.Printf("[Retry] %s attempt=%d/%d failed, waiting %s err=%v", label, attempt, p.MaxAttempts, delay, err)
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: retry cancelled: %w", label, err)
		}
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", label, p.MaxAttempts, lastErr)
}
