package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testPolicy(sleeps *[]time.Duration, jitter time.Duration) Policy {
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	p.Jitter = func() time.Duration { return jitter }
	return p
}

func TestDo_FailsTwiceThenSucceeds(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps, 0)

	calls := 0
	err := Do(context.Background(), p, "test_op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 invocations, got %d", calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 backoff waits, got %d", len(sleeps))
	}
}

func TestDo_NotRetryableShortCircuits(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps, 0)

	calls := 0
	notFound := NotRetryable(errors.New("http 404"))
	err := Do(context.Background(), p, "test_op", func(ctx context.Context) error {
		calls++
		return notFound
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 invocation, got %d", calls)
	}
	if len(sleeps) != 0 {
		t.Fatalf("expected no backoff wait, got %v", sleeps)
	}
	if !errors.Is(err, notFound) {
		t.Fatalf("expected the original error back, got %v", err)
	}
}

func TestDo_ValidationShortCircuits(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps, 0)

	calls := 0
	err := Do(context.Background(), p, "test_op", func(ctx context.Context) error {
		calls++
		return Validation(errors.New("missing field"))
	})
	if err == nil || calls != 1 || len(sleeps) != 0 {
		t.Fatalf("expected immediate validation failure: err=%v calls=%d sleeps=%v", err, calls, sleeps)
	}
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps, 0)

	last := errors.New("final failure")
	calls := 0
	err := Do(context.Background(), p, "test_op", func(ctx context.Context) error {
		calls++
		if calls == p.MaxAttempts {
			return last
		}
		return errors.New("earlier failure")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, last) {
		t.Fatalf("expected wrap of last error, got %v", err)
	}
	if calls != p.MaxAttempts {
		t.Fatalf("expected %d invocations, got %d", p.MaxAttempts, calls)
	}
}

func TestDo_BackoffDelayBounds(t *testing.T) {
	for _, jitter := range []time.Duration{0, 999 * time.Millisecond} {
		var sleeps []time.Duration
		p := testPolicy(&sleeps, jitter)

		_ = Do(context.Background(), p, "test_op", func(ctx context.Context) error {
			return errors.New("always fails")
		})

		// attempts=3 -> two waits, both under the breaker threshold
		if len(sleeps) != 2 {
			t.Fatalf("jitter=%v expected 2 waits, got %d", jitter, len(sleeps))
		}
		for i, got := range sleeps {
			base := p.InitialDelay << uint(i)
			lo, hi := base, base+time.Second
			if got < lo || got >= hi {
				t.Fatalf("jitter=%v wait %d = %v, want in [%v, %v)", jitter, i+1, got, lo, hi)
			}
		}
	}
}

func TestDo_CircuitBreakerDelayAfterThreshold(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps, 0)
	p.MaxAttempts = 5

	_ = Do(context.Background(), p, "test_op", func(ctx context.Context) error {
		return errors.New("always fails")
	})

	want := []time.Duration{
		1 * time.Second,                    // failure 1
		2 * time.Second,                    // failure 2
		4*time.Second + 10*time.Second,     // failure 3: breaker 5s*2^1
		8*time.Second + 20*time.Second,     // failure 4: breaker 5s*2^2
	}
	if len(sleeps) != len(want) {
		t.Fatalf("expected %d waits, got %d (%v)", len(want), len(sleeps), sleeps)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("wait %d = %v, want %v", i+1, sleeps[i], want[i])
		}
	}
}

func TestDo_DelayCappedAtMax(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps, 0)
	p.MaxAttempts = 8
	p.BreakerThreshold = 0 // isolate the pure backoff cap

	_ = Do(context.Background(), p, "test_op", func(ctx context.Context) error {
		return errors.New("always fails")
	})

	for i, got := range sleeps {
		if got > p.MaxDelay {
			t.Fatalf("wait %d = %v exceeds cap %v", i+1, got, p.MaxDelay)
		}
	}
	// 1s * 2^6 = 64s would exceed the cap; the last waits must sit exactly at it.
	if sleeps[len(sleeps)-1] != p.MaxDelay {
		t.Fatalf("expected final wait at cap %v, got %v", p.MaxDelay, sleeps[len(sleeps)-1])
	}
}

func TestKindOf_WalksWrappedErrors(t *testing.T) {
	inner := NotRetryable(errors.New("http 401"))
	wrapped := fmt.Errorf("publish facebook: %w", inner)
	if KindOf(wrapped) != KindNotRetryable {
		t.Fatalf("expected not_retryable through wrapping, got %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindTransient {
		t.Fatalf("untagged errors must default to transient")
	}
}
