package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fast(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	var retried []int
	p := fast(5)
	p.OnRetry = func(attempt int, wait time.Duration, err error) {
		retried = append(retried, attempt)
	}
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 || len(retried) != 2 {
		t.Errorf("calls %d, retries %v", calls, retried)
	}
}

func TestDoGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fast(3), func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Errorf("got %v after %d calls", err, calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	boom := errors.New("execution reverted")
	calls := 0
	err := Do(context.Background(), fast(5), func(context.Context) error {
		calls++
		return Permanent(boom)
	})
	if err != boom || calls != 1 {
		t.Errorf("got %v after %d calls", err, calls)
	}
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, fast(5), func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Errorf("got %v after %d calls", err, calls)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w*time.Millisecond {
			t.Errorf("attempt %d: got %v", i+1, got)
		}
	}
	if got := p.Backoff(80); got != time.Second {
		t.Errorf("overflow: got %v", got)
	}
}
