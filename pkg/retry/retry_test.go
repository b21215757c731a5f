package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewgate/pkg/retry"
)

func TestSucceedsOnThirdAttemptWithBackoff(t *testing.T) {
	t.Parallel()

	calls := 0
	op := func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}

	start := time.Now()
	err := retry.Do(context.Background(), retry.Policy{
		Attempts:   3,
		Delay:      100 * time.Millisecond,
		Multiplier: 2,
	}, op)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	// Waits: 100ms then 200ms.
	if elapsed < 300*time.Millisecond {
		t.Fatalf("elapsed = %v, want >= 300ms of backoff", elapsed)
	}
}

func TestSuccessShortCircuits(t *testing.T) {
	t.Parallel()

	calls := 0
	start := time.Now()
	err := retry.Do(context.Background(), retry.Policy{Attempts: 5, Delay: time.Second}, func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("successful attempt must not sleep")
	}
}

func TestLastErrorPropagated(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{Attempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		return boom
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestPermanentErrorStopsRetrying(t *testing.T) {
	t.Parallel()

	fatal := errors.New("fatal")
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{Attempts: 5, Delay: time.Millisecond}, func() error {
		calls++
		return &retry.Permanent{Err: fatal}
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want fatal", err)
	}
}

func TestContextCancellationAbortsWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retry.Do(ctx, retry.Policy{Attempts: 3, Delay: 10 * time.Second}, func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDelayCappedAtMaxDelay(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_ = retry.Do(context.Background(), retry.Policy{
		Attempts:   4,
		Delay:      10 * time.Millisecond,
		Multiplier: 100,
		MaxDelay:   20 * time.Millisecond,
	}, func() error { return errors.New("transient") })

	// Waits: 10ms, then capped at 20ms twice = 50ms total, far under the
	// 1s+ an uncapped multiplier would produce.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("elapsed = %v, MaxDelay cap not applied", elapsed)
	}
}

func TestDoValue(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := retry.DoValue(context.Background(), retry.Policy{Attempts: 3, Delay: time.Millisecond}, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "value", nil
	})
	if err != nil || got != "value" {
		t.Fatalf("DoValue = (%q, %v)", got, err)
	}
}

func TestTimedObservesDuration(t *testing.T) {
	t.Parallel()

	var seen time.Duration
	var seenErr error
	op := retry.Timed(func() error {
		time.Sleep(10 * time.Millisecond)
		return errors.New("x")
	}, func(d time.Duration, err error) {
		seen = d
		seenErr = err
	})

	if err := op(); err == nil {
		t.Fatal("wrapped op must return the original error")
	}
	if seen < 10*time.Millisecond {
		t.Fatalf("observed duration = %v, want >= 10ms", seen)
	}
	if seenErr == nil {
		t.Fatal("observer must see the error")
	}
}
