package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dskow/breaker-core/internal/backoff"
)

func TestWatchdog_RecoversStuckOpenBreaker(t *testing.T) {
	b, err := New("watchdog-recovery", Config{
		FailureThreshold:    2,
		ResetTimeout:        20 * time.Millisecond,
		HealthCheckInterval: 10 * time.Millisecond,
		BackoffStrategy:     backoff.Fixed,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Shutdown()

	failTimes(b, 2, errConnReset)
	if b.State() != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State())
	}

	// No traffic arrives, so nothing calls Execute to trigger the
	// open→half-open transition; the watchdog must do it once the last
	// failure is more than twice the reset timeout ago.
	deadline := time.Now().Add(time.Second)
	for b.State() != StateHalfOpen {
		if time.Now().After(deadline) {
			t.Fatalf("watchdog never moved the breaker to half-open, state %v", b.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatchdog_LeavesFreshOpenBreakerAlone(t *testing.T) {
	b, err := New("watchdog-fresh", Config{
		FailureThreshold:    2,
		ResetTimeout:        10 * time.Second,
		HealthCheckInterval: 10 * time.Millisecond,
		BackoffStrategy:     backoff.Fixed,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Shutdown()

	failTimes(b, 2, errConnReset)

	time.Sleep(60 * time.Millisecond)
	if b.State() != StateOpen {
		t.Fatalf("expected breaker to stay open within the recovery window, got %v", b.State())
	}
}

func TestBreaker_ConcurrentExecute(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1000, ResetTimeout: time.Second, BackoffStrategy: backoff.Fixed})

	const (
		workers = 8
		perG    = 50
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				if (w+i)%4 == 0 {
					b.Execute(context.Background(), func(ctx context.Context) (any, error) {
						return nil, errors.New("503 service unavailable")
					})
				} else {
					b.Execute(context.Background(), func(ctx context.Context) (any, error) {
						return "ok", nil
					})
				}
			}
		}(w)
	}
	wg.Wait()

	snap := b.Snapshot()
	if snap.Requests != workers*perG {
		t.Fatalf("expected %d requests recorded, got %d", workers*perG, snap.Requests)
	}
	if snap.Successes+snap.Failures != snap.Requests {
		t.Fatalf("counters disagree: %+v", snap)
	}
	if snap.State != StateClosed {
		t.Fatalf("expected StateClosed below threshold, got %v", snap.State)
	}
}
