package history

import (
	"fmt"
	"testing"
	"time"
)

func TestStore_ErrorsCappedAtCapacity(t *testing.T) {
	s := NewStore()
	now := time.Now()

	for i := 0; i < 500; i++ {
		s.RecordError(now, fmt.Sprintf("failure %d", i), true)
	}

	errs := s.Errors()
	if len(errs) != Capacity {
		t.Fatalf("expected %d retained errors, got %d", Capacity, len(errs))
	}
	if errs[0].Message != "failure 400" || errs[99].Message != "failure 499" {
		t.Fatalf("expected the 100 most recent errors, got first=%q last=%q",
			errs[0].Message, errs[99].Message)
	}
}

func TestStore_OpenCount(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.RecordTransition(now, "closed", "open")
	s.RecordTransition(now, "open", "half-open")
	s.RecordTransition(now, "half-open", "open")
	s.RecordTransition(now, "open", "half-open")
	s.RecordTransition(now, "half-open", "closed")

	if got := s.OpenCount(); got != 2 {
		t.Fatalf("expected 2 open transitions, got %d", got)
	}
}

func TestStore_SuccessRate(t *testing.T) {
	s := NewStore()
	now := time.Now()

	// Three recent outcomes: 1 success, 2 failures.
	s.RecordOutcome(now.Add(-10*time.Second), true)
	s.RecordOutcome(now.Add(-5*time.Second), false)
	s.RecordOutcome(now.Add(-time.Second), false)
	// One stale outcome outside the window; must be ignored.
	s.RecordOutcome(now.Add(-10*time.Minute), true)

	rate, ok := s.SuccessRate(now, time.Minute)
	if !ok {
		t.Fatal("expected samples within the window")
	}
	if want := 1.0 / 3.0; rate < want-0.001 || rate > want+0.001 {
		t.Fatalf("expected success rate ~%0.3f, got %0.3f", want, rate)
	}
}

func TestStore_SuccessRateNoSamples(t *testing.T) {
	s := NewStore()

	if _, ok := s.SuccessRate(time.Now(), time.Minute); ok {
		t.Fatal("expected no samples reported for empty store")
	}
}

func TestStore_ResponseTimes(t *testing.T) {
	s := NewStore()

	s.RecordResponseTime(10 * time.Millisecond)
	s.RecordResponseTime(30 * time.Millisecond)

	times := s.ResponseTimes()
	if len(times) != 2 || times[0] != 10*time.Millisecond || times[1] != 30*time.Millisecond {
		t.Fatalf("unexpected response times: %v", times)
	}
}
