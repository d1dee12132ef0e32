package backoff

import (
	"testing"
	"time"
)

func TestDelay_Fixed(t *testing.T) {
	s := Scheduler{Strategy: Fixed, Base: time.Second, Max: 5 * time.Minute}

	for trip := 1; trip <= 10; trip++ {
		if got := s.Delay(trip); got != time.Second {
			t.Fatalf("trip %d: expected 1s, got %v", trip, got)
		}
	}
}

func TestDelay_Linear(t *testing.T) {
	s := Scheduler{Strategy: Linear, Base: time.Second, Max: 5 * time.Minute}

	if got := s.Delay(3); got != 3*time.Second {
		t.Fatalf("expected 3s, got %v", got)
	}
	if got := s.Delay(1); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
}

func TestDelay_Exponential(t *testing.T) {
	s := Scheduler{Strategy: Exponential, Base: time.Second, Max: 5 * time.Minute}

	want := []time.Duration{
		time.Second,      // trip 1: 2^0
		2 * time.Second,  // trip 2: 2^1
		4 * time.Second,  // trip 3
		8 * time.Second,  // trip 4
		16 * time.Second, // trip 5
		32 * time.Second, // trip 6
		64 * time.Second, // trip 7: 2^6
		64 * time.Second, // trip 8: exponent capped at 6
		64 * time.Second, // trip 9
	}
	for i, w := range want {
		if got := s.Delay(i + 1); got != w {
			t.Fatalf("trip %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestDelay_CappedAtMax(t *testing.T) {
	s := Scheduler{Strategy: Exponential, Base: time.Minute, Max: 5 * time.Minute}

	// Trip 10 would be 64 minutes uncapped.
	if got := s.Delay(10); got != 5*time.Minute {
		t.Fatalf("expected cap at 5m, got %v", got)
	}
}

func TestDelay_ClampsTripCount(t *testing.T) {
	s := Scheduler{Strategy: Linear, Base: time.Second, Max: time.Minute}

	if got := s.Delay(0); got != time.Second {
		t.Fatalf("expected 1s for trip 0, got %v", got)
	}
	if got := s.Delay(-3); got != time.Second {
		t.Fatalf("expected 1s for negative trip, got %v", got)
	}
}

func TestDelay_JitterWithinTenPercent(t *testing.T) {
	s := Scheduler{Strategy: Fixed, Base: time.Second, Max: time.Minute, Jitter: true}

	for i := 0; i < 200; i++ {
		got := s.Delay(1)
		if got < time.Second || got > time.Second+100*time.Millisecond {
			t.Fatalf("jittered delay %v outside [1s, 1.1s]", got)
		}
	}
}

func TestDelay_MonotonicGrowth(t *testing.T) {
	for _, strat := range []Strategy{Linear, Exponential} {
		s := Scheduler{Strategy: strat, Base: time.Second, Max: 5 * time.Minute}
		prev := time.Duration(0)
		for trip := 1; trip <= 12; trip++ {
			got := s.Delay(trip)
			if got < prev {
				t.Fatalf("%s: delay shrank from %v to %v at trip %d", strat, prev, got, trip)
			}
			prev = got
		}
	}
}

func TestValid(t *testing.T) {
	for _, s := range []Strategy{Fixed, Linear, Exponential} {
		if !Valid(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if Valid("quadratic") {
		t.Fatal("expected unknown strategy to be invalid")
	}
}
