// Package backoff computes the delay imposed before a tripped circuit
// breaker allows its next trial attempt. The delay grows with the number
// of times the breaker has opened, so repeated trips back off naturally
// without a separate retry counter.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy selects how the delay grows across consecutive trips.
type Strategy string

const (
	Fixed       Strategy = "fixed"       // constant base delay
	Linear      Strategy = "linear"      // base * tripCount
	Exponential Strategy = "exponential" // base * 2^(tripCount-1), exponent capped
)

// maxExponent caps the exponential doubling so the shift cannot overflow
// and delays stop growing after the seventh trip.
const maxExponent = 6

// Valid reports whether s is a recognized strategy name.
func Valid(s Strategy) bool {
	switch s {
	case Fixed, Linear, Exponential:
		return true
	}
	return false
}

// Scheduler computes trial delays. The zero value is not usable; populate
// all fields (Jitter may be false for deterministic delays).
type Scheduler struct {
	Strategy Strategy
	Base     time.Duration // base delay unit
	Max      time.Duration // upper bound applied after strategy growth
	Jitter   bool          // add random(0, delay/10) to spread retry storms
}

// Delay returns the wait before the next trial, given how many times the
// breaker has tripped open (tripCount >= 1; smaller values are clamped).
func (s Scheduler) Delay(tripCount int) time.Duration {
	if tripCount < 1 {
		tripCount = 1
	}

	var d time.Duration
	switch s.Strategy {
	case Linear:
		d = s.Base * time.Duration(tripCount)
	case Exponential:
		exp := tripCount - 1
		if exp > maxExponent {
			exp = maxExponent
		}
		d = s.Base << exp
	default: // Fixed
		d = s.Base
	}

	if s.Max > 0 && d > s.Max {
		d = s.Max
	}

	if j := d / 10; s.Jitter && j > 0 {
		d += rand.N(j)
	}
	return d
}
