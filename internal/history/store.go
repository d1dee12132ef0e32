package history

import "time"

// Capacity is the bound on every record ring. Once full, the oldest
// record is evicted on each append.
const Capacity = 100

// ErrorRecord is one observed failure.
type ErrorRecord struct {
	Time      time.Time
	Message   string
	Retryable bool
}

// Transition is one state change. States are stored as their string
// names ("closed", "open", "half-open") so the store does not depend on
// the breaker package.
type Transition struct {
	Time time.Time
	From string
	To   string
}

// Outcome is one success/failure sample, used for rolling success rates.
type Outcome struct {
	Time    time.Time
	Success bool
}

// Store groups the bounded record rings for one breaker. It is not
// self-locking; the owning breaker's mutex serializes all access.
type Store struct {
	responseTimes *Ring[time.Duration]
	errors        *Ring[ErrorRecord]
	transitions   *Ring[Transition]
	outcomes      *Ring[Outcome]
}

// NewStore creates a Store with all rings at the standard capacity.
func NewStore() *Store {
	return &Store{
		responseTimes: NewRing[time.Duration](Capacity),
		errors:        NewRing[ErrorRecord](Capacity),
		transitions:   NewRing[Transition](Capacity),
		outcomes:      NewRing[Outcome](Capacity),
	}
}

// RecordResponseTime stores one observed operation duration.
func (s *Store) RecordResponseTime(d time.Duration) {
	s.responseTimes.Append(d)
}

// RecordError stores one failure occurrence.
func (s *Store) RecordError(at time.Time, message string, retryable bool) {
	s.errors.Append(ErrorRecord{Time: at, Message: message, Retryable: retryable})
}

// RecordTransition stores one state change.
func (s *Store) RecordTransition(at time.Time, from, to string) {
	s.transitions.Append(Transition{Time: at, From: from, To: to})
}

// RecordOutcome stores one success/failure sample.
func (s *Store) RecordOutcome(at time.Time, success bool) {
	s.outcomes.Append(Outcome{Time: at, Success: success})
}

// OpenCount returns how many recorded transitions entered the open state,
// i.e. how many times this breaker has tripped within the retained window.
func (s *Store) OpenCount() int {
	n := 0
	for _, tr := range s.transitions.Items() {
		if tr.To == "open" {
			n++
		}
	}
	return n
}

// SuccessRate returns the fraction of outcomes within the trailing window
// that succeeded, and whether any samples fell inside the window.
func (s *Store) SuccessRate(now time.Time, window time.Duration) (float64, bool) {
	cutoff := now.Add(-window)
	total, ok := 0, 0
	for _, o := range s.outcomes.Items() {
		if o.Time.Before(cutoff) {
			continue
		}
		total++
		if o.Success {
			ok++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(ok) / float64(total), true
}

// ResponseTimes returns the retained durations oldest-first.
func (s *Store) ResponseTimes() []time.Duration { return s.responseTimes.Items() }

// Errors returns the retained failure records oldest-first.
func (s *Store) Errors() []ErrorRecord { return s.errors.Items() }

// Transitions returns the retained state changes oldest-first.
func (s *Store) Transitions() []Transition { return s.transitions.Items() }
