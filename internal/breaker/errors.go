package breaker

import (
	"fmt"
	"time"
)

// OpenError is returned when a call is rejected without invoking the
// operation: either the circuit is open and not yet due for a trial, or
// the half-open trial batch is already full. RetryAfter tells the caller
// how long to wait before trying again.
type OpenError struct {
	Breaker    string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %v", e.Breaker, e.RetryAfter)
}

// TimeoutError is returned when the operation does not settle within the
// deadline given to ExecuteTimeout. The operation itself keeps running.
type TimeoutError struct {
	Breaker string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("circuit breaker %q: operation timeout after %v", e.Breaker, e.Timeout)
}

// Message returns the classification text for the timeout. Kept stable
// and free of per-call details so timeouts group together in analysis.
func (e *TimeoutError) Message() string {
	return fmt.Sprintf("operation timeout after %v", e.Timeout)
}
