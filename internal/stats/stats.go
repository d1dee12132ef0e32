// Package stats derives aggregate statistics, uptime, and error analysis
// from a breaker's counters and retained history.
package stats

import (
	"strings"
	"time"

	"github.com/dskow/breaker-core/internal/history"
)

// uptimeWindow is the trailing window over which uptime is computed.
const uptimeWindow = 24 * time.Hour

// Sample carries the raw inputs for a statistics computation: a breaker's
// counter snapshot plus copies of its retained history.
type Sample struct {
	Requests  uint64
	Successes uint64
	Failures  uint64

	ResponseTimes []time.Duration
	Errors        []history.ErrorRecord
	Transitions   []history.Transition
}

// Statistics is the aggregate view reported for one breaker.
type Statistics struct {
	TotalRequests       uint64        `json:"total_requests"`
	SuccessfulRequests  uint64        `json:"successful_requests"`
	FailedRequests      uint64        `json:"failed_requests"`
	Timeouts            uint64        `json:"timeouts"`
	CircuitOpenCount    int           `json:"circuit_open_count"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	ErrorRate           float64       `json:"error_rate"` // percent, 0-100
	Uptime              float64       `json:"uptime"`     // percent of trailing 24h not spent open
}

// Compute derives Statistics from a sample at the given instant.
func Compute(s Sample, now time.Time) Statistics {
	st := Statistics{
		TotalRequests:      s.Requests,
		SuccessfulRequests: s.Successes,
		FailedRequests:     s.Failures,
	}

	for _, e := range s.Errors {
		if strings.Contains(strings.ToLower(e.Message), "timeout") {
			st.Timeouts++
		}
	}

	for _, tr := range s.Transitions {
		if tr.To == "open" {
			st.CircuitOpenCount++
		}
	}

	if len(s.ResponseTimes) > 0 {
		var total time.Duration
		for _, d := range s.ResponseTimes {
			total += d
		}
		st.AverageResponseTime = total / time.Duration(len(s.ResponseTimes))
	}

	if s.Requests > 0 {
		st.ErrorRate = float64(s.Failures) / float64(s.Requests) * 100
	}

	st.Uptime = uptimePercent(s.Transitions, now)
	return st
}

// uptimePercent sums the time spent open within the trailing window as
// downtime. Each interval runs from a transition into open until the next
// transition into closed; an interval still open at now extends to now.
// With no recorded transitions the breaker is assumed always up.
func uptimePercent(transitions []history.Transition, now time.Time) float64 {
	if len(transitions) == 0 {
		return 100
	}

	windowStart := now.Add(-uptimeWindow)
	var downtime time.Duration
	var openedAt time.Time
	open := false

	for _, tr := range transitions {
		switch tr.To {
		case "open":
			if !open {
				open = true
				openedAt = tr.Time
			}
		case "closed":
			if open {
				open = false
				downtime += clampInterval(openedAt, tr.Time, windowStart, now)
			}
		}
	}
	if open {
		downtime += clampInterval(openedAt, now, windowStart, now)
	}

	if downtime > uptimeWindow {
		downtime = uptimeWindow
	}
	return float64(uptimeWindow-downtime) / float64(uptimeWindow) * 100
}

// clampInterval returns the portion of [from, to] inside [windowStart, now].
func clampInterval(from, to, windowStart, now time.Time) time.Duration {
	if from.Before(windowStart) {
		from = windowStart
	}
	if to.After(now) {
		to = now
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}
