package breaker

import (
	"time"

	"github.com/dskow/breaker-core/internal/metrics"
)

// watchdog periodically logs breaker health and proactively probes
// recovery: a breaker stuck open with no new failures for twice the
// reset timeout is moved to half-open even if no caller shows up.
// Runs until Shutdown closes the stop channel.
func (b *Breaker) watchdog(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.healthTick()
		case <-b.stopCh:
			return
		}
	}
}

// healthTick performs one watchdog pass. Failures inside the tick are
// logged, never propagated; the watchdog must not take the process down.
func (b *Breaker) healthTick() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("health check failed",
				"breaker", b.name,
				"panic", r,
			)
		}
	}()

	st := b.Statistics()

	now := time.Now()
	b.mu.Lock()
	state := b.state
	lastFailure := b.lastFailureTime
	rate, sampled := b.hist.SuccessRate(now, b.cfg.MonitoringPeriod)

	recovered := false
	if state == StateOpen && !lastFailure.IsZero() &&
		now.Sub(lastFailure) > 2*b.cfg.ResetTimeout {
		b.transitionTo(StateHalfOpen, now)
		state = b.state
		recovered = true
	}
	b.mu.Unlock()

	if recovered {
		metrics.WatchdogRecoveries.WithLabelValues(b.name).Inc()
		b.logger.Info("watchdog triggered recovery probe", "breaker", b.name)
	}

	healthy := st.ErrorRate < healthyMaxErrorRate &&
		state != StateOpen &&
		st.AverageResponseTime < healthyMaxAvgResponse

	successRate := 100.0
	if sampled {
		successRate = rate * 100
	}

	b.logger.Info("health check",
		"breaker", b.name,
		"state", state.String(),
		"healthy", healthy,
		"error_rate", st.ErrorRate,
		"success_rate", successRate,
		"avg_response_time", st.AverageResponseTime,
		"uptime", st.Uptime,
	)
}
