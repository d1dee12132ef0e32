package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectors_Gatherable(t *testing.T) {
	// Use a custom registry to avoid duplicate-registration conflicts
	// with other tests in the package.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		BreakerState,
		StateChanges,
		Rejections,
		Outcomes,
		OperationDuration,
		WatchdogRecoveries,
		AuthFailures,
		RateLimitHits,
	)

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
}

func TestBreakerCollectors_Increment(t *testing.T) {
	BreakerState.WithLabelValues("payments").Set(1)
	StateChanges.WithLabelValues("payments", "closed", "open").Inc()
	Rejections.WithLabelValues("payments", "open").Inc()
	Rejections.WithLabelValues("payments", "half_open_limit").Inc()
	Outcomes.WithLabelValues("payments", "success").Inc()
	Outcomes.WithLabelValues("payments", "failure").Inc()
	Outcomes.WithLabelValues("payments", "timeout").Inc()
	OperationDuration.WithLabelValues("payments").Observe(0.042)
	WatchdogRecoveries.WithLabelValues("payments").Inc()
	AuthFailures.WithLabelValues("invalid_token").Inc()
	RateLimitHits.Inc()
	// Should not panic
}

func TestHandler_ReturnsPrometheusFormat(t *testing.T) {
	Init()

	StateChanges.WithLabelValues("inventory", "closed", "open").Inc()
	OperationDuration.WithLabelValues("inventory").Observe(0.01)

	h := Handler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "breaker_state_changes_total") {
		t.Error("expected breaker_state_changes_total in metrics output")
	}
	if !strings.Contains(bodyStr, "breaker_operation_duration_seconds") {
		t.Error("expected breaker_operation_duration_seconds in metrics output")
	}
}
