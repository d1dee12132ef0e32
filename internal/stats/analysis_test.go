package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/dskow/breaker-core/internal/history"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{
			"GET https://api.example.com/v1/users failed",
			"GET <url> failed",
		},
		{
			"record 550e8400-e29b-41d4-a716-446655440000 not found",
			"record <uuid> not found",
		},
		{
			"deadline exceeded after 1.5s",
			"deadline exceeded after <duration>",
		},
		{
			"dial tcp 10.0.1.25:5432: connection refused",
			"dial tcp <ip>: connection refused",
		},
		{
			"stale snapshot at 2026-08-31T10:15:00Z rejected",
			"stale snapshot at <timestamp> rejected",
		},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAnalyze_CountsAndGrouping(t *testing.T) {
	now := time.Now()
	var errs []history.ErrorRecord
	// Three occurrences of the same error differing only in host IP.
	for i := 0; i < 3; i++ {
		errs = append(errs, history.ErrorRecord{
			Time:      now.Add(-time.Minute),
			Message:   fmt.Sprintf("dial tcp 10.0.0.%d:443: connection refused", i+1),
			Retryable: true,
		})
	}
	errs = append(errs, history.ErrorRecord{
		Time:      now.Add(-time.Minute),
		Message:   "validation failed: missing field",
		Retryable: false,
	})

	a := Analyze(errs, now)

	if a.RetryableErrors != 3 || a.NonRetryableErrors != 1 {
		t.Fatalf("unexpected counts: retryable=%d nonRetryable=%d",
			a.RetryableErrors, a.NonRetryableErrors)
	}
	if len(a.CommonErrors) != 2 {
		t.Fatalf("expected 2 grouped messages, got %d", len(a.CommonErrors))
	}
	if a.CommonErrors[0].Message != "dial tcp <ip>: connection refused" || a.CommonErrors[0].Count != 3 {
		t.Fatalf("expected grouped connection errors first, got %+v", a.CommonErrors[0])
	}
}

func TestAnalyze_TopTenLimit(t *testing.T) {
	now := time.Now()
	var errs []history.ErrorRecord
	for i := 0; i < 15; i++ {
		errs = append(errs, history.ErrorRecord{
			Time:      now,
			Message:   fmt.Sprintf("distinct failure kind %d", i),
			Retryable: true,
		})
	}

	a := Analyze(errs, now)

	if len(a.CommonErrors) != 10 {
		t.Fatalf("expected top-10 cap, got %d", len(a.CommonErrors))
	}
}

func TestAnalyze_HourlyTrend(t *testing.T) {
	now := time.Now()
	errs := []history.ErrorRecord{
		{Time: now.Add(-30 * time.Minute), Message: "a", Retryable: true},
		{Time: now.Add(-90 * time.Minute), Message: "b", Retryable: true},
		{Time: now.Add(-90 * time.Minute), Message: "c", Retryable: true},
		// Outside the 24h trend window; must not appear.
		{Time: now.Add(-30 * time.Hour), Message: "d", Retryable: true},
	}

	a := Analyze(errs, now)

	if len(a.ErrorTrend) != 24 {
		t.Fatalf("expected 24 hour buckets, got %d", len(a.ErrorTrend))
	}
	last := a.ErrorTrend[len(a.ErrorTrend)-1]
	var total int
	for _, h := range a.ErrorTrend {
		total += h.Count
	}
	if total != 3 {
		t.Fatalf("expected 3 errors within the trend window, got %d", total)
	}
	if last.Count == 0 {
		// The most recent bucket holds the -30m error unless the test runs
		// in the first half hour past an hour boundary, in which case the
		// previous bucket holds it. Either way it is within the last two.
		prev := a.ErrorTrend[len(a.ErrorTrend)-2]
		if prev.Count == 0 {
			t.Fatal("expected the recent error in one of the last two buckets")
		}
	}
}
