package stats

import (
	"regexp"
	"sort"
	"time"

	"github.com/dskow/breaker-core/internal/history"
)

const (
	trendHours     = 24
	topErrorsLimit = 10
)

// MessageCount is one normalized error message and its occurrence count.
type MessageCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// HourCount is the error count for one hour bucket of the trend.
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// Analysis summarizes the retained error history for one breaker.
type Analysis struct {
	RetryableErrors    int            `json:"retryable_errors"`
	NonRetryableErrors int            `json:"non_retryable_errors"`
	CommonErrors       []MessageCount `json:"common_errors"`
	ErrorTrend         []HourCount    `json:"error_trend"`
}

// Variable fragments collapsed before grouping, so messages that differ
// only in a URL, id, or measurement count as the same error.
var normalizers = []struct {
	re          *regexp.Regexp
	placeholder string
}{
	{regexp.MustCompile(`https?://[^\s"']+`), "<url>"},
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), "<uuid>"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`), "<timestamp>"},
	{regexp.MustCompile(`\b\d+(\.\d+)?(ns|µs|us|ms|s|m|h)\b`), "<duration>"},
	{regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d+)?\b`), "<ip>"},
}

// Normalize replaces variable fragments of an error message with
// placeholders so structurally identical errors group together.
func Normalize(msg string) string {
	for _, n := range normalizers {
		msg = n.re.ReplaceAllString(msg, n.placeholder)
	}
	return msg
}

// Analyze builds an Analysis from retained error records at the given
// instant: retryable/non-retryable totals, the most frequent normalized
// messages, and an hourly trend over the trailing 24 hours.
func Analyze(errors []history.ErrorRecord, now time.Time) Analysis {
	a := Analysis{}

	counts := make(map[string]int)
	for _, e := range errors {
		if e.Retryable {
			a.RetryableErrors++
		} else {
			a.NonRetryableErrors++
		}
		counts[Normalize(e.Message)]++
	}

	a.CommonErrors = topMessages(counts)
	a.ErrorTrend = hourlyTrend(errors, now)
	return a
}

func topMessages(counts map[string]int) []MessageCount {
	out := make([]MessageCount, 0, len(counts))
	for msg, n := range counts {
		out = append(out, MessageCount{Message: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if len(out) > topErrorsLimit {
		out = out[:topErrorsLimit]
	}
	return out
}

// hourlyTrend buckets errors into the trailing 24 hour-aligned slots,
// oldest first. Hours without errors appear with a zero count.
func hourlyTrend(errors []history.ErrorRecord, now time.Time) []HourCount {
	newest := now.Truncate(time.Hour)
	oldest := newest.Add(-time.Duration(trendHours-1) * time.Hour)

	buckets := make(map[time.Time]int, trendHours)
	for _, e := range errors {
		h := e.Time.Truncate(time.Hour)
		if h.Before(oldest) || h.After(newest) {
			continue
		}
		buckets[h]++
	}

	trend := make([]HourCount, 0, trendHours)
	for h := oldest; !h.After(newest); h = h.Add(time.Hour) {
		trend = append(trend, HourCount{Hour: h, Count: buckets[h]})
	}
	return trend
}
