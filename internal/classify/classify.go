// Package classify decides whether a failure counts toward opening a
// circuit breaker. Errors matching a non-retryable pattern (client
// mistakes, validation failures) increment counters but never trip the
// circuit on their own; everything else is treated as a transient fault.
package classify

import (
	"regexp"
	"strings"
)

// Default pattern sets applied when the breaker config supplies none.
var (
	DefaultRetryable    = []string{"timeout", "connection", "network", "503", "502", "504"}
	DefaultNonRetryable = []string{"400", "401", "403", "404", "validation"}
)

// matcher matches an error message against one configured pattern.
// Patterns are compiled as case-insensitive regular expressions; a plain
// literal like "404" behaves as a substring match under regexp semantics.
// Patterns that fail to compile fall back to substring matching.
type matcher struct {
	re      *regexp.Regexp
	literal string // lowercase; used when re is nil
}

func (m matcher) match(msg string) bool {
	if m.re != nil {
		return m.re.MatchString(msg)
	}
	return strings.Contains(strings.ToLower(msg), m.literal)
}

func compile(patterns []string) []matcher {
	ms := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			ms = append(ms, matcher{re: re})
		} else {
			ms = append(ms, matcher{literal: strings.ToLower(p)})
		}
	}
	return ms
}

// Classifier classifies error messages as retryable or not.
type Classifier struct {
	retryable    []matcher
	nonRetryable []matcher
}

// New builds a Classifier from the given pattern lists. Empty lists fall
// back to the package defaults.
func New(retryable, nonRetryable []string) *Classifier {
	if len(retryable) == 0 {
		retryable = DefaultRetryable
	}
	if len(nonRetryable) == 0 {
		nonRetryable = DefaultNonRetryable
	}
	return &Classifier{
		retryable:    compile(retryable),
		nonRetryable: compile(nonRetryable),
	}
}

// Retryable reports whether the error message describes a transient fault.
// Non-retryable patterns are checked first and win regardless of the
// retryable list. A message matching neither list is retryable: unknown
// failures err toward protecting the dependency.
func (c *Classifier) Retryable(msg string) bool {
	for _, m := range c.nonRetryable {
		if m.match(msg) {
			return false
		}
	}
	for _, m := range c.retryable {
		if m.match(msg) {
			return true
		}
	}
	return true
}

// Message extracts the classification text from an error. Errors carrying
// a Message() accessor are preferred over Error(), so wrapped transport
// errors can expose a stable message independent of their formatting.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if m, ok := err.(interface{ Message() string }); ok {
		return m.Message()
	}
	return err.Error()
}
