// Package breaker implements an adaptive circuit breaker. A Breaker
// guards one downstream dependency: it classifies failures, opens after
// too many retryable ones, backs off with increasing delay across trips,
// admits a bounded trial batch while half-open, and self-heals through a
// background watchdog.
package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dskow/breaker-core/internal/backoff"
	"github.com/dskow/breaker-core/internal/classify"
	"github.com/dskow/breaker-core/internal/history"
	"github.com/dskow/breaker-core/internal/metrics"
	"github.com/dskow/breaker-core/internal/stats"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation; calls pass through.
	StateOpen                  // Failing; calls are rejected immediately.
	StateHalfOpen              // Probing; a bounded trial batch tests recovery.
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	// halfOpenMaxTrials bounds concurrent calls admitted while half-open.
	halfOpenMaxTrials = 3
	// halfOpenRetryAfter is the backoff hint given to callers rejected
	// because the trial batch is already full.
	halfOpenRetryAfter = time.Second

	// thresholdCap bounds adaptive raising of the failure threshold.
	thresholdCap = 20
	// Adaptive raising requires a sustained calm period: total error rate
	// below 10% across more than 100 successes.
	raiseMinSuccesses = 100
	raiseMaxErrorRate = 10.0

	// Under a recent failure burst (rolling success rate below 50% over
	// the last minute) the effective trip threshold is lowered.
	burstWindow    = time.Minute
	burstRateFloor = 0.5

	// Healthy() limits.
	healthyMaxErrorRate   = 50.0
	healthyMaxAvgResponse = 10 * time.Second
)

// Config holds the immutable parameters of one breaker. The zero value
// of a numeric or string field means "use the default"; see DefaultConfig
// for the documented defaults.
type Config struct {
	// FailureThreshold is the count of retryable failures that opens the
	// circuit while closed. Default 5.
	FailureThreshold int

	// ResetTimeout is the base backoff unit applied when the circuit
	// opens. Default 60s.
	ResetTimeout time.Duration

	// MonitoringPeriod is the trailing window the watchdog reports
	// rolling success rates over. Default 5m.
	MonitoringPeriod time.Duration

	// HealthCheckInterval is the watchdog tick. Default 30s. Set
	// DisableWatchdog to run without the background health check.
	HealthCheckInterval time.Duration
	DisableWatchdog     bool

	// Adaptive enables threshold adjustment: the trip threshold rises
	// slowly during calm traffic (cap 20) and the effective threshold is
	// lowered under a recent failure burst.
	Adaptive bool

	// Error classification pattern lists; empty lists use the classify
	// package defaults.
	RetryablePatterns    []string
	NonRetryablePatterns []string

	// Backoff growth across consecutive trips. Default exponential,
	// capped at MaxBackoff (default 5m), with jitter when Jitter is set.
	BackoffStrategy backoff.Strategy
	MaxBackoff      time.Duration
	Jitter          bool
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		ResetTimeout:        60 * time.Second,
		MonitoringPeriod:    5 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		BackoffStrategy:     backoff.Exponential,
		MaxBackoff:          5 * time.Minute,
		Jitter:              true,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.MonitoringPeriod == 0 {
		c.MonitoringPeriod = def.MonitoringPeriod
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = def.HealthCheckInterval
	}
	if c.BackoffStrategy == "" {
		c.BackoffStrategy = def.BackoffStrategy
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	return c
}

// Validate reports whether the configuration is usable after defaulting.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.FailureThreshold < 1 {
		return errInvalid("failure threshold must be positive")
	}
	if c.ResetTimeout <= 0 {
		return errInvalid("reset timeout must be positive")
	}
	if c.MonitoringPeriod <= 0 {
		return errInvalid("monitoring period must be positive")
	}
	if c.HealthCheckInterval <= 0 {
		return errInvalid("health check interval must be positive")
	}
	if !backoff.Valid(c.BackoffStrategy) {
		return errInvalid("unknown backoff strategy " + string(c.BackoffStrategy))
	}
	if c.MaxBackoff < c.ResetTimeout {
		return errInvalid("max backoff must be at least the reset timeout")
	}
	return nil
}

type errInvalid string

func (e errInvalid) Error() string { return "breaker config: " + string(e) }

// Operation is the opaque callable a breaker protects.
type Operation func(ctx context.Context) (any, error)

// Breaker is the state machine guarding one dependency. A single Breaker
// instance is shared by all concurrent callers of that dependency; all
// mutation is serialized by an internal mutex.
type Breaker struct {
	name       string
	cfg        Config
	classifier *classify.Classifier
	sched      backoff.Scheduler
	logger     *slog.Logger

	mu               sync.Mutex
	state            State
	failures         uint64
	successes        uint64
	requests         uint64
	threshold        int // current trip threshold; rises under adaptive calm
	lastFailureTime  time.Time
	lastSuccessTime  time.Time
	nextAttemptTime  time.Time
	halfOpenInFlight int
	hist             *history.Store

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Breaker named name. Zero-valued config fields take the
// documented defaults; an invalid configuration is rejected. The
// background watchdog starts immediately unless disabled.
func New(name string, cfg Config, logger *slog.Logger) (*Breaker, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Breaker{
		name:       name,
		cfg:        cfg,
		classifier: classify.New(cfg.RetryablePatterns, cfg.NonRetryablePatterns),
		sched: backoff.Scheduler{
			Strategy: cfg.BackoffStrategy,
			Base:     cfg.ResetTimeout,
			Max:      cfg.MaxBackoff,
			Jitter:   cfg.Jitter,
		},
		logger:    logger,
		state:     StateClosed,
		threshold: cfg.FailureThreshold,
		hist:      history.NewStore(),
		stopCh:    make(chan struct{}),
	}

	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))

	if !cfg.DisableWatchdog {
		go b.watchdog(cfg.HealthCheckInterval)
	}
	return b, nil
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op under the breaker with no deadline. When the circuit
// is open and not yet due for a trial, it fails fast with *OpenError;
// otherwise op's own error, if any, is returned unmodified.
func (b *Breaker) Execute(ctx context.Context, op Operation) (any, error) {
	return b.execute(ctx, op, 0)
}

// ExecuteTimeout runs op like Execute but races it against the given
// deadline, failing with *TimeoutError if op does not settle in time.
// The operation is not cancelled on timeout: it keeps running in the
// background and its eventual outcome is still recorded.
func (b *Breaker) ExecuteTimeout(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	return b.execute(ctx, op, timeout)
}

func (b *Breaker) execute(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	trial, err := b.admit()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if timeout <= 0 {
		v, err := op(ctx)
		b.settle(trial, err, time.Since(start))
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		done <- result{v, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		b.settle(trial, r.err, time.Since(start))
		if r.err != nil {
			return nil, r.err
		}
		return r.v, nil
	case <-timer.C:
		terr := &TimeoutError{Breaker: b.name, Timeout: timeout}
		b.settle(trial, terr, timeout)
		// The abandoned operation keeps running; record its eventual
		// outcome when it settles.
		go func() {
			r := <-done
			b.record(r.err, time.Since(start))
		}()
		return nil, terr
	}
}

// Do runs op through b and returns its typed result.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	v, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// admit checks whether a call may proceed, transitioning open→half-open
// when the trial time has arrived. It reports whether a half-open trial
// slot was taken; the caller must settle exactly once if admitted.
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.state == StateOpen {
		if now.Before(b.nextAttemptTime) {
			metrics.Rejections.WithLabelValues(b.name, "open").Inc()
			return false, &OpenError{Breaker: b.name, RetryAfter: b.nextAttemptTime.Sub(now)}
		}
		b.transitionTo(StateHalfOpen, now)
	}

	if b.state == StateHalfOpen {
		if b.halfOpenInFlight >= halfOpenMaxTrials {
			metrics.Rejections.WithLabelValues(b.name, "half_open_limit").Inc()
			return false, &OpenError{Breaker: b.name, RetryAfter: halfOpenRetryAfter}
		}
		b.halfOpenInFlight++
		return true, nil
	}
	return false, nil
}

// settle releases the trial slot taken by admit, if any, and records the
// outcome.
func (b *Breaker) settle(trial bool, err error, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
	if err == nil {
		b.recordSuccessLocked(d)
	} else {
		b.recordFailureLocked(err, d)
	}
}

func (b *Breaker) record(err error, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.recordSuccessLocked(d)
	} else {
		b.recordFailureLocked(err, d)
	}
}

// RecordSuccess records a successful call with its duration. Intended
// for callers that manage their own execution instead of using Execute.
func (b *Breaker) RecordSuccess(d time.Duration) {
	b.record(nil, d)
}

// RecordFailure records a failed call with its duration. Intended for
// callers that manage their own execution instead of using Execute.
func (b *Breaker) RecordFailure(err error, d time.Duration) {
	if err == nil {
		return
	}
	b.record(err, d)
}

// recordSuccessLocked updates counters and may close the circuit or
// raise the adaptive threshold. Must be called with b.mu held.
func (b *Breaker) recordSuccessLocked(d time.Duration) {
	now := time.Now()
	b.requests++
	b.successes++
	b.lastSuccessTime = now
	if d >= 0 {
		b.hist.RecordResponseTime(d)
	}
	b.hist.RecordOutcome(now, true)

	metrics.Outcomes.WithLabelValues(b.name, "success").Inc()
	metrics.OperationDuration.WithLabelValues(b.name).Observe(d.Seconds())

	if b.state == StateHalfOpen {
		b.transitionTo(StateClosed, now)
	}

	if b.cfg.Adaptive && b.threshold < thresholdCap &&
		b.successes > raiseMinSuccesses && b.errorRateLocked() < raiseMaxErrorRate {
		b.threshold++
		b.logger.Debug("raised failure threshold",
			"breaker", b.name,
			"threshold", b.threshold,
		)
	}
}

// recordFailureLocked updates counters, classifies the error, and may
// open the circuit. Must be called with b.mu held.
func (b *Breaker) recordFailureLocked(err error, d time.Duration) {
	now := time.Now()
	b.requests++
	b.failures++
	b.lastFailureTime = now

	msg := classify.Message(err)
	retryable := b.classifier.Retryable(msg)
	b.hist.RecordError(now, msg, retryable)
	if d >= 0 {
		b.hist.RecordResponseTime(d)
	}
	b.hist.RecordOutcome(now, false)

	outcome := "failure"
	if _, ok := err.(*TimeoutError); ok {
		outcome = "timeout"
	}
	metrics.Outcomes.WithLabelValues(b.name, outcome).Inc()
	metrics.OperationDuration.WithLabelValues(b.name).Observe(d.Seconds())

	switch b.state {
	case StateHalfOpen:
		// Any failure during a trial reopens, retryable or not.
		b.transitionTo(StateOpen, now)
	case StateClosed:
		if retryable && b.failures >= uint64(b.effectiveThresholdLocked(now)) {
			b.transitionTo(StateOpen, now)
		}
	}
}

// effectiveThresholdLocked returns the trip threshold for this instant.
// Under adaptive mode a recent failure burst lowers it so the breaker
// trips sooner. Must be called with b.mu held.
func (b *Breaker) effectiveThresholdLocked(now time.Time) int {
	t := b.threshold
	if !b.cfg.Adaptive {
		return t
	}
	if rate, ok := b.hist.SuccessRate(now, burstWindow); ok && rate < burstRateFloor {
		lowered := t * 7 / 10
		if lowered < 2 {
			lowered = 2
		}
		t = lowered
	}
	return t
}

// errorRateLocked returns the overall failure percentage. Must be called
// with b.mu held.
func (b *Breaker) errorRateLocked() float64 {
	if b.requests == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.requests) * 100
}

// transitionTo changes state, records the transition, and emits metrics
// and logging. Opening schedules the next trial attempt via the backoff
// scheduler, using the number of recorded trips so consecutive failures
// back off with growing delay. Must be called with b.mu held.
func (b *Breaker) transitionTo(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.hist.RecordTransition(now, from.String(), to.String())

	metrics.StateChanges.WithLabelValues(b.name, from.String(), to.String()).Inc()
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))

	b.halfOpenInFlight = 0

	switch to {
	case StateClosed:
		b.failures = 0
		b.nextAttemptTime = time.Time{}
	case StateOpen:
		delay := b.sched.Delay(b.hist.OpenCount())
		b.nextAttemptTime = now.Add(delay)
	case StateHalfOpen:
		b.nextAttemptTime = time.Time{}
	}

	b.logger.Info("circuit breaker state change",
		"breaker", b.name,
		"from", from.String(),
		"to", to.String(),
	)
}

// Snapshot is a point-in-time copy of the breaker's counters.
type Snapshot struct {
	Name             string
	State            State
	Failures         uint64
	Successes        uint64
	Requests         uint64
	LastFailureTime  time.Time
	LastSuccessTime  time.Time
	NextAttemptTime  time.Time
	HalfOpenInFlight int
}

// Snapshot returns the current counters and timestamps.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:             b.name,
		State:            b.state,
		Failures:         b.failures,
		Successes:        b.successes,
		Requests:         b.requests,
		LastFailureTime:  b.lastFailureTime,
		LastSuccessTime:  b.lastSuccessTime,
		NextAttemptTime:  b.nextAttemptTime,
		HalfOpenInFlight: b.halfOpenInFlight,
	}
}

// Statistics derives aggregate statistics from the retained history.
func (b *Breaker) Statistics() stats.Statistics {
	b.mu.Lock()
	sample := stats.Sample{
		Requests:      b.requests,
		Successes:     b.successes,
		Failures:      b.failures,
		ResponseTimes: b.hist.ResponseTimes(),
		Errors:        b.hist.Errors(),
		Transitions:   b.hist.Transitions(),
	}
	b.mu.Unlock()
	return stats.Compute(sample, time.Now())
}

// ErrorAnalysis summarizes the retained error history.
func (b *Breaker) ErrorAnalysis() stats.Analysis {
	b.mu.Lock()
	errs := b.hist.Errors()
	b.mu.Unlock()
	return stats.Analyze(errs, time.Now())
}

// Healthy reports whether the breaker currently considers its dependency
// usable: error rate under 50%, circuit not open, and average response
// time under 10 seconds.
func (b *Breaker) Healthy() bool {
	st := b.Statistics()
	return st.ErrorRate < healthyMaxErrorRate &&
		b.State() != StateOpen &&
		st.AverageResponseTime < healthyMaxAvgResponse
}

// Reset forces the breaker to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed, time.Now())
	b.failures = 0
	b.successes = 0
	b.requests = 0
	b.threshold = b.cfg.FailureThreshold
	b.halfOpenInFlight = 0
	b.nextAttemptTime = time.Time{}
	b.logger.Info("circuit breaker reset", "breaker", b.name)
}

// ForceOpen trips the breaker regardless of recorded failures, scheduling
// the next trial via the backoff scheduler.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateOpen, time.Now())
}

// Shutdown stops the background watchdog. In-flight Execute calls are
// not interrupted. Safe to call more than once.
func (b *Breaker) Shutdown() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.logger.Info("circuit breaker shut down", "breaker", b.name)
	})
}
