package breaker

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// Registry holds the named breakers of a process and reconciles them
// against configuration, including across hot reloads.
type Registry struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	breakers map[string]*Breaker
	configs  map[string]Config
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		breakers: make(map[string]*Breaker),
		configs:  make(map[string]Config),
	}
}

// Apply reconciles the registry against the desired set of breakers:
// new names are created, changed configurations replace the old breaker
// (the old one is shut down; counters restart), and names no longer
// present are shut down and removed. Breakers with unchanged
// configuration keep their state and history.
func (r *Registry) Apply(desired map[string]Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, cfg := range desired {
		old, exists := r.breakers[name]
		if exists && configEqual(r.configs[name], cfg) {
			continue
		}

		b, err := New(name, cfg, r.logger)
		if err != nil {
			return fmt.Errorf("breaker %q: %w", name, err)
		}
		if exists {
			old.Shutdown()
			r.logger.Info("breaker replaced after config change", "breaker", name)
		} else {
			r.logger.Info("breaker registered", "breaker", name)
		}
		r.breakers[name] = b
		r.configs[name] = cfg
	}

	for name, b := range r.breakers {
		if _, ok := desired[name]; !ok {
			b.Shutdown()
			delete(r.breakers, name)
			delete(r.configs, name)
			r.logger.Info("breaker removed", "breaker", name)
		}
	}
	return nil
}

// Get returns the breaker with the given name.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Names returns the registered breaker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered breakers, ordered by name.
func (r *Registry) All() []*Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ShutdownAll stops every registered breaker's watchdog.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		b.Shutdown()
	}
}

func configEqual(a, b Config) bool {
	return a.FailureThreshold == b.FailureThreshold &&
		a.ResetTimeout == b.ResetTimeout &&
		a.MonitoringPeriod == b.MonitoringPeriod &&
		a.HealthCheckInterval == b.HealthCheckInterval &&
		a.DisableWatchdog == b.DisableWatchdog &&
		a.Adaptive == b.Adaptive &&
		a.BackoffStrategy == b.BackoffStrategy &&
		a.MaxBackoff == b.MaxBackoff &&
		a.Jitter == b.Jitter &&
		slices.Equal(a.RetryablePatterns, b.RetryablePatterns) &&
		slices.Equal(a.NonRetryablePatterns, b.NonRetryablePatterns)
}
