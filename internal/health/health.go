// Package health provides health check and readiness probe HTTP handlers.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dskow/breaker-core/internal/breaker"
)

// Pre-serialized liveness response avoids json.Encoder allocation.
var livenessBody = []byte(`{"status":"ok"}` + "\n")

const readinessCacheTTL = 5 * time.Second

// Handler provides /health and /ready endpoints. Liveness reports that
// the process is up; readiness aggregates the health of every registered
// breaker, so a dependency stuck open flips the daemon to not-ready.
type Handler struct {
	registry *breaker.Registry
	logger   *slog.Logger

	// Cached readiness result so aggressive orchestrator polling does
	// not recompute per-breaker statistics. Protected by cacheMu.
	cacheMu      sync.RWMutex
	cachedResult []byte
	cachedStatus int
	cachedAt     time.Time
}

// New creates a new health check Handler.
func New(registry *breaker.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// RegisterRoutes adds health check routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

func (h *Handler) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(livenessBody)
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	// Serve from cache if fresh.
	h.cacheMu.RLock()
	if h.cachedResult != nil && time.Since(h.cachedAt) < readinessCacheTTL {
		body := h.cachedResult
		status := h.cachedStatus
		h.cacheMu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
		return
	}
	h.cacheMu.RUnlock()

	results := make(map[string]string)
	anyUnhealthy := false
	for _, b := range h.registry.All() {
		switch {
		case b.State() == breaker.StateOpen:
			results[b.Name()] = "circuit-open"
			anyUnhealthy = true
		case !b.Healthy():
			results[b.Name()] = "unhealthy"
			anyUnhealthy = true
		default:
			results[b.Name()] = "ok"
		}
	}

	httpStatus := http.StatusOK
	statusStr := "ready"
	if anyUnhealthy {
		httpStatus = http.StatusServiceUnavailable
		statusStr = "not ready"
		h.logger.Warn("readiness check failed", "breakers", results)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"status":   statusStr,
		"breakers": results,
	})
	body = append(body, '\n')

	// Cache the result.
	h.cacheMu.Lock()
	h.cachedResult = body
	h.cachedStatus = httpStatus
	h.cachedAt = time.Now()
	h.cacheMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	w.Write(body)
}
