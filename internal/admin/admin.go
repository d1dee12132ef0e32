// Package admin provides admin API endpoints for runtime inspection and
// control of the daemon's breakers. All endpoints are protected by IP
// allowlist; JWT auth is layered on top by the server when enabled.
package admin

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dskow/breaker-core/internal/apierror"
	"github.com/dskow/breaker-core/internal/breaker"
	"github.com/dskow/breaker-core/internal/config"
)

// Handler provides admin API endpoints.
type Handler struct {
	provider    ConfigProvider
	registry    *breaker.Registry
	allowedNets []*net.IPNet
	logger      *slog.Logger
}

// ConfigProvider abstracts config access for testability.
type ConfigProvider interface {
	Current() *config.Config
}

// New creates a new admin Handler. The allowlist CIDRs must be pre-validated
// (config validation ensures this).
func New(provider ConfigProvider, registry *breaker.Registry, allowlist []string, logger *slog.Logger) *Handler {
	nets := make([]*net.IPNet, 0, len(allowlist))
	for _, cidr := range allowlist {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // already validated by config
		}
		nets = append(nets, ipNet)
	}
	return &Handler{
		provider:    provider,
		registry:    registry,
		allowedNets: nets,
		logger:      logger,
	}
}

// RegisterRoutes adds admin routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/breakers", h.guard(h.listHandler))
	mux.HandleFunc("GET /admin/breakers/{name}", h.guard(h.statsHandler))
	mux.HandleFunc("GET /admin/breakers/{name}/errors", h.guard(h.errorsHandler))
	mux.HandleFunc("POST /admin/breakers/{name}/reset", h.guard(h.resetHandler))
	mux.HandleFunc("POST /admin/breakers/{name}/trip", h.guard(h.tripHandler))
	mux.HandleFunc("GET /admin/config", h.guard(h.configHandler))
}

// guard wraps a handler with IP allowlist checking.
func (h *Handler) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r.RemoteAddr)
		if !h.isAllowed(ip) {
			h.logger.Warn("admin access denied", "client_ip", ip, "path", r.URL.Path)
			apierror.WriteJSON(w, r, http.StatusForbidden, apierror.Forbidden, "client address not allowed")
			return
		}
		next(w, r)
	}
}

func (h *Handler) isAllowed(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range h.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// breakerSummary is one entry in the /admin/breakers response.
type breakerSummary struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Healthy         bool      `json:"healthy"`
	Requests        uint64    `json:"requests"`
	Failures        uint64    `json:"failures"`
	NextAttemptTime time.Time `json:"next_attempt_time,omitzero"`
}

func (h *Handler) listHandler(w http.ResponseWriter, r *http.Request) {
	all := h.registry.All()
	summaries := make([]breakerSummary, len(all))
	for i, b := range all {
		snap := b.Snapshot()
		summaries[i] = breakerSummary{
			Name:            snap.Name,
			State:           snap.State.String(),
			Healthy:         b.Healthy(),
			Requests:        snap.Requests,
			Failures:        snap.Failures,
			NextAttemptTime: snap.NextAttemptTime,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"breakers": summaries})
}

func (h *Handler) statsHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.registry.Get(r.PathValue("name"))
	if !ok {
		apierror.WriteJSON(w, r, http.StatusNotFound, apierror.BreakerNotFound, "no such breaker")
		return
	}
	snap := b.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":       snap.Name,
		"state":      snap.State.String(),
		"healthy":    b.Healthy(),
		"statistics": b.Statistics(),
	})
}

func (h *Handler) errorsHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.registry.Get(r.PathValue("name"))
	if !ok {
		apierror.WriteJSON(w, r, http.StatusNotFound, apierror.BreakerNotFound, "no such breaker")
		return
	}
	writeJSON(w, http.StatusOK, b.ErrorAnalysis())
}

func (h *Handler) resetHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.registry.Get(r.PathValue("name"))
	if !ok {
		apierror.WriteJSON(w, r, http.StatusNotFound, apierror.BreakerNotFound, "no such breaker")
		return
	}
	b.Reset()
	h.logger.Info("breaker reset via admin API", "breaker", b.Name())
	writeJSON(w, http.StatusOK, map[string]string{"name": b.Name(), "state": b.State().String()})
}

func (h *Handler) tripHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.registry.Get(r.PathValue("name"))
	if !ok {
		apierror.WriteJSON(w, r, http.StatusNotFound, apierror.BreakerNotFound, "no such breaker")
		return
	}
	b.ForceOpen()
	h.logger.Info("breaker tripped via admin API", "breaker", b.Name())
	writeJSON(w, http.StatusOK, map[string]string{"name": b.Name(), "state": b.State().String()})
}

func (h *Handler) configHandler(w http.ResponseWriter, r *http.Request) {
	cfg := h.provider.Current()

	// Shallow copy and redact sensitive fields.
	redacted := *cfg
	if redacted.Auth.JWTSecret != "" {
		redacted.Auth.JWTSecret = "***"
	}

	writeJSON(w, http.StatusOK, redacted)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
