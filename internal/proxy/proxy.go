// Package proxy forwards client requests to upstream services through
// their circuit breakers. Each configured breaker guards one upstream;
// requests to /call/{breaker}/rest... are forwarded to the upstream with
// the breaker deciding admission, timeout, and failure accounting.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dskow/breaker-core/internal/apierror"
	"github.com/dskow/breaker-core/internal/breaker"
	"github.com/dskow/breaker-core/internal/config"
)

// maxRelayBytes bounds how much of an upstream response is buffered
// before relaying. Responses larger than this are truncated.
const maxRelayBytes = 10 << 20 // 10 MB

type route struct {
	upstream *url.URL
	timeout  time.Duration
}

// Forwarder proxies requests through the registry's breakers.
type Forwarder struct {
	registry *breaker.Registry
	client   *http.Client
	logger   *slog.Logger

	mu     sync.RWMutex
	routes map[string]route
}

// New creates a Forwarder for the given breaker configurations. The
// upstream URLs are pre-validated by config loading.
func New(registry *breaker.Registry, breakers []config.BreakerConfig, logger *slog.Logger) *Forwarder {
	f := &Forwarder{
		registry: registry,
		// No client timeout: the breaker enforces the per-call deadline
		// and abandoned calls are allowed to finish in the background.
		client: &http.Client{},
		logger: logger,
		routes: make(map[string]route, len(breakers)),
	}
	f.UpdateConfig(breakers)
	return f
}

// UpdateConfig swaps the upstream routing table on config reload.
func (f *Forwarder) UpdateConfig(breakers []config.BreakerConfig) {
	routes := make(map[string]route, len(breakers))
	for _, bc := range breakers {
		u, err := url.Parse(bc.Upstream)
		if err != nil {
			continue // already validated by config
		}
		routes[bc.Name] = route{upstream: u, timeout: bc.Timeout()}
	}
	f.mu.Lock()
	f.routes = routes
	f.mu.Unlock()
}

// RegisterRoutes adds the forwarding route to the given mux.
func (f *Forwarder) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/call/{name}/", f)
	mux.Handle("/call/{name}", f)
}

// upstreamResponse is the buffered result of one upstream call.
type upstreamResponse struct {
	status int
	header http.Header
	body   []byte
}

// ServeHTTP forwards the request to the named breaker's upstream. An
// open circuit fails fast with 503 and a Retry-After hint; a deadline
// miss produces 504. Upstream 5xx responses are recorded as failures
// and reported as 502.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	b, ok := f.registry.Get(name)
	f.mu.RLock()
	rt, haveRoute := f.routes[name]
	f.mu.RUnlock()
	if !ok || !haveRoute {
		apierror.WriteJSON(w, r, http.StatusNotFound, apierror.BreakerNotFound, "no such breaker")
		return
	}

	// Buffer the request body so the forwarded call owns it even after
	// this handler returns (abandoned timed-out calls keep running).
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxRelayBytes))
		if err != nil {
			apierror.WriteJSON(w, r, http.StatusBadRequest, apierror.InternalError, "reading request body")
			return
		}
	}

	target := *rt.upstream
	target.Path = joinPath(target.Path, strings.TrimPrefix(r.URL.Path, "/call/"+name))
	target.RawQuery = r.URL.RawQuery

	header := r.Header.Clone()

	v, err := b.ExecuteTimeout(r.Context(), func(ctx context.Context) (any, error) {
		return f.roundTrip(r.Method, target.String(), header, body)
	}, rt.timeout)
	if err != nil {
		f.writeError(w, r, b, err)
		return
	}
	resp := v.(*upstreamResponse)

	for k, vs := range resp.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.status)
	w.Write(resp.body) //nolint:errcheck
}

// roundTrip performs the upstream call and buffers the response. Network
// errors and 5xx statuses are failures; everything else, including 4xx,
// passes through to the client as a successful relay.
func (f *Forwarder) roundTrip(method, target string, header http.Header, body []byte) (*upstreamResponse, error) {
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = header

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("upstream returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return &upstreamResponse{
		status: resp.StatusCode,
		header: resp.Header.Clone(),
		body:   buf,
	}, nil
}

func (f *Forwarder) writeError(w http.ResponseWriter, r *http.Request, b *breaker.Breaker, err error) {
	var (
		oe *breaker.OpenError
		te *breaker.TimeoutError
	)
	switch {
	case errors.As(err, &oe):
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfterSeconds(oe.RetryAfter))))
		apierror.WriteJSON(w, r, http.StatusServiceUnavailable, apierror.CircuitOpen, "circuit breaker open")
	case errors.As(err, &te):
		apierror.WriteJSON(w, r, http.StatusGatewayTimeout, apierror.UpstreamTimeout, "upstream call timed out")
	default:
		f.logger.Error("upstream call failed", "breaker", b.Name(), "error", err)
		apierror.WriteJSON(w, r, http.StatusBadGateway, apierror.UpstreamUnavailable, "upstream service unavailable")
	}
}

// retryAfterSeconds rounds up so a sub-second hint is never reported
// as an immediate retry.
func retryAfterSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if d%time.Second != 0 || secs == 0 {
		secs++
	}
	return secs
}

func joinPath(base, rest string) string {
	base = strings.TrimSuffix(base, "/")
	if rest == "" || rest == "/" {
		if base == "" {
			return "/"
		}
		return base
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return base + rest
}
