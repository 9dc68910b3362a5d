// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const defaultTimeout = 500 * time.Millisecond

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady flips the readiness gate. The API clears it when shutdown starts
// so load balancers stop routing before in-flight requests drain.
func SetReady(v bool) {
	ready.Store(v)
}

// Check is one readiness dependency.
type Check struct {
	Name    string
	Timeout time.Duration
	Probe   func(context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes every dependency concurrently and answers 503 if any fails.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		writeReadiness(w, http.StatusServiceUnavailable, readiness{Status: "shutting down"})
		return
	}
	if len(h.Checks) == 0 {
		writeReadiness(w, http.StatusServiceUnavailable, readiness{Status: "no checks configured"})
		return
	}

	results := make([]string, len(h.Checks))
	var g errgroup.Group
	for i, c := range h.Checks {
		g.Go(func() error {
			results[i] = probe(r.Context(), c)
			return nil
		})
	}
	_ = g.Wait()

	body := readiness{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	code := http.StatusOK
	for i, c := range h.Checks {
		body.Checks[c.Name] = results[i]
		if results[i] != "ok" {
			body.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeReadiness(w, code, body)
}

// Routes mounts the probes under /health.
func (h Handler) Routes(mux chi.Router) {
	mux.Get("/health/live", h.Live)
	mux.Get("/health/ready", h.Ready)
}

func probe(ctx context.Context, c Check) string {
	if c.Probe == nil {
		return "not configured"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Probe(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

func writeReadiness(w http.ResponseWriter, code int, body readiness) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
