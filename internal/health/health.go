// Package health serves the liveness, readiness and status endpoints of the
// optional observability listener.
//
//   - /healthz reports that the process serves HTTP.
//   - /readyz runs every [Checker] (input devices open, engine loaded) and
//     returns 503 when one fails.
//   - /statusz returns the current recorder snapshot as JSON.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithChecker adds a readiness check. Checks run in the order added.
func WithChecker(name string, check func(ctx context.Context) error) Option {
	return func(h *Handler) {
		h.checkers = append(h.checkers, Checker{Name: name, Check: check})
	}
}

// WithStatus sets the function whose result /statusz encodes.
func WithStatus(fn func() any) Option {
	return func(h *Handler) { h.status = fn }
}

// Handler serves the health endpoints. The configuration is fixed at
// construction.
type Handler struct {
	checkers []Checker
	status   func() any
}

// New creates a Handler.
func New(opts ...Option) *Handler {
	h := &Handler{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 when every checker passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK
	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, res)
}

// Statusz encodes the status function's result, or 404 when none is set.
func (h *Handler) Statusz(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /statusz", h.Statusz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode response", "err", err)
	}
}
