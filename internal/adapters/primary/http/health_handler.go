package http

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/lorrc/event-attendance-backend/internal/core/ports"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"

	healthCheckTimeout = 5 * time.Second
)

// SubscriberCounter reports live broadcast subscribers.
type SubscriberCounter interface {
	ClientCount() int
	Done() <-chan struct{}
}

// HealthHandler serves liveness, readiness and a detailed status page
// covering the store and the broadcast hub.
type HealthHandler struct {
	db        ports.HealthChecker
	hub       SubscriberCounter
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. hub may be nil.
func NewHealthHandler(db ports.HealthChecker, hub SubscriberCounter, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		hub:       hub,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Latency     string `json:"latency,omitempty"`
	Subscribers *int   `json:"subscribers,omitempty"`
}

// DetailedHealthResponse adds runtime figures to HealthResponse.
type DetailedHealthResponse struct {
	HealthResponse
	Memory     MemoryStats `json:"memory"`
	Goroutines int         `json:"goroutines"`
}

// MemoryStats is the subset of runtime.MemStats worth watching.
type MemoryStats struct {
	Alloc      uint64 `json:"alloc_bytes"`
	TotalAlloc uint64 `json:"total_alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// HandleLiveness reports that the process is up. It touches no dependency.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	WriteOK(w, HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness returns 503 until the store answers and the hub runs.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.evaluate(r.Context(), statusUnhealthy)

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}

// HandleHealth is the readiness report plus runtime stats.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.evaluate(r.Context(), statusDegraded)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, DetailedHealthResponse{
		HealthResponse: resp,
		Memory: MemoryStats{
			Alloc:      mem.Alloc,
			TotalAlloc: mem.TotalAlloc,
			Sys:        mem.Sys,
			NumGC:      mem.NumGC,
		},
		Goroutines: runtime.NumGoroutine(),
	})
}

// evaluate runs every check concurrently. failStatus is reported as the
// overall status when any check fails.
func (h *HealthHandler) evaluate(ctx context.Context, failStatus string) (HealthResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	checks := map[string]func(context.Context) Check{
		"database": h.checkDatabase,
	}
	if h.hub != nil {
		checks["broadcast"] = h.checkBroadcast
	}

	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(checks))
		g       errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			c := check(ctx)
			mu.Lock()
			results[name] = c
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for _, c := range results {
		if c.Status != statusHealthy {
			healthy = false
		}
	}

	overall := statusHealthy
	if !healthy {
		overall = failStatus
	}
	return HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    results,
	}, healthy
}

func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	if h.db == nil {
		return Check{Status: statusUnhealthy, Message: "Database not configured"}
	}

	start := time.Now()
	err := h.db.Ping(ctx)
	latency := time.Since(start).String()

	if err != nil {
		return Check{Status: statusUnhealthy, Message: err.Error(), Latency: latency}
	}
	return Check{Status: statusHealthy, Latency: latency}
}

// checkBroadcast reports whether the hub loop is still running.
func (h *HealthHandler) checkBroadcast(context.Context) Check {
	select {
	case <-h.hub.Done():
		return Check{Status: statusUnhealthy, Message: "broadcast hub stopped"}
	default:
	}
	n := h.hub.ClientCount()
	return Check{Status: statusHealthy, Subscribers: &n}
}
