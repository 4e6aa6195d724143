package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker tracks refresh cycles for the liveness and readiness probes.
// The service is ready once a live cycle has completed, and stops being
// ready when no cycle has succeeded within the stale window.
type HealthChecker struct {
	startTime  time.Time
	staleAfter time.Duration
	lastCycle  atomic.Int64 // unix nanos of the last successful cycle
	now        func() time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{startTime: time.Now(), now: time.Now}
}

// WithStaleAfter sets how old the last cycle may be before readiness fails.
// Zero disables the check.
func (h *HealthChecker) WithStaleAfter(d time.Duration) *HealthChecker {
	h.staleAfter = d
	return h
}

// WithClock replaces the time source.
func (h *HealthChecker) WithClock(now func() time.Time) *HealthChecker {
	h.now = now
	return h
}

// MarkCycle records a successful refresh cycle.
func (h *HealthChecker) MarkCycle(at time.Time) {
	h.lastCycle.Store(at.UnixNano())
}

// LastCycle returns the time of the last successful cycle, zero if none.
func (h *HealthChecker) LastCycle() time.Time {
	n := h.lastCycle.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// IsReady reports whether a cycle has completed and is not stale.
func (h *HealthChecker) IsReady() bool {
	ready, _ := h.readiness()
	return ready
}

func (h *HealthChecker) readiness() (bool, string) {
	last := h.LastCycle()
	switch {
	case last.IsZero():
		return false, "not_ready"
	case h.staleAfter > 0 && h.now().Sub(last) > h.staleAfter:
		return false, "stale"
	default:
		return true, "ready"
	}
}

// LivenessHandler answers 200 while the process is up.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler answers 200 when ready, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready, state := h.readiness()
	body := map[string]interface{}{"status": state}
	if last := h.LastCycle(); !last.IsZero() {
		body["last_cycle"] = last.UTC().Format(time.RFC3339)
	}
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeProbe(w, code, body)
}

func writeProbe(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
