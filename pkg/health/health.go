// Package health provides Kubernetes-style liveness and readiness probes.
//
// Checks run in a single background goroutine at a fixed interval. Threshold
// counting keeps probes from flapping: a check flips to unhealthy only after
// three consecutive failures and back after one success.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. nil means healthy.
type CheckFunc func(ctx context.Context) error

const (
	failureThreshold = 3
	successThreshold = 1
)

// check is the runtime state of one registered probe. Counters are touched
// only by the single runner goroutine; healthy and lastErr are shared with
// HTTP handlers through atomics.
type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (c *check) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(checkCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.oks = 0
		if c.fails++; c.fails >= failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	if c.oks++; c.oks >= successThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) err() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Health manages the service's liveness and readiness checks.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Health in the not-ready state. Call SetReady(true) once
// initialization finished.
func New() *Health {
	return &Health{}
}

func (h *Health) add(list *[]*check, name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &check{name: name, timeout: timeout, fn: fn}
	c.healthy.Store(true)
	*list = append(*list, c)
}

// AddLivenessCheck registers a check deciding whether the process itself is
// functioning.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(&h.liveness, name, timeout, fn)
}

// AddReadinessCheck registers a check deciding whether the service can take
// traffic, typically a dependency ping.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(&h.readiness, name, timeout, fn)
}

// SetReady flips the administrative readiness gate. The readiness endpoint
// reports down while it is false regardless of check results.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Start launches the background runner executing all checks every interval.
// Register checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	checks := make([]*check, 0, len(h.liveness)+len(h.readiness))
	checks = append(checks, h.liveness...)
	checks = append(checks, h.readiness...)
	h.mu.Unlock()

	go func() {
		for _, c := range checks {
			c.run(runCtx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				for _, c := range checks {
					c.run(runCtx)
				}
			}
		}
	}()
}

// Stop halts the background runner.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

type probeStatus struct {
	Status string            `json:"status"`
	Errors map[string]string `json:"errors,omitempty"`
}

func writeProbe(w http.ResponseWriter, healthy bool, errs map[string]string) {
	status := probeStatus{Status: "ok", Errors: errs}
	code := http.StatusOK
	if !healthy {
		status.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func probe(checks []*check) (bool, map[string]string) {
	healthy := true
	var errs map[string]string
	for _, c := range checks {
		if c.healthy.Load() {
			continue
		}
		healthy = false
		if errs == nil {
			errs = make(map[string]string)
		}
		if err := c.err(); err != nil {
			errs[c.name] = err.Error()
		} else {
			errs[c.name] = "unhealthy"
		}
	}
	return healthy, errs
}

// LiveEndpoint serves the liveness probe.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := append([]*check(nil), h.liveness...)
	h.mu.RUnlock()

	healthy, errs := probe(checks)
	writeProbe(w, healthy, errs)
}

// ReadyEndpoint serves the readiness probe: the administrative gate plus
// every readiness check.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	if !h.ready.Load() {
		writeProbe(w, false, map[string]string{"service": "not ready"})
		return
	}

	h.mu.RLock()
	checks := append([]*check(nil), h.readiness...)
	h.mu.RUnlock()

	healthy, errs := probe(checks)
	writeProbe(w, healthy, errs)
}
