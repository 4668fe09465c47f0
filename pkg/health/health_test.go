package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probeCode(t *testing.T, handler http.HandlerFunc) int {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec.Code
}

func TestReadyEndpointGate(t *testing.T) {
	h := New()

	// Not ready until SetReady(true).
	assert.Equal(t, http.StatusServiceUnavailable, probeCode(t, h.ReadyEndpoint))

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, probeCode(t, h.ReadyEndpoint))

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, probeCode(t, h.ReadyEndpoint))
}

func TestCheckFailureThreshold(t *testing.T) {
	c := &check{name: "db", timeout: time.Second, fn: func(context.Context) error {
		return errors.New("down")
	}}
	c.healthy.Store(true)

	// Two failures are not enough to flip the check.
	c.run(context.Background())
	c.run(context.Background())
	assert.True(t, c.healthy.Load())

	c.run(context.Background())
	assert.False(t, c.healthy.Load())
}

func TestCheckRecoversAfterOneSuccess(t *testing.T) {
	healthy := false
	c := &check{name: "db", timeout: time.Second, fn: func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	}}

	for range failureThreshold {
		c.run(context.Background())
	}
	require.False(t, c.healthy.Load())

	healthy = true
	c.run(context.Background())
	assert.True(t, c.healthy.Load())
}

func TestReadyEndpointReportsFailingCheck(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})
	h.SetReady(true)

	// Drive the check past the failure threshold directly.
	for range failureThreshold {
		h.readiness[0].run(context.Background())
	}

	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestLiveEndpointHealthyByDefault(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(10000))
	assert.Equal(t, http.StatusOK, probeCode(t, h.LiveEndpoint))
}

func TestStartRunsChecks(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.AddReadinessCheck("ping", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Hour)
	defer h.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("check never ran")
	}
}
