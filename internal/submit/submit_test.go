package submit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-commerce/checkout/internal/domain/order"
)

func testDraft() *order.Draft {
	return &order.Draft{
		OrderID:     "ATL-test1",
		OrderNumber: "1001",
		UserID:      "u1",
		Items: []order.Line{{
			ProductName: "Canvas Tote",
			UnitPrice:   decimal.RequireFromString("43"),
			Quantity:    1,
			LineTotal:   decimal.RequireFromString("43"),
		}},
		Subtotal: decimal.RequireFromString("43"),
		Shipping: decimal.Zero,
		Total:    decimal.RequireFromString("43"),
	}
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestSubmit_FallsThroughToThirdCandidate(t *testing.T) {
	notFound := httptest.NewServer(jsonHandler(http.StatusNotFound, `{"error":"no route"}`))
	defer notFound.Close()

	// Closed server: connecting fails at the transport level.
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	var hits int
	winner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		var envelope map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		assert.Equal(t, "save-order", envelope["action"])
		jsonHandler(http.StatusOK, `{"success":true,"order_id":7}`)(w, r)
	}))
	defer winner.Close()

	s := New(Config{Candidates: []string{notFound.URL, deadURL, winner.URL}})
	out, err := s.Submit(context.Background(), testDraft())
	require.NoError(t, err)

	assert.True(t, out.Delivered)
	assert.Equal(t, winner.URL, out.Endpoint)
	assert.Equal(t, "7", out.OrderID)
	assert.Equal(t, 1, hits)

	// First attempt skipped (endpoint absent), second a hard network failure.
	require.Len(t, out.Attempts, 2)
	assert.True(t, out.Attempts[0].Skipped)
	assert.False(t, out.Attempts[1].Skipped)
}

func TestSubmit_AllCandidatesFail(t *testing.T) {
	boom := httptest.NewServer(jsonHandler(http.StatusInternalServerError, `{"success":false}`))
	defer boom.Close()
	notJSON := httptest.NewServer(jsonHandler(http.StatusOK, `<html>maintenance</html>`))
	defer notJSON.Close()
	refused := httptest.NewServer(jsonHandler(http.StatusOK, `{"success":false,"error":"out of stock"}`))
	defer refused.Close()

	s := New(Config{Candidates: []string{boom.URL, notJSON.URL, refused.URL}})
	out, err := s.Submit(context.Background(), testDraft())
	require.NoError(t, err)

	assert.False(t, out.Delivered)
	assert.Len(t, out.Attempts, 3)
	for _, a := range out.Attempts {
		assert.False(t, a.Skipped)
		assert.NotEmpty(t, a.Reason)
	}
}

func TestSubmit_FirstSuccessShortCircuits(t *testing.T) {
	var secondHit bool
	first := httptest.NewServer(jsonHandler(http.StatusOK, `{"success":true,"order_id":"ATL-remote"}`))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHit = true
	}))
	defer second.Close()

	s := New(Config{Candidates: []string{first.URL, second.URL}})
	out, err := s.Submit(context.Background(), testDraft())
	require.NoError(t, err)

	assert.True(t, out.Delivered)
	assert.Equal(t, "ATL-remote", out.OrderID)
	assert.Empty(t, out.Attempts)
	assert.False(t, secondHit)
}

func TestSubmit_SuccessWithoutIDFallsBackToDraftID(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(http.StatusOK, `{"success":true}`))
	defer srv.Close()

	s := New(Config{Candidates: []string{srv.URL}})
	out, err := s.Submit(context.Background(), testDraft())
	require.NoError(t, err)

	assert.True(t, out.Delivered)
	assert.Equal(t, "ATL-test1", out.OrderID)
}

func TestSubmit_NoCandidates(t *testing.T) {
	s := New(Config{})
	_, err := s.Submit(context.Background(), testDraft())
	assert.Error(t, err)
}

func TestSubmit_AttemptTimeoutTreatedAsNetworkFailure(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		jsonHandler(http.StatusOK, `{"success":true}`)(w, r)
	}))
	defer slow.Close()
	fast := httptest.NewServer(jsonHandler(http.StatusOK, `{"success":true,"order_id":"ATL-fast"}`))
	defer fast.Close()

	s := New(Config{
		Candidates:     []string{slow.URL, fast.URL},
		AttemptTimeout: 50 * time.Millisecond,
	})
	out, err := s.Submit(context.Background(), testDraft())
	require.NoError(t, err)

	assert.True(t, out.Delivered)
	assert.Equal(t, "ATL-fast", out.OrderID)
	require.Len(t, out.Attempts, 1)
	assert.Contains(t, out.Attempts[0].Reason, "network")
}
