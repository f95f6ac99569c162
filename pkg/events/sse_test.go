package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeSSE_ForwardsMatchingSessionEnvelope(t *testing.T) {
	bus := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?session_id=s1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		bus.ServeSSE(rec, req, "s1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Emit("query_started", map[string]interface{}{"session_id": "s1", "query_id": "q1"}, "intel.orchestrator", "")

	<-done

	body := rec.Body.String()
	assert.Contains(t, body, "event: query_started")
	assert.Contains(t, body, "q1")
}

func TestServeSSE_SendsInitialConnectedEvent(t *testing.T) {
	bus := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?session_id=s1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	bus.ServeSSE(rec, req, "s1")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: system\ndata: "))
	assert.Contains(t, body, `"type":"connected"`)
	assert.Contains(t, body, `"session_id":"s1"`)
}

func TestServeSSE_SkipsOtherSessionEnvelope(t *testing.T) {
	bus := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?session_id=s1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		bus.ServeSSE(rec, req, "s1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Emit("query_started", map[string]interface{}{"session_id": "other-session"}, "intel.orchestrator", "")

	<-done

	assert.NotContains(t, rec.Body.String(), "other-session")
}

func TestServeSSE_BroadcastsEnvelopeWithoutSessionID(t *testing.T) {
	bus := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?session_id=s1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		bus.ServeSSE(rec, req, "s1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Emit("CircuitBreakerStateChanged", map[string]interface{}{"state": "open"}, "resilience.circuit_breaker", "")

	<-done

	assert.Contains(t, rec.Body.String(), "CircuitBreakerStateChanged")
}

func TestServeSSE_DisconnectReleasesOnlyOwnSubscription(t *testing.T) {
	bus := New(nil)

	ctx1, cancel1 := context.WithCancel(context.Background())
	req1 := httptest.NewRequest(http.MethodGet, "/api/events?session_id=a", nil).WithContext(ctx1)
	rec1 := httptest.NewRecorder()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel2()
	req2 := httptest.NewRequest(http.MethodGet, "/api/events?session_id=b", nil).WithContext(ctx2)
	rec2 := httptest.NewRecorder()

	done1 := make(chan struct{})
	done2 := make(chan struct{})
	go func() { bus.ServeSSE(rec1, req1, "a"); close(done1) }()
	go func() { bus.ServeSSE(rec2, req2, "b"); close(done2) }()

	time.Sleep(20 * time.Millisecond)
	cancel1()
	<-done1

	bus.Emit("query_started", nil, "intel.orchestrator", "")
	<-done2

	require.Contains(t, rec2.Body.String(), "event: query_started")
}

func TestWriteSSEEvent_FormatsAsEventStream(t *testing.T) {
	rec := httptest.NewRecorder()
	env := newEnvelope("query_started", map[string]interface{}{"a": 1}, "mod", "corr")

	err := writeSSEEvent(rec, env)
	require.NoError(t, err)

	lines := strings.Split(rec.Body.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "event: query_started", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data: "))
}
