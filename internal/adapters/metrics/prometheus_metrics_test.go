package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/mvrp/internal/core/domain"
	"github.com/sufield/mvrp/internal/core/ports"
)

func TestPrometheusMetrics_ConnectionLifecycle(t *testing.T) {
	m := NewPrometheusMetrics()

	opened := testutil.ToFloat64(connectionsOpened)
	active := testutil.ToFloat64(connectionsActive)
	failed := testutil.ToFloat64(connectionsClosed.WithLabelValues(ports.OutcomeFailed, "HANDSHAKE_ERROR"))

	m.ConnectionOpened()
	assert.Equal(t, opened+1, testutil.ToFloat64(connectionsOpened))
	assert.Equal(t, active+1, testutil.ToFloat64(connectionsActive))

	m.ConnectionClosed(ports.OutcomeFailed, "HANDSHAKE_ERROR", 20*time.Millisecond)
	assert.Equal(t, active, testutil.ToFloat64(connectionsActive))
	assert.Equal(t, failed+1, testutil.ToFloat64(connectionsClosed.WithLabelValues(ports.OutcomeFailed, "HANDSHAKE_ERROR")))
}

func TestPrometheusMetrics_RequestServed(t *testing.T) {
	m := NewPrometheusMetrics()

	read := testutil.ToFloat64(requestsServed.WithLabelValues("READ", "200"))
	other := testutil.ToFloat64(requestsServed.WithLabelValues("other", "405"))

	m.RequestServed("READ", 200)
	m.RequestServed("DELETE", 405)
	m.RequestServed("read", 405)

	assert.Equal(t, read+1, testutil.ToFloat64(requestsServed.WithLabelValues("READ", "200")))
	assert.Equal(t, other+2, testutil.ToFloat64(requestsServed.WithLabelValues("other", "405")))
}

func TestMethodLabel_FollowsTheDispatcher(t *testing.T) {
	for _, m := range []domain.Method{
		domain.MethodOptions, domain.MethodCreate, domain.MethodRead, domain.MethodEmit, domain.MethodBurn,
	} {
		assert.Equal(t, string(m), methodLabel(string(m)))
	}
	for _, m := range []string{"DELETE", "read", ""} {
		assert.Equal(t, "other", methodLabel(m), m)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	NewPrometheusMetrics().ConnectionOpened()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mvrp_connections_opened_total")
}
