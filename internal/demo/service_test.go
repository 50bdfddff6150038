package demo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

func TestMetricsRouteExposesRegistry(t *testing.T) {
	registry := metric.NewRegistry(nil)
	tracer := trace.New("demo-test", nil, nil)

	svc, err := New(tracer, registry, nil, "http://localhost:0")
	require.NoError(t, err)
	router := svc.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lookup", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "demo_requests")
	assert.Contains(t, body, "demo_request_duration")
	assert.Contains(t, body, "demo_goroutine_seed")
}
