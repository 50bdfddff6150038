package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quillon/tracekit/internal/infrastructure/config"
)

func TestMetricsEndpointExposesInstrumentRegistry(t *testing.T) {
	srv, err := New(config.Default(), zap.NewNop())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "collector_records_dropped")
	assert.Contains(t, body, "tracekit_pipeline_buffer_size")
	assert.Contains(t, body, "tracekit_uptime_seconds")
}
