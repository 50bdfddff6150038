package export

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quillon/tracekit/internal/pipeline"
	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

func sampleBatch() pipeline.Batch {
	span := trace.SpanData{
		Context: trace.SpanContext{TraceID: trace.TraceID{1}, SpanID: trace.SpanID{2}, Sampled: true},
		Name:    "op",
		Service: "svc",
		Status:  trace.Status{Code: trace.StatusError, Message: "boom"},
	}
	point := metric.Point{Name: "requests", Kind: metric.KindCounter, Value: 1, Time: time.Now()}
	return pipeline.Batch{
		ID:      "batch_test",
		Records: []pipeline.Record{{Span: &span}, {Metric: &point}},
	}
}

func TestStdoutNeverFails(t *testing.T) {
	exp := NewStdout(nil)

	assert.Equal(t, "stdout", exp.Name())
	require.NoError(t, exp.Export(context.Background(), sampleBatch()))
	require.NoError(t, exp.Export(context.Background(), pipeline.Batch{}))
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		wantNil   bool
		retryable bool
	}{
		{"200 ok", http.StatusOK, true, false},
		{"204 ok", http.StatusNoContent, true, false},
		{"429 transient", http.StatusTooManyRequests, false, true},
		{"500 transient", http.StatusInternalServerError, false, true},
		{"503 transient", http.StatusServiceUnavailable, false, true},
		{"400 fatal", http.StatusBadRequest, false, false},
		{"401 fatal", http.StatusUnauthorized, false, false},
		{"413 fatal", http.StatusRequestEntityTooLarge, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyHTTP(tt.code, "/v1/traces")
			if tt.wantNil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.retryable, pipeline.IsRetryable(err))
		})
	}
}

func TestClassifyGRPC(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "throttled"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad"), false},
		{"unauthenticated", status.Error(codes.Unauthenticated, "no"), false},
		{"unimplemented", status.Error(codes.Unimplemented, "missing"), false},
		{"plain error", errors.New("conn reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGRPC(tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, pipeline.IsRetryable(err))
		})
	}
}
