package export

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"google.golang.org/protobuf/proto"

	"github.com/quillon/tracekit/internal/collector/otlpconv"
	"github.com/quillon/tracekit/internal/pipeline"
)

// OTLPHTTP ships batches to an upstream OTLP collector over HTTP with
// protobuf bodies (/v1/traces and /v1/metrics).
type OTLPHTTP struct {
	service string
	client  *resty.Client
}

// NewOTLPHTTP creates an exporter posting to baseURL, e.g.
// "http://collector:4318".
func NewOTLPHTTP(baseURL, service string) *OTLPHTTP {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/x-protobuf")
	return &OTLPHTTP{service: service, client: client}
}

// Name implements pipeline.Exporter.
func (e *OTLPHTTP) Name() string { return "otlp_http" }

// Export posts the batch's spans and points as OTLP protobuf payloads.
func (e *OTLPHTTP) Export(ctx context.Context, batch pipeline.Batch) error {
	if spans := batch.Spans(); len(spans) > 0 {
		body, err := proto.Marshal(otlpconv.ToProtoTraces(spans))
		if err != nil {
			return pipeline.Fatal(fmt.Errorf("marshal trace request: %w", err))
		}
		if err := e.post(ctx, "/v1/traces", body); err != nil {
			return err
		}
	}
	if points := batch.Metrics(); len(points) > 0 {
		body, err := proto.Marshal(otlpconv.ToProtoMetrics(e.service, points))
		if err != nil {
			return pipeline.Fatal(fmt.Errorf("marshal metrics request: %w", err))
		}
		if err := e.post(ctx, "/v1/metrics", body); err != nil {
			return err
		}
	}
	return nil
}

func (e *OTLPHTTP) post(ctx context.Context, path string, body []byte) error {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return pipeline.Retryable(err)
	}
	return classifyHTTP(resp.StatusCode(), path)
}

// classifyHTTP maps a response status to the retry classification: 429 and
// 5xx are transient, any other non-2xx means the payload will never be
// accepted.
func classifyHTTP(code int, path string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return pipeline.Retryable(fmt.Errorf("collector returned %d for %s", code, path))
	default:
		return pipeline.Fatal(fmt.Errorf("collector rejected %s with %d", path, code))
	}
}
