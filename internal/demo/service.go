package demo

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

// Service is the demo HTTP app: /hello answers after an outbound /lookup
// call and kicks off a linked audit task in the background.
type Service struct {
	tracer   *trace.Tracer
	registry *metric.Registry
	logger   *zap.Logger
	client   *resty.Client
	selfURL  string
	gatherer prometheus.Gatherer

	requests *metric.Counter
	latency  *metric.Histogram
	inflight *metric.UpDownCounter
}

// New builds the demo service. selfURL is the base URL the outbound /lookup
// call targets, normally the service's own listen address.
func New(tracer *trace.Tracer, registry *metric.Registry, logger *zap.Logger, selfURL string) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	requests, err := registry.Counter("demo.requests", metric.Opts{
		Unit:        "{request}",
		Description: "Requests handled per route and status",
	})
	if err != nil {
		return nil, err
	}
	latency, err := registry.Histogram("demo.request.duration",
		[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		metric.Opts{Unit: "s", Description: "Request duration per route"},
	)
	if err != nil {
		return nil, err
	}
	inflight, err := registry.UpDownCounter("demo.requests.inflight", metric.Opts{
		Unit:        "{request}",
		Description: "Requests currently being handled",
	})
	if err != nil {
		return nil, err
	}
	if _, err := registry.ObservableGauge("demo.goroutine.seed", func() (float64, error) {
		return float64(rand.Intn(100)), nil
	}, metric.Opts{Description: "Synthetic gauge proving pull collection"}); err != nil {
		return nil, err
	}

	// The service's instruments are scrapable at /metrics through the
	// registry bridge.
	promReg := prometheus.NewRegistry()
	if err := promReg.Register(metric.NewPrometheusBridge(registry)); err != nil {
		return nil, err
	}

	return &Service{
		tracer:   tracer,
		registry: registry,
		logger:   logger,
		client:   resty.New().SetTimeout(5 * time.Second),
		selfURL:  selfURL,
		gatherer: promReg,
		requests: requests,
		latency:  latency,
		inflight: inflight,
	}, nil
}

// Router builds the gin engine with the tracing middleware installed.
func (s *Service) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(trace.HTTPMiddleware(s.tracer))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	engine.GET("/hello", s.handleHello)
	engine.GET("/lookup", s.handleLookup)

	return engine
}

func (s *Service) handleHello(c *gin.Context) {
	start := time.Now()
	_ = s.inflight.Add(1)
	defer func() { _ = s.inflight.Add(-1) }()

	ctx := c.Request.Context()
	requestID := uuid.NewString()

	span := trace.SpanFromContext(ctx)
	span.SetAttribute("request.id", requestID)

	// Tenant travels as baggage so the downstream handler sees it without a
	// new parameter.
	bag := trace.BaggageFromContext(ctx).Set("tenant", c.DefaultQuery("tenant", "demo"))
	ctx = trace.ContextWithBaggage(ctx, bag)

	name, err := s.lookup(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(trace.StatusError, "lookup failed")
		s.count(c, http.StatusBadGateway, start)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	s.startAudit(span.Context(), requestID)

	s.count(c, http.StatusOK, start)
	c.JSON(http.StatusOK, gin.H{"hello": name, "request_id": requestID})
}

// lookup calls the service's own /lookup route with the trace context
// injected, producing a client span joined to the server span on the other
// side.
func (s *Service) lookup(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "GET /lookup",
		trace.WithKind(trace.KindClient),
		trace.WithAttributes(trace.String("http.url", s.selfURL+"/lookup")),
	)
	defer span.End()

	header := http.Header{}
	trace.Inject(ctx, header)

	req := s.client.R().SetContext(ctx)
	for key, values := range header {
		req.SetHeader(key, values[0])
	}

	resp, err := req.Get(s.selfURL + "/lookup")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(trace.StatusError, "request failed")
		return "", err
	}
	span.SetAttribute("http.status_code", resp.StatusCode())
	if resp.StatusCode() != http.StatusOK {
		err := fmt.Errorf("lookup returned %d", resp.StatusCode())
		span.SetStatus(trace.StatusError, err.Error())
		return "", err
	}
	return resp.String(), nil
}

func (s *Service) handleLookup(c *gin.Context) {
	start := time.Now()

	span := trace.SpanFromContext(c.Request.Context())
	if tenant, ok := trace.BaggageFromContext(c.Request.Context()).Get("tenant"); ok {
		span.SetAttribute("tenant", tenant)
	}

	// Simulated downstream latency.
	time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)

	s.count(c, http.StatusOK, start)
	c.String(http.StatusOK, "world")
}

// startAudit runs a background task in its own trace, linked to the request
// span rather than parented under it: the task outlives the request.
func (s *Service) startAudit(origin trace.SpanContext, requestID string) {
	go func() {
		ctx, span := s.tracer.Start(context.Background(), "audit.record",
			trace.WithNoParent(),
			trace.WithLinks(origin),
			trace.WithAttributes(trace.String("request.id", requestID)),
		)
		defer span.End()

		select {
		case <-time.After(10 * time.Millisecond):
			span.AddEvent("audit written")
		case <-ctx.Done():
			span.SetStatus(trace.StatusError, "cancelled")
		}
	}()
}

func (s *Service) count(c *gin.Context, status int, start time.Time) {
	route := c.FullPath()
	_ = s.requests.Add(1,
		metric.Attr{Key: "route", Value: route},
		metric.Attr{Key: "status", Value: fmt.Sprintf("%d", status)},
	)
	_ = s.latency.Record(time.Since(start).Seconds(), metric.Attr{Key: "route", Value: route})
}
