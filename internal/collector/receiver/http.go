package receiver

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/quillon/tracekit/internal/collector/middleware"
	"github.com/quillon/tracekit/internal/collector/otlpconv"
	"github.com/quillon/tracekit/internal/infrastructure/monitoring"
)

const (
	contentTypeProto = "application/x-protobuf"
	contentTypeJSON  = "application/json"

	// Telemetry posts are size-bounded; anything larger is a misbehaving
	// sender, not a bigger batch.
	maxBodyBytes = 8 << 20
)

// HTTP serves the OTLP/HTTP ingest endpoints plus the collector's own
// health and Prometheus surfaces.
type HTTP struct {
	sink     Sink
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
}

// NewHTTP creates the HTTP receiver. gatherer backs GET /metrics; metrics
// and gatherer may be nil.
func NewHTTP(sink Sink, logger *zap.Logger, metrics *monitoring.Metrics, gatherer prometheus.Gatherer) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{sink: sink, logger: logger, metrics: metrics, gatherer: gatherer}
}

// Router builds the gin engine with CORS, rate limiting, and request
// counting applied. A zero RequestsPerSecond disables rate limiting.
func (r *HTTP) Router(rateCfg middleware.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if rateCfg.RequestsPerSecond > 0 {
		engine.Use(middleware.RateLimit(rateCfg))
		// Aggregate cap across all senders: the per-IP limit alone cannot
		// stop a fleet of distinct senders from saturating ingest.
		engine.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: rateCfg.RequestsPerSecond * 10,
			Burst:             rateCfg.Burst * 10,
		}))
	}
	if r.metrics != nil {
		engine.Use(monitoring.Middleware(r.metrics))
	}

	engine.GET("/health", r.handleHealth)
	if r.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/v1")
	v1.POST("/traces", r.handleTraces)
	v1.POST("/metrics", r.handleMetrics)

	return engine
}

func (r *HTTP) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *HTTP) handleTraces(c *gin.Context) {
	var req coltracepb.ExportTraceServiceRequest
	if !r.decode(c, &req) {
		return
	}

	spans := otlpconv.FromProtoTraces(&req)
	for _, sd := range spans {
		r.sink.EnqueueSpan(sd)
	}
	r.logger.Debug("received trace export", zap.Int("spans", len(spans)))
	r.respond(c, &coltracepb.ExportTraceServiceResponse{})
}

func (r *HTTP) handleMetrics(c *gin.Context) {
	var req colmetricpb.ExportMetricsServiceRequest
	if !r.decode(c, &req) {
		return
	}

	points := otlpconv.FromProtoMetrics(&req)
	for _, p := range points {
		r.sink.EnqueuePoint(p)
	}
	r.logger.Debug("received metrics export", zap.Int("points", len(points)))
	r.respond(c, &colmetricpb.ExportMetricsServiceResponse{})
}

// decode reads the body as protobuf or JSON depending on Content-Type. On
// failure it writes the error response and returns false.
func (r *HTTP) decode(c *gin.Context, msg proto.Message) bool {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return false
	}

	contentType := c.ContentType()
	switch {
	case strings.HasPrefix(contentType, contentTypeProto):
		err = proto.Unmarshal(body, msg)
	case strings.HasPrefix(contentType, contentTypeJSON):
		err = protojson.Unmarshal(body, msg)
	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type " + contentType})
		return false
	}
	if err != nil {
		r.logger.Warn("rejecting malformed export request",
			zap.String("content_type", contentType),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "decode request: " + err.Error()})
		return false
	}
	return true
}

// respond mirrors the request encoding in the response.
func (r *HTTP) respond(c *gin.Context, msg proto.Message) {
	if strings.HasPrefix(c.ContentType(), contentTypeJSON) {
		data, _ := protojson.Marshal(msg)
		c.Data(http.StatusOK, contentTypeJSON, data)
		return
	}
	data, _ := proto.Marshal(msg)
	c.Data(http.StatusOK, contentTypeProto, data)
}
