// Package otlpconv maps the internal span and metric record shapes onto the
// OTLP protobuf types used by the receive endpoints, the OTLP exporters, and
// the kafka transport.
package otlpconv

import (
	"encoding/hex"
	"fmt"
	"time"

	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricpb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

const serviceNameKey = "service.name"

// ToProtoTraces converts span records into an OTLP export request, grouping
// spans by originating service into one ResourceSpans each.
func ToProtoTraces(spans []trace.SpanData) *coltracepb.ExportTraceServiceRequest {
	byService := make(map[string][]*tracepb.Span)
	order := make([]string, 0, 4)
	for _, sd := range spans {
		if _, ok := byService[sd.Service]; !ok {
			order = append(order, sd.Service)
		}
		byService[sd.Service] = append(byService[sd.Service], toProtoSpan(sd))
	}

	req := &coltracepb.ExportTraceServiceRequest{}
	for _, service := range order {
		req.ResourceSpans = append(req.ResourceSpans, &tracepb.ResourceSpans{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{{
					Key:   serviceNameKey,
					Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: service}},
				}},
			},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: "tracekit"},
				Spans: byService[service],
			}},
		})
	}
	return req
}

// FromProtoTraces converts an OTLP export request into span records, reading
// the service name from each resource.
func FromProtoTraces(req *coltracepb.ExportTraceServiceRequest) []trace.SpanData {
	var spans []trace.SpanData
	for _, rs := range req.GetResourceSpans() {
		service := serviceName(rs.GetResource())
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				spans = append(spans, fromProtoSpan(span, service))
			}
		}
	}
	return spans
}

func toProtoSpan(sd trace.SpanData) *tracepb.Span {
	span := &tracepb.Span{
		TraceId:           sd.Context.TraceID[:],
		SpanId:            sd.Context.SpanID[:],
		Name:              sd.Name,
		Kind:              toProtoKind(sd.Kind),
		StartTimeUnixNano: uint64(sd.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(sd.EndTime.UnixNano()),
		Attributes:        toProtoAttrs(sd.Attributes),
	}
	if sd.Context.Sampled {
		span.Flags = 1
	}
	if sd.ParentID.IsValid() {
		span.ParentSpanId = sd.ParentID[:]
	}
	for _, ev := range sd.Events {
		span.Events = append(span.Events, &tracepb.Span_Event{
			Name:         ev.Name,
			TimeUnixNano: uint64(ev.Time.UnixNano()),
			Attributes:   toProtoAttrs(ev.Attributes),
		})
	}
	for _, link := range sd.Links {
		span.Links = append(span.Links, &tracepb.Span_Link{
			TraceId: link.TraceID[:],
			SpanId:  link.SpanID[:],
		})
	}
	if sd.Status.Code != trace.StatusUnset {
		span.Status = &tracepb.Status{
			Code:    toProtoStatus(sd.Status.Code),
			Message: sd.Status.Message,
		}
	}
	return span
}

func fromProtoSpan(span *tracepb.Span, service string) trace.SpanData {
	sd := trace.SpanData{
		Name:      span.GetName(),
		Kind:      fromProtoKind(span.GetKind()),
		Service:   service,
		StartTime: time.Unix(0, int64(span.GetStartTimeUnixNano())),
		EndTime:   time.Unix(0, int64(span.GetEndTimeUnixNano())),
	}
	copy(sd.Context.TraceID[:], span.GetTraceId())
	copy(sd.Context.SpanID[:], span.GetSpanId())
	sd.Context.Sampled = span.GetFlags()&1 != 0
	copy(sd.ParentID[:], span.GetParentSpanId())

	for _, kv := range span.GetAttributes() {
		sd.Attributes = append(sd.Attributes, trace.Attribute{Key: kv.GetKey(), Value: fromAnyValue(kv.GetValue())})
	}
	for _, ev := range span.GetEvents() {
		event := trace.Event{Name: ev.GetName(), Time: time.Unix(0, int64(ev.GetTimeUnixNano()))}
		for _, kv := range ev.GetAttributes() {
			event.Attributes = append(event.Attributes, trace.Attribute{Key: kv.GetKey(), Value: fromAnyValue(kv.GetValue())})
		}
		sd.Events = append(sd.Events, event)
	}
	for _, link := range span.GetLinks() {
		var sc trace.SpanContext
		copy(sc.TraceID[:], link.GetTraceId())
		copy(sc.SpanID[:], link.GetSpanId())
		sd.Links = append(sd.Links, sc)
	}
	if status := span.GetStatus(); status != nil {
		sd.Status = trace.Status{Code: fromProtoStatus(status.GetCode()), Message: status.GetMessage()}
	}
	return sd
}

// ToProtoMetrics converts cumulative metric points into an OTLP export
// request.
func ToProtoMetrics(service string, points []metric.Point) *colmetricpb.ExportMetricsServiceRequest {
	metrics := make([]*metricpb.Metric, 0, len(points))
	for _, p := range points {
		metrics = append(metrics, toProtoMetric(p))
	}
	return &colmetricpb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricpb.ResourceMetrics{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{{
					Key:   serviceNameKey,
					Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: service}},
				}},
			},
			ScopeMetrics: []*metricpb.ScopeMetrics{{
				Scope:   &commonpb.InstrumentationScope{Name: "tracekit"},
				Metrics: metrics,
			}},
		}},
	}
}

func toProtoMetric(p metric.Point) *metricpb.Metric {
	m := &metricpb.Metric{
		Name: p.Name,
		Unit: p.Unit,
	}
	ts := uint64(p.Time.UnixNano())
	attrs := attrsToProto(p.Attrs)

	switch p.Kind {
	case metric.KindHistogram:
		sum := p.Sum
		m.Data = &metricpb.Metric_Histogram{Histogram: &metricpb.Histogram{
			AggregationTemporality: metricpb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
			DataPoints: []*metricpb.HistogramDataPoint{{
				Attributes:     attrs,
				TimeUnixNano:   ts,
				Count:          p.Count,
				Sum:            &sum,
				BucketCounts:   p.BucketCounts,
				ExplicitBounds: p.Bounds,
			}},
		}}
	case metric.KindObservableGauge:
		m.Data = &metricpb.Metric_Gauge{Gauge: &metricpb.Gauge{
			DataPoints: []*metricpb.NumberDataPoint{numberPoint(attrs, ts, p.Value)},
		}}
	default:
		m.Data = &metricpb.Metric_Sum{Sum: &metricpb.Sum{
			AggregationTemporality: metricpb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
			IsMonotonic:            p.Kind == metric.KindCounter,
			DataPoints:             []*metricpb.NumberDataPoint{numberPoint(attrs, ts, p.Value)},
		}}
	}
	return m
}

// FromProtoMetrics converts an OTLP metrics export request into points.
func FromProtoMetrics(req *colmetricpb.ExportMetricsServiceRequest) []metric.Point {
	var points []metric.Point
	for _, rm := range req.GetResourceMetrics() {
		for _, sm := range rm.GetScopeMetrics() {
			for _, m := range sm.GetMetrics() {
				points = append(points, fromProtoMetric(m)...)
			}
		}
	}
	return points
}

func fromProtoMetric(m *metricpb.Metric) []metric.Point {
	var points []metric.Point
	switch data := m.GetData().(type) {
	case *metricpb.Metric_Sum:
		kind := metric.KindUpDownCounter
		if data.Sum.GetIsMonotonic() {
			kind = metric.KindCounter
		}
		for _, dp := range data.Sum.GetDataPoints() {
			points = append(points, metric.Point{
				Name:  m.GetName(),
				Kind:  kind,
				Unit:  m.GetUnit(),
				Time:  time.Unix(0, int64(dp.GetTimeUnixNano())),
				Attrs: attrsFromProto(dp.GetAttributes()),
				Value: dp.GetAsDouble(),
			})
		}
	case *metricpb.Metric_Gauge:
		for _, dp := range data.Gauge.GetDataPoints() {
			points = append(points, metric.Point{
				Name:  m.GetName(),
				Kind:  metric.KindObservableGauge,
				Unit:  m.GetUnit(),
				Time:  time.Unix(0, int64(dp.GetTimeUnixNano())),
				Attrs: attrsFromProto(dp.GetAttributes()),
				Value: dp.GetAsDouble(),
			})
		}
	case *metricpb.Metric_Histogram:
		for _, dp := range data.Histogram.GetDataPoints() {
			points = append(points, metric.Point{
				Name:         m.GetName(),
				Kind:         metric.KindHistogram,
				Unit:         m.GetUnit(),
				Time:         time.Unix(0, int64(dp.GetTimeUnixNano())),
				Attrs:        attrsFromProto(dp.GetAttributes()),
				Sum:          dp.GetSum(),
				Count:        dp.GetCount(),
				BucketCounts: dp.GetBucketCounts(),
				Bounds:       dp.GetExplicitBounds(),
			})
		}
	}
	return points
}

func numberPoint(attrs []*commonpb.KeyValue, ts uint64, value float64) *metricpb.NumberDataPoint {
	return &metricpb.NumberDataPoint{
		Attributes:   attrs,
		TimeUnixNano: ts,
		Value:        &metricpb.NumberDataPoint_AsDouble{AsDouble: value},
	}
}

func toProtoKind(k trace.Kind) tracepb.Span_SpanKind {
	switch k {
	case trace.KindServer:
		return tracepb.Span_SPAN_KIND_SERVER
	case trace.KindClient:
		return tracepb.Span_SPAN_KIND_CLIENT
	case trace.KindProducer:
		return tracepb.Span_SPAN_KIND_PRODUCER
	case trace.KindConsumer:
		return tracepb.Span_SPAN_KIND_CONSUMER
	default:
		return tracepb.Span_SPAN_KIND_INTERNAL
	}
}

func fromProtoKind(k tracepb.Span_SpanKind) trace.Kind {
	switch k {
	case tracepb.Span_SPAN_KIND_SERVER:
		return trace.KindServer
	case tracepb.Span_SPAN_KIND_CLIENT:
		return trace.KindClient
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return trace.KindProducer
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return trace.KindConsumer
	default:
		return trace.KindInternal
	}
}

func toProtoStatus(code trace.StatusCode) tracepb.Status_StatusCode {
	switch code {
	case trace.StatusOK:
		return tracepb.Status_STATUS_CODE_OK
	case trace.StatusError:
		return tracepb.Status_STATUS_CODE_ERROR
	default:
		return tracepb.Status_STATUS_CODE_UNSET
	}
}

func fromProtoStatus(code tracepb.Status_StatusCode) trace.StatusCode {
	switch code {
	case tracepb.Status_STATUS_CODE_OK:
		return trace.StatusOK
	case tracepb.Status_STATUS_CODE_ERROR:
		return trace.StatusError
	default:
		return trace.StatusUnset
	}
}

func toProtoAttrs(attrs []trace.Attribute) []*commonpb.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]*commonpb.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, &commonpb.KeyValue{Key: a.Key, Value: anyValue(a.Value)})
	}
	return out
}

func attrsToProto(attrs []metric.Attr) []*commonpb.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]*commonpb.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, &commonpb.KeyValue{
			Key:   a.Key,
			Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: a.Value}},
		})
	}
	return out
}

func attrsFromProto(kvs []*commonpb.KeyValue) []metric.Attr {
	if len(kvs) == 0 {
		return nil
	}
	out := make([]metric.Attr, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, metric.Attr{Key: kv.GetKey(), Value: anyValueString(kv.GetValue())})
	}
	return out
}

func anyValue(v any) *commonpb.AnyValue {
	switch value := v.(type) {
	case string:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}
	case bool:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: value}}
	case int:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(value)}}
	case int64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}}
	case float64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: value}}
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: stringify(v)}}
	}
}

func fromAnyValue(v *commonpb.AnyValue) any {
	switch value := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return value.StringValue
	case *commonpb.AnyValue_BoolValue:
		return value.BoolValue
	case *commonpb.AnyValue_IntValue:
		return value.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return value.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(value.BytesValue)
	default:
		return ""
	}
}

func anyValueString(v *commonpb.AnyValue) string {
	if s, ok := fromAnyValue(v).(string); ok {
		return s
	}
	return stringify(fromAnyValue(v))
}

func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}

func serviceName(res *resourcepb.Resource) string {
	if res == nil {
		return "unknown"
	}
	for _, attr := range res.GetAttributes() {
		if attr.GetKey() == serviceNameKey && attr.GetValue().GetStringValue() != "" {
			return attr.GetValue().GetStringValue()
		}
	}
	return "unknown"
}
