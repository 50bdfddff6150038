package trace

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Header names used on every HTTP and gRPC hop.
const (
	TraceparentHeader = "traceparent"
	BaggageHeader     = "baggage"
)

const (
	codecVersion = "00"
	flagSampled  = 0x01
)

// ErrMalformedHeader is returned when a traceparent header cannot be decoded.
// Callers treat the request as a new trace root; they never fail the request.
var ErrMalformedHeader = errors.New("malformed traceparent header")

// Encode renders a span context as a traceparent header value:
// version-traceid-spanid-flags, all lowercase hex.
func Encode(sc SpanContext) string {
	flags := byte(0)
	if sc.Sampled {
		flags = flagSampled
	}
	return fmt.Sprintf("%s-%s-%s-%02x", codecVersion, sc.TraceID, sc.SpanID, flags)
}

// Decode parses a traceparent header value. It fails with ErrMalformedHeader
// on wrong shape, bad hex, an unsupported version, or zero ids.
func Decode(header string) (SpanContext, error) {
	parts := strings.Split(header, "-")
	if len(parts) != 4 {
		return SpanContext{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedHeader, len(parts))
	}
	if parts[0] != codecVersion {
		return SpanContext{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedHeader, parts[0])
	}
	if len(parts[1]) != 32 || len(parts[2]) != 16 || len(parts[3]) != 2 {
		return SpanContext{}, fmt.Errorf("%w: bad field width", ErrMalformedHeader)
	}

	var sc SpanContext
	if _, err := hex.Decode(sc.TraceID[:], []byte(parts[1])); err != nil {
		return SpanContext{}, fmt.Errorf("%w: trace id: %v", ErrMalformedHeader, err)
	}
	if _, err := hex.Decode(sc.SpanID[:], []byte(parts[2])); err != nil {
		return SpanContext{}, fmt.Errorf("%w: span id: %v", ErrMalformedHeader, err)
	}
	var flags [1]byte
	if _, err := hex.Decode(flags[:], []byte(parts[3])); err != nil {
		return SpanContext{}, fmt.Errorf("%w: flags: %v", ErrMalformedHeader, err)
	}
	if !sc.IsValid() {
		return SpanContext{}, fmt.Errorf("%w: zero trace or span id", ErrMalformedHeader)
	}
	sc.Sampled = flags[0]&flagSampled != 0
	return sc, nil
}

// EncodeBaggage renders baggage as comma-joined key=value pairs in insertion
// order, values percent-encoded. When the encoded form exceeds
// MaxBaggageBytes the oldest entries are dropped silently until it fits.
func EncodeBaggage(b Baggage) string {
	pairs := make([]string, 0, b.Len())
	b.Walk(func(key, value string) bool {
		pairs = append(pairs, key+"="+url.QueryEscape(value))
		return true
	})
	for len(pairs) > 0 {
		encoded := strings.Join(pairs, ",")
		if len(encoded) <= MaxBaggageBytes {
			return encoded
		}
		pairs = pairs[1:]
	}
	return ""
}

// DecodeBaggage parses a baggage header. Malformed entries are skipped, never
// fatal; duplicate keys keep the last occurrence in the string.
func DecodeBaggage(header string) Baggage {
	var b Baggage
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, rawValue, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}
		b = b.Set(strings.TrimSpace(key), value)
	}
	return b
}

// Inject writes the current span context and baggage from ctx into HTTP
// headers for an outbound call. It is a no-op when ctx carries no valid span.
func Inject(ctx context.Context, header http.Header) {
	if span := SpanFromContext(ctx); span.Context().IsValid() {
		header.Set(TraceparentHeader, Encode(span.Context()))
	}
	if b := BaggageFromContext(ctx); b.Len() > 0 {
		if encoded := EncodeBaggage(b); encoded != "" {
			header.Set(BaggageHeader, encoded)
		}
	}
}

// Extract reads propagation headers from an inbound request. A missing or
// malformed traceparent yields an invalid SpanContext: the caller starts a
// new root. Baggage decoding is always best-effort.
func Extract(header http.Header) (SpanContext, Baggage) {
	var sc SpanContext
	if raw := header.Get(TraceparentHeader); raw != "" {
		if decoded, err := Decode(raw); err == nil {
			sc = decoded
		}
	}
	return sc, DecodeBaggage(header.Get(BaggageHeader))
}
