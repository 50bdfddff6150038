package trace

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sc := SpanContext{
		TraceID: TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:  SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		Sampled: true,
	}

	header := Encode(sc)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header)

	decoded, err := Decode(header)
	require.NoError(t, err)
	assert.Equal(t, sc, decoded)
}

func TestEncodeNotSampled(t *testing.T) {
	sc := SpanContext{TraceID: TraceID{1}, SpanID: SpanID{2}}

	header := Encode(sc)
	assert.True(t, strings.HasSuffix(header, "-00"))

	decoded, err := Decode(header)
	require.NoError(t, err)
	assert.False(t, decoded.Sampled)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"too few fields", "00-4bf92f3577b34da6a3ce929d0e0e4736-01"},
		{"too many fields", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01-extra"},
		{"unsupported version", "01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		{"short trace id", "00-4bf92f3577b34da6-00f067aa0ba902b7-01"},
		{"short span id", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa-01"},
		{"non-hex trace id", "00-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz-00f067aa0ba902b7-01"},
		{"non-hex flags", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-zz"},
		{"zero trace id", "00-00000000000000000000000000000000-00f067aa0ba902b7-01"},
		{"zero span id", "00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.header)
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestDecodeBaggage(t *testing.T) {
	b := DecodeBaggage("userId=42,tenant=t1")

	userID, ok := b.Get("userId")
	require.True(t, ok)
	assert.Equal(t, "42", userID)

	tenant, ok := b.Get("tenant")
	require.True(t, ok)
	assert.Equal(t, "t1", tenant)
	assert.Equal(t, 2, b.Len())
}

func TestDecodeBaggageSkipsMalformedEntries(t *testing.T) {
	b := DecodeBaggage("good=1,no-equals-sign,=nokey,bad=%zz,last=2")

	assert.Equal(t, 2, b.Len())
	v, ok := b.Get("good")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	v, ok = b.Get("last")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestDecodeBaggageLastOccurrenceWins(t *testing.T) {
	b := DecodeBaggage("k=first,k=second")

	v, ok := b.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, b.Len())
}

func TestEncodeBaggageEscapesValues(t *testing.T) {
	var b Baggage
	b = b.Set("note", "a,b=c d")

	encoded := EncodeBaggage(b)
	assert.NotContains(t, encoded[len("note="):], ",")

	decoded := DecodeBaggage(encoded)
	v, ok := decoded.Get("note")
	require.True(t, ok)
	assert.Equal(t, "a,b=c d", v)
}

func TestEncodeBaggageDropsOldestOverCap(t *testing.T) {
	var b Baggage
	big := strings.Repeat("x", 3000)
	b = b.Set("first", big)
	b = b.Set("second", big)
	b = b.Set("third", big)

	encoded := EncodeBaggage(b)
	assert.LessOrEqual(t, len(encoded), MaxBaggageBytes)

	decoded := DecodeBaggage(encoded)
	_, ok := decoded.Get("first")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = decoded.Get("third")
	assert.True(t, ok, "newest entry should survive")
}

func TestInjectExtractRoundTrip(t *testing.T) {
	tracer := New("svc", nil, nil)
	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()

	var b Baggage
	b = b.Set("tenant", "t1")
	ctx = ContextWithBaggage(ctx, b)

	header := http.Header{}
	Inject(ctx, header)

	require.NotEmpty(t, header.Get(TraceparentHeader))
	require.NotEmpty(t, header.Get(BaggageHeader))

	sc, bag := Extract(header)
	assert.Equal(t, span.Context(), sc)
	v, ok := bag.Get("tenant")
	require.True(t, ok)
	assert.Equal(t, "t1", v)
}

func TestExtractWithoutHeaders(t *testing.T) {
	sc, bag := Extract(http.Header{})

	assert.False(t, sc.IsValid())
	assert.Equal(t, 0, bag.Len())
}

func TestExtractMalformedTraceparent(t *testing.T) {
	header := http.Header{}
	header.Set(TraceparentHeader, "garbage")
	header.Set(BaggageHeader, "k=v")

	sc, bag := Extract(header)
	assert.False(t, sc.IsValid(), "malformed traceparent must not produce a usable context")

	v, ok := bag.Get("k")
	require.True(t, ok, "baggage decoding is independent of traceparent validity")
	assert.Equal(t, "v", v)
}

func TestInjectWithoutSpanSetsNoTraceparent(t *testing.T) {
	header := http.Header{}
	Inject(context.Background(), header)

	assert.Empty(t, header.Get(TraceparentHeader))
	assert.Empty(t, header.Get(BaggageHeader))
}
