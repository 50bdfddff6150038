package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaggageSetGet(t *testing.T) {
	var b Baggage
	b = b.Set("userId", "42")
	b = b.Set("tenant", "t1")

	v, ok := b.Get("userId")
	require.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok = b.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, b.Len())
}

func TestBaggageSetIsCopyOnWrite(t *testing.T) {
	var base Baggage
	base = base.Set("k", "v")

	derived := base.Set("k2", "v2")

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, derived.Len())
	_, ok := base.Get("k2")
	assert.False(t, ok, "writes on the derived baggage must not leak into the base")
}

func TestBaggageDuplicateKeyKeepsPosition(t *testing.T) {
	var b Baggage
	b = b.Set("a", "1")
	b = b.Set("b", "2")
	b = b.Set("a", "updated")

	var keys []string
	b.Walk(func(key, _ string) bool {
		keys = append(keys, key)
		return true
	})
	assert.Equal(t, []string{"a", "b"}, keys)

	v, _ := b.Get("a")
	assert.Equal(t, "updated", v)
}

func TestBaggageDelete(t *testing.T) {
	var b Baggage
	b = b.Set("a", "1")
	b = b.Set("b", "2")

	after := b.Delete("a")

	assert.Equal(t, 1, after.Len())
	assert.Equal(t, 2, b.Len(), "delete must not mutate the original")
	_, ok := after.Get("a")
	assert.False(t, ok)
}

func TestBaggageContextRoundTrip(t *testing.T) {
	var b Baggage
	b = b.Set("tenant", "t1")

	ctx := ContextWithBaggage(context.Background(), b)
	got := BaggageFromContext(ctx)

	assert.True(t, got.Equal(b))
	assert.Equal(t, 0, BaggageFromContext(context.Background()).Len())
}

func TestBaggageWalkStopsEarly(t *testing.T) {
	var b Baggage
	b = b.Set("a", "1")
	b = b.Set("b", "2")
	b = b.Set("c", "3")

	var visited int
	b.Walk(func(_, _ string) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}
