package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		cfg           BreakerConfig
		outcomes      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			cfg:           BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute},
			outcomes:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			cfg:           BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute},
			outcomes:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the failure count",
			cfg:           BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute},
			outcomes:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := NewBreaker(tt.cfg)

			for _, success := range tt.outcomes {
				if !breaker.Allow() {
					continue
				}
				if success {
					breaker.Success()
				} else {
					breaker.Failure()
				}
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerBlocksWhileOpen(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	require.True(t, breaker.Allow())
	breaker.Failure()

	assert.Equal(t, StateOpen, breaker.State())
	assert.False(t, breaker.Allow())
	assert.False(t, breaker.Allow())
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	require.True(t, breaker.Allow())
	breaker.Failure()
	require.False(t, breaker.Allow())

	time.Sleep(20 * time.Millisecond)

	// Cooldown elapsed: exactly one probe is admitted.
	assert.True(t, breaker.Allow())
	assert.False(t, breaker.Allow())

	breaker.Success()
	assert.Equal(t, StateClosed, breaker.State())
	assert.True(t, breaker.Allow())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	require.True(t, breaker.Allow())
	breaker.Failure()

	time.Sleep(20 * time.Millisecond)
	require.True(t, breaker.Allow())
	breaker.Failure()

	assert.Equal(t, StateOpen, breaker.State())
	assert.False(t, breaker.Allow())
}

func TestBreakerNotifiesTransitions(t *testing.T) {
	var transitions []State
	breaker := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		OnStateChange:    func(_, to State) { transitions = append(transitions, to) },
	})

	require.True(t, breaker.Allow())
	breaker.Failure()

	time.Sleep(20 * time.Millisecond)
	require.True(t, breaker.Allow())
	breaker.Success()

	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
}
