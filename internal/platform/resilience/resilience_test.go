package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterBasic(t *testing.T) {
	rl := NewRateLimiter(5, 5, time.Second, 10)
	for i := 0; i < 5; i++ {
		require.True(t, rl.Allow(), "expected allow %d", i)
	}
	require.False(t, rl.Allow(), "expected deny after capacity")

	time.Sleep(1100 * time.Millisecond)
	require.True(t, rl.Allow(), "expected allow after refill")
}

func TestCircuitBreakerAdaptive(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(2*time.Second, 4, 4, 0.5, 500*time.Millisecond, 2)
	for i := 0; i < 4; i++ {
		require.True(t, cb.Allow(), "should allow while closed")
		cb.RecordResult(false)
	}
	require.False(t, cb.Allow(), "should be open and deny")

	time.Sleep(600 * time.Millisecond)
	require.True(t, cb.Allow(), "half-open probe should allow")
	cb.RecordResult(true)
	require.True(t, cb.Allow(), "second probe should allow")
	cb.RecordResult(true)
	require.True(t, cb.Allow(), "breaker should be closed after successful probes")
}
