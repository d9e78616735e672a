package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayForIsMonotonicallyNonDecreasing(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, ExponentialBase: 2}
	var prev time.Duration
	for i := 0; i < 10; i++ {
		d := p.delayFor(i)
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
}

func TestDelayForCapsAtMaxDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 3 * time.Second, ExponentialBase: 2}
	require.Equal(t, 3*time.Second, p.delayFor(10))
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		require.True(t, isRetryableStatus(code), code)
	}
	require.False(t, isRetryableStatus(200))
	require.False(t, isRetryableStatus(404))
}
