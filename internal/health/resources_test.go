package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceCheckerThresholds(t *testing.T) {
	degraded := ResourceChecker(0, 0)
	cc := degraded.HealthCheck(context.Background())
	require.Equal(t, StatusDegraded, cc.Status)
	require.NotEmpty(t, cc.Message)

	healthy := ResourceChecker(100, 100)
	cc = healthy.HealthCheck(context.Background())
	require.Equal(t, StatusHealthy, cc.Status)
}
