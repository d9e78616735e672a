package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	ObserveHTTPRequest("eastmoney", "200", 10*time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("eastmoney", "200")))
}

func TestObserveCollectorRun(t *testing.T) {
	CollectorRunsTotal.Reset()
	CollectorRecordsCollected.Reset()
	ObserveCollectorRun("quote-realtime", "completed", 42)
	require.Equal(t, float64(1), testutil.ToFloat64(CollectorRunsTotal.WithLabelValues("quote-realtime", "completed")))
	require.Equal(t, float64(42), testutil.ToFloat64(CollectorRecordsCollected.WithLabelValues("quote-realtime")))
}

func TestObservePersistenceSave(t *testing.T) {
	PersistenceBatchSaves.Reset()
	ObservePersistenceSave("stock_quote", "ok", 5*time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(PersistenceBatchSaves.WithLabelValues("stock_quote", "ok")))
}

func TestSetSourceHealthSuccessRate(t *testing.T) {
	SetSourceHealthSuccessRate("eastmoney", 0.95)
	require.Equal(t, 0.95, testutil.ToFloat64(SourceHealthSuccessRate.WithLabelValues("eastmoney")))
}
