package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesCategoryDefaults(t *testing.T) {
	err := New(CategoryValidation, "missing field")
	require.Equal(t, SeverityLow, err.Severity)
	require.True(t, err.Recoverable)

	err = New(CategoryConfiguration, "bad yaml")
	require.Equal(t, SeverityHigh, err.Severity)
	require.False(t, err.Recoverable)
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CategoryNetwork, "fetch failed", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "boom")
}

func TestAsAndIsRecoverable(t *testing.T) {
	err := Validation("oops")
	require.True(t, IsDataError(err))
	require.True(t, IsRecoverable(err))

	cfgErr := Configuration("missing source")
	require.False(t, IsRecoverable(cfgErr))

	require.True(t, IsRecoverable(errors.New("plain error")))
	require.Nil(t, As(errors.New("plain")))
}

func TestWithDetails(t *testing.T) {
	err := New(CategoryStorage, "insert failed").WithDetails("table", "quotes")
	require.Equal(t, "quotes", err.Details["table"])
}

func TestRecorderTracksAndAlerts(t *testing.T) {
	rec := NewRecorder()
	var alerted []ErrorContext
	rec.RegisterAlertHandler(func(ctx ErrorContext) {
		alerted = append(alerted, ctx)
	})

	err := rec.Track("collector", "collect", func() error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.Len())
	require.Empty(t, alerted)

	_ = rec.Track("persistence", "save", func() error {
		return Storage("insert failed", errors.New("deadlock"))
	})
	require.Equal(t, 2, rec.Len())
	require.Len(t, alerted, 1)
	require.Equal(t, "persistence", alerted[0].Component)

	_ = rec.Track("mapping", "apply", func() error {
		return Validation("missing field")
	})
	require.Len(t, alerted, 1, "low severity must not alert")
}

func TestRecorderRecentOrderAndBound(t *testing.T) {
	rec := NewRecorder()
	for i := 0; i < 5; i++ {
		_ = rec.Track("c", "op", func() error { return nil })
	}
	recent := rec.Recent(3)
	require.Len(t, recent, 3)

	rec2 := NewRecorder()
	for i := 0; i < ringCapacity+10; i++ {
		_ = rec2.Track("c", "op", func() error { return nil })
	}
	require.Equal(t, ringCapacity, rec2.Len())
}

func TestTrackDuration(t *testing.T) {
	rec := NewRecorder()
	_ = rec.Track("c", "op", func() error {
		time.Sleep(time.Millisecond)
		return nil
	})
	recent := rec.Recent(1)
	require.Len(t, recent, 1)
	require.Greater(t, recent[0].Duration, time.Duration(0))
}
