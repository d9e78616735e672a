package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsInvalidCron(t *testing.T) {
	s := New(Config{Run: func(ctx context.Context, taskID string, params map[string]interface{}) error { return nil }})
	err := s.Register(&Trigger{TaskID: "t1", Kind: TriggerCron, CronExpr: "not a cron"})
	require.Error(t, err)
}

func TestRegisterIntervalComputesNextRun(t *testing.T) {
	s := New(Config{Run: func(ctx context.Context, taskID string, params map[string]interface{}) error { return nil }})
	err := s.Register(&Trigger{TaskID: "t1", Kind: TriggerInterval, Interval: time.Minute})
	require.NoError(t, err)
	require.False(t, s.triggers["t1"].nextRun.IsZero())
}

func TestTickFiresDueIntervalTrigger(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{}, 1)
	s := New(Config{
		WorkerCount: 2,
		Run: func(ctx context.Context, taskID string, params map[string]interface{}) error {
			calls.Add(1)
			done <- struct{}{}
			return nil
		},
	})
	require.NoError(t, s.Register(&Trigger{TaskID: "t1", Kind: TriggerInterval, Interval: time.Hour}))
	s.mu.Lock()
	s.triggers["t1"].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	s.Tick(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("trigger did not fire")
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestTickSkipsTaskAlreadyInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls atomic.Int32
	s := New(Config{
		WorkerCount: 4,
		Run: func(ctx context.Context, taskID string, params map[string]interface{}) error {
			calls.Add(1)
			started <- struct{}{}
			<-release
			return nil
		},
	})
	require.NoError(t, s.Register(&Trigger{TaskID: "t1", Kind: TriggerInterval, Interval: time.Hour}))
	s.mu.Lock()
	s.triggers["t1"].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	s.Tick(context.Background())
	<-started

	// Trigger's nextRun was already reset on dispatch; manually force it due
	// again to simulate a second tick landing while the first run is still
	// in flight.
	s.mu.Lock()
	s.triggers["t1"].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()
	s.Tick(context.Background())

	close(release)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestDependencyTriggerFiresAfterUpstreamCompletes(t *testing.T) {
	done := make(chan struct{}, 1)
	s := New(Config{
		Run: func(ctx context.Context, taskID string, params map[string]interface{}) error {
			done <- struct{}{}
			return nil
		},
	})
	require.NoError(t, s.Register(&Trigger{TaskID: "downstream", Kind: TriggerDependency, DependsOnTask: "upstream"}))

	s.Tick(context.Background())
	select {
	case <-done:
		t.Fatal("downstream fired before upstream completed")
	case <-time.After(20 * time.Millisecond):
	}

	s.MarkCompleted("upstream")
	s.Tick(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("downstream did not fire after upstream completed")
	}
}

func TestRunWithRetryRetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	s := New(Config{
		Run: func(ctx context.Context, taskID string, params map[string]interface{}) error {
			if attempts.Add(1) < 3 {
				return fmt.Errorf("transient")
			}
			return nil
		},
	})
	trig := &Trigger{TaskID: "t1", MaxRetries: 5, RetryStrategy: RetryImmediate}
	err := s.runWithRetry(context.Background(), trig)
	require.NoError(t, err)
	require.Equal(t, int32(3), attempts.Load())
}

func TestRetryDelayStrategies(t *testing.T) {
	require.Equal(t, time.Duration(0), retryDelay(RetryImmediate, 2))
	require.Equal(t, 2*time.Second, retryDelay(RetryLinear, 2))
	require.Equal(t, 4*time.Second, retryDelay(RetryExponential, 2))
}

func TestDailyTimeToCron(t *testing.T) {
	expr, err := dailyTimeToCron("09:30")
	require.NoError(t, err)
	require.Equal(t, "30 9 * * *", expr)

	_, err = dailyTimeToCron("not-a-time")
	require.Error(t, err)
}
