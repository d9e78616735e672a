package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfinance/datahub/internal/collector"
	"github.com/openfinance/datahub/internal/scheduler"
	"github.com/openfinance/datahub/internal/task"
)

func TestTableForPrefersMetadataOverDataType(t *testing.T) {
	cc := collector.CollectorConfig{DataType: "stock_quote"}
	if got := tableFor(cc); got != "stock_quote" {
		t.Fatalf("expected fallback to data type, got %q", got)
	}

	cc.Metadata = map[string]interface{}{"target_table": "custom_table"}
	if got := tableFor(cc); got != "custom_table" {
		t.Fatalf("expected metadata override, got %q", got)
	}
}

func TestCategoryForDefaultsToMarket(t *testing.T) {
	cc := collector.CollectorConfig{}
	if got := categoryFor(cc); got != task.CategoryMarket {
		t.Fatalf("expected default category market, got %q", got)
	}

	cc.Metadata = map[string]interface{}{"category": "macro"}
	if got := categoryFor(cc); got != task.CategoryMacro {
		t.Fatalf("expected macro, got %q", got)
	}
}

func TestPriorityForMapsKnownValues(t *testing.T) {
	cases := map[string]task.Priority{
		"critical":   task.PriorityCritical,
		"high":       task.PriorityHigh,
		"low":        task.PriorityLow,
		"background": task.PriorityBackground,
		"bogus":      task.PriorityNormal,
		"":           task.PriorityNormal,
	}
	for raw, want := range cases {
		cc := collector.CollectorConfig{Metadata: map[string]interface{}{"priority": raw}}
		if got := priorityFor(cc); got != want {
			t.Fatalf("priority %q: expected %v, got %v", raw, want, got)
		}
	}
}

func TestMaxRetriesForHandlesYAMLNumberTypes(t *testing.T) {
	cc := collector.CollectorConfig{Metadata: map[string]interface{}{"max_retries": float64(5)}}
	if got := maxRetriesFor(cc); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}

	cc = collector.CollectorConfig{}
	if got := maxRetriesFor(cc); got != 3 {
		t.Fatalf("expected default 3, got %d", got)
	}
}

func TestRetryStrategyForDefaultsToImmediate(t *testing.T) {
	cc := collector.CollectorConfig{}
	if got := retryStrategyFor(cc); got != scheduler.RetryImmediate {
		t.Fatalf("expected immediate, got %v", got)
	}

	cc.Metadata = map[string]interface{}{"retry_strategy": "exponential"}
	if got := retryStrategyFor(cc); got != scheduler.RetryExponential {
		t.Fatalf("expected exponential, got %v", got)
	}
}

func TestTriggerForPrecedence(t *testing.T) {
	cc := collector.CollectorConfig{CollectorID: "c1"}
	cc.Metadata = map[string]interface{}{"schedule_interval_seconds": float64(45)}
	trig, err := triggerFor(cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trig.Kind != scheduler.TriggerInterval || trig.Interval != 45*time.Second {
		t.Fatalf("expected 45s interval trigger, got %+v", trig)
	}

	cc.Metadata["schedule_daily_time"] = "09:30"
	trig, err = triggerFor(cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trig.Kind != scheduler.TriggerDailyTime || trig.DailyTime != "09:30" {
		t.Fatalf("expected daily-time trigger, got %+v", trig)
	}

	cc.Metadata["schedule_cron"] = "*/5 * * * *"
	trig, err = triggerFor(cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trig.Kind != scheduler.TriggerCron || trig.CronExpr != "*/5 * * * *" {
		t.Fatalf("expected cron trigger, got %+v", trig)
	}

	cc.Metadata["depends_on"] = "upstream_task"
	trig, err = triggerFor(cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trig.Kind != scheduler.TriggerDependency || trig.DependsOnTask != "upstream_task" {
		t.Fatalf("expected dependency trigger, got %+v", trig)
	}
}

func TestTriggerForDefaultIntervalWhenMetadataEmpty(t *testing.T) {
	trig, err := triggerFor(collector.CollectorConfig{CollectorID: "c2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trig.Kind != scheduler.TriggerInterval || trig.Interval != 300*time.Second {
		t.Fatalf("expected default 300s interval, got %+v", trig)
	}
}

func TestCollectorConfigPathsFiltersNonYAML(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt", "c.YAML"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}

	paths, err := collectorConfigPaths(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 yaml/yml paths, got %d: %v", len(paths), paths)
	}
}

func TestCollectorConfigPathsMissingDirReturnsNil(t *testing.T) {
	paths, err := collectorConfigPaths(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paths != nil {
		t.Fatalf("expected nil paths for missing dir, got %v", paths)
	}
}
