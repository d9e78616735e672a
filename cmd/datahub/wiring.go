package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openfinance/datahub/internal/collector"
	"github.com/openfinance/datahub/internal/config"
	"github.com/openfinance/datahub/internal/health"
	"github.com/openfinance/datahub/internal/httpclient"
	"github.com/openfinance/datahub/internal/logging"
	"github.com/openfinance/datahub/internal/mapping"
	"github.com/openfinance/datahub/internal/persistence"
	"github.com/openfinance/datahub/internal/scheduler"
	"github.com/openfinance/datahub/internal/source"
	"github.com/openfinance/datahub/internal/task"
)

// collectorBinding ties one loaded collector config to the Base collector
// it produced and the scheduler trigger driving it.
type collectorBinding struct {
	collectorID string
	collector   *collector.Base
	trigger     *scheduler.Trigger
}

// loadCollectorBindings reads every *.yaml collector config under dir,
// builds one httpclient.Client per collector (clients are never shared
// between collectors; collectors of the same source get separate clients
// built from that source's rate-limit/retry settings), registers each as a
// scheduled task, and returns the resulting bindings.
func loadCollectorBindings(
	dir string,
	cfg *config.DatacenterConfig,
	mappingRegistry *mapping.Registry,
	engine *persistence.Engine,
	taskRegistry *task.Registry,
	logger *logging.Logger,
) ([]collectorBinding, error) {
	paths, err := collectorConfigPaths(dir)
	if err != nil {
		return nil, err
	}

	var bindings []collectorBinding

	for _, path := range paths {
		cc, err := collector.LoadCollectorConfig(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}

		client := buildHTTPClient(cc.Source, cfg, logger)
		if err := client.Start(); err != nil {
			return nil, fmt.Errorf("start http client for collector %s: %w", cc.CollectorID, err)
		}

		sourceAPIKey := cfg.Sources[cc.Source].APIKey
		base := collector.NewConfigCollector(cc, client, sourceAPIKey, mappingRegistry, logger)

		meta := taskMetadataFor(cc)
		ct := task.NewCollectorTask(meta, base, engine, tableFor(cc))
		taskRegistry.Register(ct)

		trigger, err := triggerFor(cc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cc.CollectorID, err)
		}

		bindings = append(bindings, collectorBinding{collectorID: cc.CollectorID, collector: base, trigger: trigger})
	}

	return bindings, nil
}

func collectorConfigPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read collectors dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

func buildHTTPClient(sourceID string, cfg *config.DatacenterConfig, logger *logging.Logger) *httpclient.Client {
	settings := cfg.Sources[sourceID]
	rps := settings.RateLimit
	if rps <= 0 {
		rps = 5
	}
	timeout := time.Duration(settings.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := httpclient.DefaultRetryPolicy()
	if settings.RetryCount > 0 {
		retry.MaxRetries = settings.RetryCount
	}
	return httpclient.New(httpclient.Config{
		Source:    sourceID,
		Timeout:   timeout,
		Retry:     retry,
		RateLimit: httpclient.RateLimitPolicy{RequestsPerSecond: rps, Burst: int(rps)},
		Logger:    logger,
	})
}

func tableFor(cc collector.CollectorConfig) string {
	if v, ok := cc.Metadata["target_table"].(string); ok && v != "" {
		return v
	}
	return cc.DataType
}

func taskMetadataFor(cc collector.CollectorConfig) task.Metadata {
	return task.Metadata{
		TaskType:    cc.CollectorID,
		Name:        cc.Name,
		Category:    categoryFor(cc),
		Priority:    priorityFor(cc),
		Source:      cc.Source,
		Timeout:     300 * time.Second,
		RetryCount:  maxRetriesFor(cc),
		Output: task.OutputDescriptor{
			TargetTable: tableFor(cc),
		},
	}
}

func categoryFor(cc collector.CollectorConfig) task.Category {
	if v, ok := cc.Metadata["category"].(string); ok && v != "" {
		return task.Category(v)
	}
	return task.CategoryMarket
}

func priorityFor(cc collector.CollectorConfig) task.Priority {
	switch v, _ := cc.Metadata["priority"].(string); v {
	case "critical":
		return task.PriorityCritical
	case "high":
		return task.PriorityHigh
	case "low":
		return task.PriorityLow
	case "background":
		return task.PriorityBackground
	default:
		return task.PriorityNormal
	}
}

func maxRetriesFor(cc collector.CollectorConfig) int {
	switch v := cc.Metadata["max_retries"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 3
	}
}

func retryStrategyFor(cc collector.CollectorConfig) scheduler.RetryStrategy {
	switch v, _ := cc.Metadata["retry_strategy"].(string); v {
	case "linear":
		return scheduler.RetryLinear
	case "exponential":
		return scheduler.RetryExponential
	default:
		return scheduler.RetryImmediate
	}
}

// triggerFor derives a scheduler.Trigger from the collector config's
// metadata block: schedule_cron, schedule_daily_time, schedule_interval_seconds,
// and depends_on are all optional; an interval of 300s is the default when
// none is set.
func triggerFor(cc collector.CollectorConfig) (*scheduler.Trigger, error) {
	trig := &scheduler.Trigger{
		TaskID:        cc.CollectorID,
		MaxRetries:    maxRetriesFor(cc),
		RetryStrategy: retryStrategyFor(cc),
	}

	switch {
	case cc.Metadata["depends_on"] != nil:
		trig.Kind = scheduler.TriggerDependency
		trig.DependsOnTask = fmt.Sprint(cc.Metadata["depends_on"])
	case cc.Metadata["schedule_cron"] != nil:
		trig.Kind = scheduler.TriggerCron
		trig.CronExpr = fmt.Sprint(cc.Metadata["schedule_cron"])
	case cc.Metadata["schedule_daily_time"] != nil:
		trig.Kind = scheduler.TriggerDailyTime
		trig.DailyTime = fmt.Sprint(cc.Metadata["schedule_daily_time"])
	default:
		trig.Kind = scheduler.TriggerInterval
		trig.Interval = 300 * time.Second
		if v, ok := cc.Metadata["schedule_interval_seconds"]; ok {
			switch n := v.(type) {
			case int:
				trig.Interval = time.Duration(n) * time.Second
			case float64:
				trig.Interval = time.Duration(n) * time.Second
			}
		}
	}
	return trig, nil
}

// buildSourceRegistry registers every enabled source (disabled ones are
// skipped) with capabilities
// derived from its settings; collectors extend the picture at runtime via
// success/failure reporting rather than static capability declarations, so
// this registration is deliberately minimal (rate limit and auth only).
func buildSourceRegistry(cfg *config.DatacenterConfig) *source.Registry {
	reg := source.NewRegistry()
	for id, settings := range cfg.Sources {
		if !settings.Enabled {
			continue
		}
		reg.Register(id, settings, source.Capabilities{
			RateLimit:    settings.RateLimit,
			RequiresAuth: settings.APIKey != "",
		})
	}
	return reg
}

// sourceHealthCheck folds every enabled source's rolling health into one
// component check for the aggregator: unhealthy if any source is
// unavailable, degraded if any is degraded, healthy otherwise.
func sourceHealthCheck(reg *source.Registry, cfg *config.DatacenterConfig) health.ComponentCheck {
	status := health.StatusHealthy
	for id, settings := range cfg.Sources {
		if !settings.Enabled {
			continue
		}
		h, ok := reg.Health(id)
		if !ok {
			continue
		}
		switch h.Snapshot().Status {
		case source.StatusUnavailable:
			return health.ComponentCheck{Status: health.StatusUnhealthy, Message: fmt.Sprintf("source %s unavailable", id)}
		case source.StatusDegraded:
			status = health.StatusDegraded
		}
	}
	return health.ComponentCheck{Status: status}
}

func writeHealthJSON(w http.ResponseWriter, result health.Check) {
	_ = json.NewEncoder(w).Encode(result)
}
