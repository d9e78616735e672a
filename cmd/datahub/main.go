// Command datahub runs the data-acquisition daemon: it loads the datacenter
// config, builds the source/mapping/task registries, wires every declared
// collector into a scheduled task, and serves health and metrics endpoints
// until told to stop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openfinance/datahub/internal/config"
	"github.com/openfinance/datahub/internal/health"
	"github.com/openfinance/datahub/internal/logging"
	"github.com/openfinance/datahub/internal/mapping"
	"github.com/openfinance/datahub/internal/metrics"
	"github.com/openfinance/datahub/internal/persistence"
	"github.com/openfinance/datahub/internal/scheduler"
	"github.com/openfinance/datahub/internal/source"
	"github.com/openfinance/datahub/internal/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	logger := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sourceRegistry := buildSourceRegistry(cfg)
	mappingRegistry := mapping.NewRegistry(logger)
	taskRegistry := task.NewRegistry(logger)

	tablesPath := envOr("TABLE_CONFIG_FILE", "configs/tables.yaml")
	tables, err := persistence.LoadTableConfigs(tablesPath)
	if err != nil {
		logger.WithError(err).Fatal("load table configs")
	}

	engine, err := persistence.Open(ctx, cfg.Storage.DatabaseURL, tables, persistence.EngineConfig{
		DefaultBatchSize: cfg.Storage.BatchInsertSize,
		Logger:           logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("open persistence engine")
	}
	defer engine.Close()

	if migrationsDir := envOr("MIGRATIONS_DIR", "migrations"); migrationsDir != "" {
		if _, statErr := os.Stat(migrationsDir); statErr == nil {
			if err := engine.Migrate(migrationsDir); err != nil {
				logger.WithError(err).Fatal("run schema migrations")
			}
		}
	}

	collectorsDir := envOr("COLLECTORS_DIR", "configs/collectors")
	bindings, err := loadCollectorBindings(collectorsDir, cfg, mappingRegistry, engine, taskRegistry, logger)
	if err != nil {
		logger.WithError(err).Fatal("load collector configs")
	}
	for _, b := range bindings {
		if err := b.collector.Start(ctx); err != nil {
			logger.WithError(err).WithField("collector_id", b.collectorID).Fatal("start collector")
		}
		defer b.collector.Stop(ctx)
	}

	sched := scheduler.New(scheduler.Config{
		WorkerCount: cfg.Collection.MaxConcurrent,
		Logger:      logger,
		Run: func(ctx context.Context, taskType string, params map[string]interface{}) error {
			exec, ok := taskRegistry.Get(taskType)
			if !ok {
				return nil
			}
			progress := &task.Progress{TaskType: taskType}
			summary := task.RunPipeline(ctx, exec, params, progress)
			if !summary.Success {
				return &schedulerTaskError{taskType: taskType, message: summary.Error}
			}
			return nil
		},
	})
	for _, b := range bindings {
		if err := sched.Register(b.trigger); err != nil {
			logger.WithError(err).WithField("collector_id", b.collectorID).Fatal("register scheduler trigger")
		}
	}

	healthSvc := health.NewService()
	healthSvc.Register("persistence", health.CheckerFunc(func(ctx context.Context) health.ComponentCheck {
		if err := engine.Ping(ctx); err != nil {
			return health.ComponentCheck{Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return health.ComponentCheck{Status: health.StatusHealthy}
	}))
	healthSvc.Register("source_registry", health.CheckerFunc(func(ctx context.Context) health.ComponentCheck {
		return sourceHealthCheck(sourceRegistry, cfg)
	}))
	healthSvc.Register("resources", health.ResourceChecker(90, 90))

	stopTicker := startSchedulerLoop(ctx, sched, logger)
	defer stopTicker()

	httpServer := startHTTPServer(cfg, healthSvc, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown")
	}
}

// startSchedulerLoop ticks the scheduler once a second until ctx is done,
// returning a stop function for symmetry with the rest of main's
// defer-based teardown.
func startSchedulerLoop(ctx context.Context, sched *scheduler.Scheduler, logger *logging.Logger) func() {
	ticker := time.NewTicker(time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sched.Tick(ctx)
			}
		}
	}()
	return func() {
		ticker.Stop()
		<-done
	}
}

// startHTTPServer serves /health and /metrics on the configured ambient
// port, mirroring the teacher's pattern of a lightweight net/http server
// around a generated mux with no framework dependency for this internal
// surface (the REST/UI gateway itself is out of scope, spec.md section 1).
func startHTTPServer(cfg *config.DatacenterConfig, healthSvc *health.Service, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		result := healthSvc.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !result.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeHealthJSON(w, result)
	})

	addr := envOr("METRICS_ADDR", ":9090")
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", addr).Info("serving health and metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("metrics server error")
		}
	}()
	return server
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type schedulerTaskError struct {
	taskType string
	message  string
}

func (e *schedulerTaskError) Error() string {
	return "task " + e.taskType + " failed: " + e.message
}
