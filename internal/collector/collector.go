// Package collector implements the collector capability interface and the
// shared lifecycle/retry/dedup/validate helper every concrete collector
// wraps (spec.md section 4.6).
package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfinance/datahub/internal/logging"
	"github.com/openfinance/datahub/internal/metrics"
)

// Status mirrors CollectionResult's lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Collectable is the capability interface every concrete collector
// implements: start, stop, health check, collect.
type Collectable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck() HealthCheck
	Collect(ctx context.Context, params map[string]interface{}) (Result, error)
}

// HealthCheck reports a collector's operating status.
type HealthCheck struct {
	Source             string
	IsRunning          bool
	LastCollectionTime time.Time
	CollectionCount    int64
	ErrorCount         int64
	ErrorRate          float64
}

// Result is one collect() run's outcome.
type Result struct {
	TaskID              string
	Source              string
	Status              Status
	RecordsCollected     int
	RecordsValid         int
	RecordsDeduplicated int
	Error                string
	StartedAt            time.Time
	CompletedAt          time.Time
	Records              []map[string]interface{}
}

// Fetcher retrieves raw records for one collect() call. Concrete collectors
// supply a Fetcher; Base handles lifecycle, retry, dedup, and validation
// around it, generalizing the teacher's pricefeed.Fetcher/FetcherFunc
// adapter-function idiom to arbitrary record-producing calls.
type Fetcher func(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error)

// FetcherFunc adapts a plain function to Fetcher. Defined for parity with
// the teacher's naming; Fetcher is already a function type so this is an
// identity alias used at call sites that want the explicit name.
type FetcherFunc = Fetcher

// HashFunc computes a dedup hash from one record.
type HashFunc func(rec map[string]interface{}) string

// ValidFunc reports whether a record passes validation.
type ValidFunc func(rec map[string]interface{}) bool

// InitCleanupFunc runs at collector start/stop.
type InitCleanupFunc func(ctx context.Context) error

// Config configures a Base collector instance.
type Config struct {
	Source        string
	RetryCount    int
	RetryDelay    time.Duration
	DedupEnabled  bool
	ValidEnabled  bool
	RequiredFields []string
	Fetch         Fetcher
	Hash          HashFunc
	Valid         ValidFunc
	Initialize    InitCleanupFunc
	Cleanup       InitCleanupFunc
	Logger        *logging.Logger
}

// Base implements Collectable purely in terms of the Fetcher/Hash/Valid
// functions supplied in Config. A config-driven collector (configcollector.go)
// is one concrete Fetcher implementation; hand-written collectors supply
// their own.
type Base struct {
	cfg Config
	log *logging.Logger

	mu      sync.Mutex // single-writer serialization across Collect calls
	running atomic.Bool

	lastCollection atomic.Value // time.Time
	collectionCount atomic.Int64
	errorCount      atomic.Int64
}

// New constructs a Base collector.
func New(cfg Config) *Base {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault("collector." + cfg.Source)
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	return &Base{cfg: cfg, log: logger}
}

// Start marks the collector running and runs the Initialize hook.
func (b *Base) Start(ctx context.Context) error {
	if b.cfg.Initialize != nil {
		if err := b.cfg.Initialize(ctx); err != nil {
			return fmt.Errorf("collector %s: initialize: %w", b.cfg.Source, err)
		}
	}
	b.running.Store(true)
	return nil
}

// Stop clears the running flag and runs the Cleanup hook.
func (b *Base) Stop(ctx context.Context) error {
	b.running.Store(false)
	if b.cfg.Cleanup != nil {
		return b.cfg.Cleanup(ctx)
	}
	return nil
}

// HealthCheck reports the collector's current operating status.
func (b *Base) HealthCheck() HealthCheck {
	collected := b.collectionCount.Load()
	errored := b.errorCount.Load()
	var errRate float64
	total := collected + errored
	if total > 0 {
		errRate = float64(errored) / float64(total)
	}
	var last time.Time
	if v := b.lastCollection.Load(); v != nil {
		last = v.(time.Time)
	}
	return HealthCheck{
		Source:             b.cfg.Source,
		IsRunning:          b.running.Load(),
		LastCollectionTime: last,
		CollectionCount:    collected,
		ErrorCount:         errored,
		ErrorRate:          errRate,
	}
}

// Collect runs one serialized collection cycle: fetch-with-retry, optional
// dedup, optional validation, per spec.md section 4.6.
func (b *Base) Collect(ctx context.Context, params map[string]interface{}) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	started := time.Now()
	taskID := fmt.Sprintf("%s_%s", b.cfg.Source, started.Format("20060102150405"))
	result := Result{TaskID: taskID, Source: b.cfg.Source, Status: StatusRunning, StartedAt: started}

	records, err := b.collectWithRetry(ctx, params)
	if err != nil {
		b.errorCount.Add(1)
		result.Status = StatusFailed
		result.Error = err.Error()
		result.CompletedAt = time.Now()
		metrics.ObserveCollectorRun(b.cfg.Source, string(StatusFailed), 0)
		return result, err
	}
	result.RecordsCollected = len(records)

	if b.cfg.DedupEnabled && b.cfg.Hash != nil {
		before := len(records)
		records = Deduplicate(records, b.cfg.Hash)
		result.RecordsDeduplicated = before - len(records)
	}

	if b.cfg.ValidEnabled && b.cfg.Valid != nil {
		records = Validate(records, b.cfg.Valid)
	}
	result.RecordsValid = len(records)
	result.Records = records

	b.collectionCount.Add(1)
	b.lastCollection.Store(time.Now())

	result.Status = StatusCompleted
	result.CompletedAt = time.Now()
	metrics.ObserveCollectorRun(b.cfg.Source, string(StatusCompleted), len(records))
	return result, nil
}

// collectWithRetry calls Fetch up to RetryCount times, sleeping
// RetryDelay*2^attempt between attempts and swallowing each failure until
// the last, which is returned.
func (b *Base) collectWithRetry(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	if b.cfg.Fetch == nil {
		return nil, fmt.Errorf("collector %s: no fetcher configured", b.cfg.Source)
	}

	var lastErr error
	for attempt := 0; attempt < b.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(b.cfg.RetryDelay) * pow2(attempt))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		records, err := b.cfg.Fetch(ctx, params)
		if err == nil {
			return records, nil
		}
		lastErr = err
		b.log.WithError(err).WithField("attempt", attempt+1).Warn("collect attempt failed")
	}
	return nil, lastErr
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// Deduplicate drops later records sharing a hash, keeping first occurrence
// order, satisfying the dedup-stability property (spec.md section 8.1).
func Deduplicate(records []map[string]interface{}, hash HashFunc) []map[string]interface{} {
	seen := make(map[string]struct{}, len(records))
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		h := hash(rec)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// Validate keeps only records passing valid.
func Validate(records []map[string]interface{}, valid ValidFunc) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		if valid(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// RequiredFieldsValid reports whether rec has every field in required set,
// non-nil and (for strings) non-empty, satisfying the
// required-field-enforcement property.
func RequiredFieldsValid(rec map[string]interface{}, required []string) bool {
	for _, f := range required {
		v, ok := rec[f]
		if !ok || v == nil {
			return false
		}
		if s, isStr := v.(string); isStr && s == "" {
			return false
		}
	}
	return true
}
