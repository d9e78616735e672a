// Package source implements the source registry and rolling health
// tracking described in spec.md section 4.5: per-source configuration,
// declared capabilities, and a ranking formula for GetSourceFor.
package source

import (
	"sync"
	"sync/atomic"

	"github.com/openfinance/datahub/internal/config"
)

// Status is a source's current health classification.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
	StatusUnknown     Status = "unknown"
)

// Capabilities declares what a source can serve.
type Capabilities struct {
	DataTypes        []string
	Frequencies      []string
	SupportsRealtime bool
	SupportsHistory  bool
	MaxHistoryDays   int
	RateLimit        float64
	RequiresAuth     bool
}

// Health is a source's rolling counters, guarded by its own mutex so a
// health update never takes the registry's writer mutex.
type Health struct {
	mu                 sync.Mutex
	TotalRequests      int64
	SuccessCount       int64
	FailureCount       int64
	ConsecutiveFailures int
	AvgResponseTimeMs  float64
	Status             Status
}

// RecordSuccess increments totals, resets consecutive failures, and folds
// responseTimeMs into the rolling average.
func (h *Health) RecordSuccess(responseTimeMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.TotalRequests++
	h.SuccessCount++
	h.ConsecutiveFailures = 0
	if h.SuccessCount == 1 {
		h.AvgResponseTimeMs = responseTimeMs
	} else {
		h.AvgResponseTimeMs += (responseTimeMs - h.AvgResponseTimeMs) / float64(h.SuccessCount)
	}
	h.recomputeStatusLocked()
}

// RecordFailure increments failures and consecutive failures.
func (h *Health) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.TotalRequests++
	h.FailureCount++
	h.ConsecutiveFailures++
	h.recomputeStatusLocked()
}

// successRateLocked returns the success rate, defined as 1.0 when no
// requests have been made yet (an untested source is optimistically
// available).
func (h *Health) successRateLocked() float64 {
	if h.TotalRequests == 0 {
		return 1.0
	}
	return float64(h.SuccessCount) / float64(h.TotalRequests)
}

func (h *Health) recomputeStatusLocked() {
	switch {
	case h.ConsecutiveFailures >= 5:
		h.Status = StatusUnavailable
	case h.ConsecutiveFailures >= 2 || h.successRateLocked() < 0.5:
		h.Status = StatusDegraded
	default:
		h.Status = StatusAvailable
	}
}

// Snapshot returns a copy of the health counters for safe external reading.
func (h *Health) Snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Health{
		TotalRequests:       h.TotalRequests,
		SuccessCount:        h.SuccessCount,
		FailureCount:        h.FailureCount,
		ConsecutiveFailures: h.ConsecutiveFailures,
		AvgResponseTimeMs:   h.AvgResponseTimeMs,
		Status:              h.Status,
	}
}

func (h *Health) successRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successRateLocked()
}

func (h *Health) consecutiveFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ConsecutiveFailures
}

// entry bundles one source's static settings, declared capabilities, and
// live health counters.
type entry struct {
	id           string
	settings     config.SourceSettings
	capabilities Capabilities
	health       *Health
}

// Registry holds every registered source. Writers (Register/Unregister)
// take the single writer mutex; the hot read path (GetSourceFor) reads a
// copy-on-write snapshot published via atomic.Pointer, so lookups never
// block on registration. Lookups do take each candidate's Health mutex
// briefly to read its counters.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	snapshot atomic.Pointer[[]*entry]
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	empty := []*entry{}
	r.snapshot.Store(&empty)
	return r
}

// Register adds or replaces the source identified by id. Registration is
// idempotent: registering the same id again replaces its settings and
// capabilities but preserves its existing health counters.
func (r *Registry) Register(id string, settings config.SourceSettings, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[id]
	h := &Health{Status: StatusUnknown}
	if ok {
		h = existing.health
	}
	r.entries[id] = &entry{id: id, settings: settings, capabilities: caps, health: h}
	r.publishLocked()
}

// Unregister removes a source from the registry.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	r.publishLocked()
}

func (r *Registry) publishLocked() {
	snap := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		snap = append(snap, e)
	}
	r.snapshot.Store(&snap)
}

// Health returns the health counters for id, if registered.
func (r *Registry) Health(id string) (*Health, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.health, true
}

// Settings returns the registered settings for id.
func (r *Registry) Settings(id string) (config.SourceSettings, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return config.SourceSettings{}, false
	}
	return e.settings, true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// GetSourceFor ranks registered sources supporting dataType (and frequency,
// if non-empty) by the formula in spec.md section 4.5:
// +100 if preferRealtime and the source supports realtime,
// + success_rate*50, - consecutive_failures*10. Sources with status
// unavailable are excluded. Returns ("", false) if no candidate qualifies.
func (r *Registry) GetSourceFor(dataType, frequency string, preferRealtime bool) (string, bool) {
	snap := *r.snapshot.Load()

	var bestID string
	var bestScore float64
	found := false

	for _, e := range snap {
		if !containsString(e.capabilities.DataTypes, dataType) {
			continue
		}
		if frequency != "" && !containsString(e.capabilities.Frequencies, frequency) {
			continue
		}
		if e.health.Snapshot().Status == StatusUnavailable {
			continue
		}

		score := e.health.successRate()*50 - float64(e.health.consecutiveFailures())*10
		if preferRealtime && e.capabilities.SupportsRealtime {
			score += 100
		}

		if !found || score > bestScore {
			bestID = e.id
			bestScore = score
			found = true
		}
	}
	return bestID, found
}
