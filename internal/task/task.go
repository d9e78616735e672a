// Package task implements the task registry and seven-step execution
// pipeline from spec.md section 4.8, grounded on the status-enum/lifecycle
// idiom of internal/services/core/health.go.
package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openfinance/datahub/internal/logging"
	"github.com/openfinance/datahub/internal/metrics"
)

// Priority ranks tasks for scheduling and listing order, most urgent first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

// Category groups tasks by domain.
type Category string

const (
	CategoryMarket      Category = "market"
	CategoryFundamental Category = "fundamental"
	CategoryNews        Category = "news"
	CategoryMacro       Category = "macro"
	CategoryDerivative  Category = "derivative"
	CategoryKnowledge   Category = "knowledge"
)

// Status mirrors TaskProgress's lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCollecting Status = "collecting"
	StatusValidating Status = "validating"
	StatusSaving     Status = "saving"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParameterType tags the expected shape of a TaskParameter's value.
type ParameterType string

const (
	ParamString ParameterType = "string"
	ParamInt    ParameterType = "int"
	ParamFloat  ParameterType = "float"
	ParamBool   ParameterType = "bool"
	ParamDate   ParameterType = "date"
	ParamList   ParameterType = "list"
)

// Parameter describes one accepted task parameter, used both for call-time
// validation and for surfacing the task API schema.
type Parameter struct {
	Name        string
	Type        ParameterType
	Default     interface{}
	Required    bool
	Description string
	Choices     []interface{}
}

// OutputDescriptor names what a task produces: the canonical record family,
// the target persistence table, and the fields it writes.
type OutputDescriptor struct {
	RecordFamily string
	TargetTable  string
	Fields       []string
}

// Metadata describes one task type, independent of any particular run.
type Metadata struct {
	TaskType    string
	Name        string
	Description string
	Category    Category
	Priority    Priority
	Source      string
	Timeout     time.Duration
	RetryCount  int
	Parameters  []Parameter
	Output      OutputDescriptor
	Tags        []string
}

// Progress is the mutable record of one task run, owned exclusively by the
// executing task (spec.md section 3.3).
type Progress struct {
	TaskType       string
	Status         Status
	StartedAt      time.Time
	CompletedAt    time.Time
	TotalRecords   int
	ProcessedRecords int
	SavedRecords   int
	Error          string
	Detail         map[string]interface{}
}

// Summary is execute()'s return value.
type Summary struct {
	Success      bool
	TotalRecords int
	SavedRecords int
	Duration     time.Duration
	Error        string
}

// Executor is implemented by every concrete task. Collect/Validate/Save are
// the three pipeline stages RunPipeline drives in order.
type Executor interface {
	Metadata() Metadata
	Collect(ctx context.Context, params map[string]interface{}, progress *Progress) ([]map[string]interface{}, error)
	Validate(ctx context.Context, raw []map[string]interface{}) ([]map[string]interface{}, error)
	Save(ctx context.Context, kept []map[string]interface{}, progress *Progress) (int, error)
}

// RunPipeline executes the seven-step flow from spec.md section 4.8 against
// any Executor, so concrete task types need only implement the three
// stages. The caller supplies progress so it can be observed mid-run.
func RunPipeline(ctx context.Context, exec Executor, params map[string]interface{}, progress *Progress) Summary {
	meta := exec.Metadata()
	if meta.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, meta.Timeout)
		defer cancel()
	}
	started := time.Now()
	progress.Status = StatusRunning
	progress.StartedAt = started

	finish := func(summary Summary) Summary {
		progress.CompletedAt = time.Now()
		summary.Duration = time.Since(started)
		metrics.ObserveTaskExecution(meta.TaskType, string(progress.Status), summary.Duration)
		return summary
	}

	progress.Status = StatusCollecting
	raw, err := exec.Collect(ctx, params, progress)
	if err != nil {
		progress.Status = StatusFailed
		progress.Error = err.Error()
		return finish(Summary{Success: false, Error: err.Error()})
	}
	progress.TotalRecords = len(raw)
	progress.ProcessedRecords = len(raw)

	progress.Status = StatusValidating
	kept, err := exec.Validate(ctx, raw)
	if err != nil {
		progress.Status = StatusFailed
		progress.Error = err.Error()
		return finish(Summary{Success: false, TotalRecords: len(raw), Error: err.Error()})
	}

	progress.Status = StatusSaving
	saved, err := exec.Save(ctx, kept, progress)
	if err != nil {
		progress.Status = StatusFailed
		progress.Error = err.Error()
		return finish(Summary{Success: false, TotalRecords: len(raw), Error: err.Error()})
	}
	progress.SavedRecords = saved

	progress.Status = StatusCompleted
	return finish(Summary{Success: true, TotalRecords: len(raw), SavedRecords: saved})
}

// Registry is the process-wide task-type registry.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	logger    *logging.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewDefault("task")
	}
	return &Registry{executors: make(map[string]Executor), logger: logger}
}

// Register adds exec under its own Metadata().TaskType, overwriting any
// prior registration for that type.
func (r *Registry) Register(exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[exec.Metadata().TaskType] = exec
}

// Get returns the executor registered for taskType, if any.
func (r *Registry) Get(taskType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[taskType]
	return e, ok
}

// ListTasks returns every registered task's Metadata, optionally filtered
// to one category, sorted by (priority ascending, name).
func (r *Registry) ListTasks(category Category) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.executors))
	for _, e := range r.executors {
		m := e.Metadata()
		if category != "" && m.Category != category {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ListCategories returns the number of registered tasks per category.
func (r *Registry) ListCategories() map[Category]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Category]int)
	for _, e := range r.executors {
		counts[e.Metadata().Category]++
	}
	return counts
}

// ValidateParams checks params against meta.Parameters: every required
// parameter must be present, and a parameter with Choices must match one.
func ValidateParams(meta Metadata, params map[string]interface{}) error {
	for _, p := range meta.Parameters {
		v, present := params[p.Name]
		if !present {
			if p.Required && p.Default == nil {
				return fmt.Errorf("task %s: missing required parameter %q", meta.TaskType, p.Name)
			}
			continue
		}
		if len(p.Choices) == 0 {
			continue
		}
		valid := false
		for _, c := range p.Choices {
			if c == v {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("task %s: parameter %q value %v not in allowed choices", meta.TaskType, p.Name, v)
		}
	}
	return nil
}
