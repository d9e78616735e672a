package task

import (
	"context"

	"github.com/openfinance/datahub/internal/collector"
)

// Saver is the subset of the persistence engine's API a CollectorTask needs.
type Saver interface {
	Save(ctx context.Context, table string, items []map[string]interface{}) (int, error)
}

// CollectorTask adapts a collector.Collectable plus a persistence target
// table into an Executor, so a declarative collector config registered
// through NewConfigCollector can be scheduled and run without a
// hand-written task type per source (spec.md section 4.8's "task wraps a
// collector" binding).
type CollectorTask struct {
	meta        Metadata
	collectable collector.Collectable
	engine      Saver
	table       string
}

// NewCollectorTask builds a CollectorTask. table is the persistence table
// the collected records are saved to; it overrides meta.Output.TargetTable
// when both are set, so a single collector config can be reused across
// differently-named tables across environments.
func NewCollectorTask(meta Metadata, collectable collector.Collectable, engine Saver, table string) *CollectorTask {
	if table == "" {
		table = meta.Output.TargetTable
	}
	return &CollectorTask{meta: meta, collectable: collectable, engine: engine, table: table}
}

func (t *CollectorTask) Metadata() Metadata { return t.meta }

// Collect delegates to the wrapped collector and records deduplication and
// validity counts on progress.Detail for observability.
func (t *CollectorTask) Collect(ctx context.Context, params map[string]interface{}, progress *Progress) ([]map[string]interface{}, error) {
	result, err := t.collectable.Collect(ctx, params)
	if err != nil {
		return nil, err
	}
	if progress.Detail == nil {
		progress.Detail = make(map[string]interface{})
	}
	progress.Detail["records_deduplicated"] = result.RecordsDeduplicated
	progress.Detail["records_valid"] = result.RecordsValid
	return result.Records, nil
}

// Validate is a pass-through: the wrapped collector already applied dedup
// and field validation during Collect when configured to.
func (t *CollectorTask) Validate(ctx context.Context, raw []map[string]interface{}) ([]map[string]interface{}, error) {
	return raw, nil
}

func (t *CollectorTask) Save(ctx context.Context, kept []map[string]interface{}, progress *Progress) (int, error) {
	return t.engine.Save(ctx, t.table, kept)
}
