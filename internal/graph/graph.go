// Package graph defines the narrow interface the pipeline calls into a
// knowledge-graph store and a coordinator that dual-writes a KG record to
// both the relational persistence engine and the graph store, per
// SPEC_FULL.md section 4.13: the graph store itself is out of scope, only
// this collaborator boundary is.
package graph

import (
	"context"
	"time"

	"github.com/openfinance/datahub/internal/logging"
	"github.com/openfinance/datahub/internal/model"
)

// GraphStore is implemented by whatever external graph database the
// deployment wires in (out of scope for this module).
type GraphStore interface {
	WriteEntity(ctx context.Context, e model.KGEntity) error
	WriteRelation(ctx context.Context, r model.KGRelation) error
	WriteEvent(ctx context.Context, e model.KGEvent) error
}

// RelationalSink is the subset of the persistence engine's API the
// coordinator needs: one table-scoped batch save.
type RelationalSink interface {
	Save(ctx context.Context, table string, items []map[string]interface{}) (int, error)
}

// DualWriteCoordinator fans a canonical KG record out to the relational
// persistence engine and an injected GraphStore. The relational write is
// authoritative: a relational failure is returned and the graph write is
// skipped. A graph-side failure is logged, not propagated, so a graph
// outage never fails the relational write.
type DualWriteCoordinator struct {
	relational    RelationalSink
	graph         GraphStore
	entityTable   string
	relationTable string
	eventTable    string
	logger        *logging.Logger
}

// Config configures a DualWriteCoordinator's target tables.
type Config struct {
	EntityTable   string
	RelationTable string
	EventTable    string
	Logger        *logging.Logger
}

// NewDualWriteCoordinator builds a coordinator over relational and graph.
func NewDualWriteCoordinator(relational RelationalSink, graphStore GraphStore, cfg Config) *DualWriteCoordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault("graph")
	}
	entityTable := cfg.EntityTable
	if entityTable == "" {
		entityTable = "kg_entities"
	}
	relationTable := cfg.RelationTable
	if relationTable == "" {
		relationTable = "kg_relations"
	}
	eventTable := cfg.EventTable
	if eventTable == "" {
		eventTable = "kg_events"
	}
	return &DualWriteCoordinator{
		relational:    relational,
		graph:         graphStore,
		entityTable:   entityTable,
		relationTable: relationTable,
		eventTable:    eventTable,
		logger:        logger,
	}
}

// WriteEntity saves e to the relational table then, best-effort, to the
// graph store.
func (c *DualWriteCoordinator) WriteEntity(ctx context.Context, e model.KGEntity) error {
	if _, err := c.relational.Save(ctx, c.entityTable, []map[string]interface{}{e.ToRecord()}); err != nil {
		return err
	}
	c.writeGraphBestEffort(ctx, "entity", e.EntityID, func() error { return c.graph.WriteEntity(ctx, e) })
	return nil
}

// WriteRelation saves r the same dual-write way as WriteEntity.
func (c *DualWriteCoordinator) WriteRelation(ctx context.Context, r model.KGRelation) error {
	if _, err := c.relational.Save(ctx, c.relationTable, []map[string]interface{}{r.ToRecord()}); err != nil {
		return err
	}
	c.writeGraphBestEffort(ctx, "relation", r.RelationID, func() error { return c.graph.WriteRelation(ctx, r) })
	return nil
}

// WriteEvent saves e the same dual-write way as WriteEntity.
func (c *DualWriteCoordinator) WriteEvent(ctx context.Context, e model.KGEvent) error {
	if _, err := c.relational.Save(ctx, c.eventTable, []map[string]interface{}{e.ToRecord()}); err != nil {
		return err
	}
	c.writeGraphBestEffort(ctx, "event", e.EventID, func() error { return c.graph.WriteEvent(ctx, e) })
	return nil
}

func (c *DualWriteCoordinator) writeGraphBestEffort(ctx context.Context, kind, id string, write func() error) {
	if c.graph == nil {
		return
	}
	start := time.Now()
	if err := write(); err != nil {
		c.logger.WithError(err).
			WithField("kind", kind).
			WithField("id", id).
			WithField("elapsed", time.Since(start)).
			Warn("graph: best-effort write failed, relational write already committed")
	}
}
