// Package persistence implements the config-driven save pipeline from
// spec.md section 4.9: batch writes to relational tables with
// insert/upsert/append dispatch and per-row integrity-error tolerance.
// Connection setup is grounded on internal/platform/database/database.go;
// the ON CONFLICT ... DO UPDATE shape follows the EXCLUDED-style upsert in
// packages/com.r3e.services.gasbank/store_postgres.go.
package persistence

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/openfinance/datahub/internal/errors"
	"github.com/openfinance/datahub/internal/logging"
	"github.com/openfinance/datahub/internal/metrics"
)

// SaveMode names the per-table conflict-resolution strategy.
type SaveMode string

const (
	SaveModeInsert  SaveMode = "insert"
	SaveModeUpsert  SaveMode = "upsert"
	SaveModeAppend  SaveMode = "append"
	SaveModeReplace SaveMode = "replace"
)

// FieldConfig declares how one canonical field maps onto one table column.
type FieldConfig struct {
	SourceFields []string    `yaml:"source_fields"`
	CanonicalName string     `yaml:"-"`
	Type         string      `yaml:"type"`
	Required     bool        `yaml:"required"`
	Default      interface{} `yaml:"default"`
	Transform    func(interface{}) interface{} `yaml:"-"`
}

// GetValue resolves one field's stored value from rec: try each configured
// source-field candidate in order, fall back to the canonical column name,
// then to Default, then run Transform if set.
func (f FieldConfig) GetValue(rec map[string]interface{}) (interface{}, bool) {
	var v interface{}
	found := false
	for _, candidate := range f.SourceFields {
		if val, ok := rec[candidate]; ok && val != nil {
			v, found = val, true
			break
		}
	}
	if !found {
		if val, ok := rec[f.CanonicalName]; ok && val != nil {
			v, found = val, true
		}
	}
	if !found {
		if f.Default == nil {
			return nil, !f.Required
		}
		v = f.Default
	}
	if f.Transform != nil {
		v = f.Transform(v)
	}
	return v, true
}

// TableConfig is the sole declaration of one target table's save behavior.
type TableConfig struct {
	TableName  string                 `yaml:"table_name"`
	PrimaryKey []string               `yaml:"primary_key"`
	UniqueKeys [][]string             `yaml:"unique_keys"`
	Fields     map[string]FieldConfig `yaml:"fields"`
	SaveMode   SaveMode               `yaml:"save_mode"`
	BatchSize  int                    `yaml:"batch_size"`
	PreSave    func(rec map[string]interface{}) error `yaml:"-"`
	PostSave   func(rec map[string]interface{}) error `yaml:"-"`
}

// conflictColumns returns the columns used for ON CONFLICT, preferring the
// first unique_keys entry and falling back to the primary key.
func (t TableConfig) conflictColumns() []string {
	if len(t.UniqueKeys) > 0 && len(t.UniqueKeys[0]) > 0 {
		return t.UniqueKeys[0]
	}
	return t.PrimaryKey
}

// LoadTableConfigs reads a YAML document mapping table name to TableConfig,
// the same yaml.Unmarshal + validate pattern as pkg/config.loadFromFile.
func LoadTableConfigs(path string) (map[string]TableConfig, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]TableConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse table configs %s: %w", path, err)
	}
	for name, tc := range raw {
		for fieldName, fc := range tc.Fields {
			fc.CanonicalName = fieldName
			tc.Fields[fieldName] = fc
		}
		raw[name] = tc
	}
	return raw, nil
}

// EngineConfig configures an Engine instance.
type EngineConfig struct {
	DefaultBatchSize int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	Logger           *logging.Logger
}

// Engine owns the shared connection pool and dispatches batched saves
// according to each table's TableConfig.
type Engine struct {
	db     *sqlx.DB
	tables map[string]TableConfig
	cfg    EngineConfig
	logger *logging.Logger
}

// Open establishes the PostgreSQL connection pool and verifies connectivity,
// mirroring internal/platform/database.Open's dial-then-ping pattern.
func Open(ctx context.Context, dsn string, tables map[string]TableConfig, cfg EngineConfig) (*Engine, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("persistence: postgres DSN is required")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping postgres: %w", err)
	}
	return NewEngine(db, tables, cfg), nil
}

// NewEngine builds an Engine around an already-open *sqlx.DB, used directly
// by tests against go-sqlmock.
func NewEngine(db *sqlx.DB, tables map[string]TableConfig, cfg EngineConfig) *Engine {
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 500
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault("persistence")
	}
	return &Engine{db: db, tables: tables, cfg: cfg, logger: logger}
}

// Close releases the connection pool.
func (e *Engine) Close() error { return e.db.Close() }

// Ping verifies the connection pool is reachable, used by the health-check
// service's persistence component check.
func (e *Engine) Ping(ctx context.Context) error { return e.db.PingContext(ctx) }

// Migrate applies every pending golang-migrate migration under dir (a
// "file://" source of numbered .up.sql/.down.sql pairs) to bring the
// tables this Engine saves into match their TableConfig. Called once at
// startup, before the scheduler begins dispatching saves; a schema already
// at the latest version is not an error.
func (e *Engine) Migrate(dir string) error {
	driver, err := migratepg.WithInstance(e.db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("persistence: migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("persistence: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("persistence: migrate up: %w", err)
	}
	return nil
}

// Save writes items to table per its TableConfig, batching, dispatching by
// save_mode, and tolerating per-row integrity errors (spec.md section 4.9).
// It is wrapped in the transient-error retry discipline; integrity errors
// are never retried.
func (e *Engine) Save(ctx context.Context, table string, items []map[string]interface{}) (int, error) {
	tc, ok := e.tables[table]
	if !ok {
		return 0, fmt.Errorf("persistence: no TableConfig registered for table %q", table)
	}
	batchSize := tc.BatchSize
	if batchSize <= 0 {
		batchSize = e.cfg.DefaultBatchSize
	}

	saved := 0
	start := time.Now()
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		n, err := e.saveBatchWithRetry(ctx, tc, items[i:end])
		saved += n
		if err != nil {
			metrics.ObservePersistenceSave(table, "failed", time.Since(start))
			return saved, err
		}
	}
	metrics.ObservePersistenceSave(table, "completed", time.Since(start))
	return saved, nil
}

// saveBatchWithRetry wraps saveBatch in the exponential-backoff transient
// retry decorator from spec.md section 4.9: only pq.Error classes 08/53/57/40
// (connection exception, insufficient resources, operator intervention,
// transaction rollback) are retried; every other error, including a
// class-23 integrity violation that escaped saveBatch's per-row tolerance,
// fails the batch immediately.
func (e *Engine) saveBatchWithRetry(ctx context.Context, tc TableConfig, batch []map[string]interface{}) (int, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(e.cfg.RetryBaseDelay) * pow2(attempt))
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
		}
		n, err := e.saveBatch(ctx, tc, batch)
		if err == nil {
			return n, nil
		}
		if !isTransientError(err) {
			return n, err
		}
		lastErr = err
		e.logger.WithError(err).WithField("attempt", attempt+1).Warn("persistence: batch save failed, retrying")
	}
	return 0, lastErr
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// saveBatch opens one transaction for batch, committing at the end or
// rolling back on any batch-level (transaction-wide) exception.
func (e *Engine) saveBatch(ctx context.Context, tc TableConfig, batch []map[string]interface{}) (int, error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Storage("persistence: begin transaction", err)
	}

	saved := 0
	for _, rec := range batch {
		if tc.PreSave != nil {
			if err := tc.PreSave(rec); err != nil {
				e.logger.WithError(err).Warn("persistence: pre-save hook failed, skipping row")
				continue
			}
		}
		row, ok := e.buildRow(tc, rec)
		if !ok {
			e.logger.Debug("persistence: row missing required field, skipping")
			continue
		}
		if err := e.execRow(ctx, tx, tc, row); err != nil {
			if isIntegrityError(err) {
				e.logger.WithError(err).Debug("persistence: integrity violation, skipping row")
				continue
			}
			if err := tx.Rollback(); err != nil {
				e.logger.WithError(err).Warn("persistence: rollback failed")
			}
			return saved, errors.Storage("persistence: batch save failed", err)
		}
		if tc.PostSave != nil {
			if err := tc.PostSave(rec); err != nil {
				e.logger.WithError(err).Warn("persistence: post-save hook failed")
			}
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return saved, errors.Storage("persistence: commit failed", err)
	}
	return saved, nil
}

// buildRow resolves every configured field's value for rec via
// FieldConfig.GetValue, reporting false if any required field is absent.
func (e *Engine) buildRow(tc TableConfig, rec map[string]interface{}) (map[string]interface{}, bool) {
	row := make(map[string]interface{}, len(tc.Fields))
	for name, fc := range tc.Fields {
		v, ok := fc.GetValue(rec)
		if !ok {
			return nil, false
		}
		row[name] = v
	}
	return row, true
}

// execRow dispatches one row's INSERT/UPSERT/APPEND statement.
func (e *Engine) execRow(ctx context.Context, tx *sqlx.Tx, tc TableConfig, row map[string]interface{}) error {
	switch tc.SaveMode {
	case SaveModeUpsert:
		query, args := upsertStatement(tc, row)
		_, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		return err
	default:
		query, args := insertStatement(tc, row)
		_, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		return err
	}
}

// upsertStatement builds "INSERT ... ON CONFLICT (cols) DO UPDATE SET
// col = COALESCE(EXCLUDED.col, t.col)" for every non-conflict column. The
// ON CONFLICT DO UPDATE shape follows store_admin.go/gasbank's
// store_postgres.go; the COALESCE null-preserving merge (so a partial
// collector payload never blanks an already-stored field) has no teacher
// precedent and is this package's own addition. An empty update set
// (every column is a conflict column) falls back to DO NOTHING.
func upsertStatement(tc TableConfig, row map[string]interface{}) (string, []interface{}) {
	cols, args := orderedColumns(row)
	conflictCols := tc.conflictColumns()
	conflictSet := make(map[string]struct{}, len(conflictCols))
	for _, c := range conflictCols {
		conflictSet[c] = struct{}{}
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}

	var updates []string
	for _, c := range cols {
		if _, isConflict := conflictSet[c]; isConflict {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", c, c, tc.TableName, c))
	}

	doClause := "DO NOTHING"
	if len(updates) > 0 {
		doClause = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		tc.TableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "), doClause,
	)
	return query, args
}

// insertStatement builds a plain INSERT for INSERT/APPEND/REPLACE save
// modes (REPLACE as table-level replace is out of core scope per spec.md).
func insertStatement(tc TableConfig, row map[string]interface{}) (string, []interface{}) {
	cols, args := orderedColumns(row)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tc.TableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return query, args
}

func orderedColumns(row map[string]interface{}) ([]string, []interface{}) {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sortStrings(cols)
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	return cols, args
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// transientPgClasses are the SQLSTATE classes spec.md section 4.9 names as
// safe to retry: connection exception, insufficient resources, operator
// intervention, transaction rollback.
var transientPgClasses = map[pq.ErrorClass]bool{
	"08": true,
	"53": true,
	"57": true,
	"40": true,
}

// pgError unwraps err's chain for a *pq.Error, if any.
func pgError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// isIntegrityError reports whether err is a Postgres class-23 constraint
// violation (unique/foreign-key/check), which the save pipeline tolerates
// per-row instead of failing the batch.
func isIntegrityError(err error) bool {
	pqErr, ok := pgError(err)
	return ok && pqErr.Code.Class() == "23"
}

// isTransientError reports whether err is a pq.Error in one of the SQLSTATE
// classes the retry wrapper is allowed to retry.
func isTransientError(err error) bool {
	pqErr, ok := pgError(err)
	return ok && transientPgClasses[pqErr.Code.Class()]
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table configs %s: %w", path, err)
	}
	return data, nil
}
