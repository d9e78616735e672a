// Package mapping implements the field-mapping registry that transforms
// untyped source records into canonical field sets (spec.md section 4.4).
package mapping

import (
	"fmt"
	"time"

	"github.com/openfinance/datahub/internal/convert"
	"github.com/openfinance/datahub/internal/logging"
	"github.com/shopspring/decimal"
)

// FieldType names the target coercion applied to a source value.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldFloat   FieldType = "float"
	FieldInt     FieldType = "int"
	FieldDecimal FieldType = "decimal"
	FieldBool    FieldType = "bool"
	FieldDate    FieldType = "date"
	FieldDatetime FieldType = "datetime"
	FieldPercent FieldType = "percent"
)

// Converter is a caller-supplied coercion that overrides the default Type
// handling for one rule.
type Converter func(v interface{}) (interface{}, error)

// FieldMappingRule maps one source field to one target field.
type FieldMappingRule struct {
	SourceField string
	TargetField string
	Type        FieldType
	Default     interface{}
	Converter   Converter
	Required    bool
}

// PostProcessFunc runs once after all rules have been applied, allowed to
// derive or adjust fields from the full mapped record.
type PostProcessFunc func(rec map[string]interface{}) error

// FieldMapping is the full set of rules for one (source, data_type) pair.
type FieldMapping struct {
	Source      string
	DataType    string
	Rules       []FieldMappingRule
	PostProcess PostProcessFunc
}

type key struct {
	source   string
	dataType string
}

// Registry holds registered FieldMappings keyed by (source, data_type).
type Registry struct {
	mappings map[key]FieldMapping
	logger   *logging.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewDefault("mapping")
	}
	return &Registry{mappings: make(map[key]FieldMapping), logger: logger}
}

// Register adds or replaces the mapping for (source, dataType).
func (r *Registry) Register(source, dataType string, m FieldMapping) {
	r.mappings[key{source, dataType}] = m
}

// Get returns the mapping for (source, dataType), if any.
func (r *Registry) Get(source, dataType string) (FieldMapping, bool) {
	m, ok := r.mappings[key{source, dataType}]
	return m, ok
}

// Apply transforms rec according to the mapping for (source, dataType).
// A required rule with no source value and no default produces an error;
// unknown source fields are ignored; a custom Converter overrides the
// Type's default coercion; PostProcess runs last.
func Apply(reg *Registry, source, dataType string, rec map[string]interface{}) (map[string]interface{}, error) {
	m, ok := reg.Get(source, dataType)
	if !ok {
		return nil, fmt.Errorf("mapping: no mapping registered for source=%q data_type=%q", source, dataType)
	}
	return m.Apply(rec)
}

// Apply transforms rec according to m's rules.
func (m FieldMapping) Apply(rec map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m.Rules))
	for _, rule := range m.Rules {
		raw, present := rec[rule.SourceField]
		if !present && rule.Default == nil && rule.Required {
			return nil, fmt.Errorf("mapping: required field %q missing from source record", rule.SourceField)
		}

		if rule.Converter != nil {
			val, err := rule.Converter(raw)
			if err != nil {
				return nil, fmt.Errorf("mapping: converter for %q failed: %w", rule.TargetField, err)
			}
			out[rule.TargetField] = val
			continue
		}

		out[rule.TargetField] = coerce(raw, rule)
	}
	if m.PostProcess != nil {
		if err := m.PostProcess(out); err != nil {
			return nil, fmt.Errorf("mapping: post-process failed: %w", err)
		}
	}
	return out, nil
}

func coerce(raw interface{}, rule FieldMappingRule) interface{} {
	switch rule.Type {
	case FieldFloat:
		def, _ := rule.Default.(float64)
		return convert.ToFloat(raw, def)
	case FieldInt:
		def, _ := rule.Default.(int)
		return convert.ToInt(raw, def)
	case FieldDecimal:
		def, _ := rule.Default.(decimal.Decimal)
		return convert.ToDecimal(raw, def)
	case FieldBool:
		def, _ := rule.Default.(bool)
		return convert.ToBool(raw, def)
	case FieldDate, FieldDatetime:
		if t, ok := convert.ToDate(raw); ok {
			return t
		}
		if def, ok := rule.Default.(time.Time); ok {
			return def
		}
		return nil
	case FieldPercent:
		def, _ := rule.Default.(float64)
		return convert.ToPercentageDecimal(raw, true, def)
	case FieldString:
		fallthrough
	default:
		def, _ := rule.Default.(string)
		return convert.ToStr(raw, def)
	}
}

// ApplyBatch applies m to every record, dropping (and logging) any record
// whose mapping fails rather than failing the whole batch — the same
// "don't fail the batch" idiom the teacher's persistence save loop uses.
func (r *Registry) ApplyBatch(source, dataType string, recs []map[string]interface{}) []map[string]interface{} {
	m, ok := r.Get(source, dataType)
	if !ok {
		r.logger.WithField("source", source).WithField("data_type", dataType).Warn("mapping: no mapping registered")
		return nil
	}
	out := make([]map[string]interface{}, 0, len(recs))
	for i, rec := range recs {
		mapped, err := m.Apply(rec)
		if err != nil {
			r.logger.WithField("index", i).WithError(err).Warn("mapping: dropping record")
			continue
		}
		out = append(out, mapped)
	}
	return out
}
