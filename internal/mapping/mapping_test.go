package mapping

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleMapping() FieldMapping {
	return FieldMapping{
		Source:   "eastmoney",
		DataType: "stock_quote",
		Rules: []FieldMappingRule{
			{SourceField: "f12", TargetField: "code", Type: FieldString, Required: true},
			{SourceField: "f14", TargetField: "name", Type: FieldString},
			{SourceField: "f2", TargetField: "close", Type: FieldFloat},
			{SourceField: "f3", TargetField: "change_pct", Type: FieldPercent, Default: 0.0},
		},
	}
}

func TestApplyMapsFields(t *testing.T) {
	m := sampleMapping()
	out, err := m.Apply(map[string]interface{}{
		"f12": "600000", "f14": "Bank A", "f2": 9.87, "f3": 1.2,
	})
	require.NoError(t, err)
	require.Equal(t, "600000", out["code"])
	require.Equal(t, "Bank A", out["name"])
	require.Equal(t, 9.87, out["close"])
}

func TestApplyRequiredFieldMissingErrors(t *testing.T) {
	m := sampleMapping()
	_, err := m.Apply(map[string]interface{}{"f14": "Bank A"})
	require.Error(t, err)
}

func TestApplyDeterminism(t *testing.T) {
	m := sampleMapping()
	rec := map[string]interface{}{"f12": "600000", "f14": "Bank A", "f2": 9.87, "f3": 1.2}
	out1, err1 := m.Apply(rec)
	out2, err2 := m.Apply(rec)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, out1, out2)
}

func TestApplyCustomConverterOverridesType(t *testing.T) {
	m := FieldMapping{
		Rules: []FieldMappingRule{
			{SourceField: "raw", TargetField: "doubled", Type: FieldFloat, Converter: func(v interface{}) (interface{}, error) {
				return v.(float64) * 2, nil
			}},
		},
	}
	out, err := m.Apply(map[string]interface{}{"raw": 3.0})
	require.NoError(t, err)
	require.Equal(t, 6.0, out["doubled"])
}

func TestApplyBatchDropsFailingRecords(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("eastmoney", "stock_quote", sampleMapping())

	recs := []map[string]interface{}{
		{"f12": "600000", "f14": "Bank A", "f2": 9.87, "f3": 1.2},
		{"f14": "Missing Code"},
		{"f12": "000001", "f14": "Bank B", "f2": 11.0, "f3": -0.5},
	}
	out := reg.ApplyBatch("eastmoney", "stock_quote", recs)
	require.Len(t, out, 2)
}

func TestApplyUnknownFieldsIgnored(t *testing.T) {
	m := sampleMapping()
	out, err := m.Apply(map[string]interface{}{
		"f12": "600000", "f99": "ignored",
	})
	require.NoError(t, err)
	_, present := out["f99"]
	require.False(t, present)
}

func TestApplyPostProcessRunsLast(t *testing.T) {
	m := FieldMapping{
		Rules: []FieldMappingRule{
			{SourceField: "a", TargetField: "a", Type: FieldFloat},
			{SourceField: "b", TargetField: "b", Type: FieldFloat},
		},
		PostProcess: func(rec map[string]interface{}) error {
			rec["sum"] = rec["a"].(float64) + rec["b"].(float64)
			return nil
		},
	}
	out, err := m.Apply(map[string]interface{}{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	require.Equal(t, 5.0, out["sum"])
}
