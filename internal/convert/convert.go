// Package convert provides total, never-panicking coercion of arbitrary
// JSON-scalar values into typed canonical values (spec.md section 4.1).
package convert

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// absentSentinels are source values that mean "no data" rather than a
// literal value, per spec.md section 4.1.
var absentSentinels = map[string]struct{}{
	"":   {},
	"-":  {},
	"--": {},
}

func isAbsent(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		_, absent := absentSentinels[strings.TrimSpace(s)]
		return absent
	}
	return false
}

// cleanNumericString strips thousand separators and a trailing percent
// sign, so "1,234.5%" parses as 1234.5.
func cleanNumericString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	return strings.TrimSpace(s)
}

// ToFloat coerces v to float64, returning def on any absent or
// unparseable input. It never panics.
func ToFloat(v interface{}, def float64) float64 {
	if isAbsent(v) {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case decimal.Decimal:
		f, _ := t.Float64()
		return f
	case string:
		cleaned := cleanNumericString(t)
		if cleaned == "" {
			return def
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return def
		}
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return def
	}
}

// ToInt coerces v to int, returning def on any absent or unparseable
// input.
func ToInt(v interface{}, def int) int {
	if isAbsent(v) {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case float32:
		return int(t)
	case string:
		cleaned := cleanNumericString(t)
		if cleaned == "" {
			return def
		}
		if i, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
			return int(i)
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return int(f)
		}
		return def
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return def
	}
}

// ToStr coerces v to string, returning def for absent input.
func ToStr(v interface{}, def string) string {
	if isAbsent(v) {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case decimal.Decimal:
		return t.String()
	default:
		return def
	}
}

// ToDecimal coerces v to a decimal.Decimal, returning def on failure.
func ToDecimal(v interface{}, def decimal.Decimal) decimal.Decimal {
	if isAbsent(v) {
		return def
	}
	switch t := v.(type) {
	case decimal.Decimal:
		return t
	case float64:
		return decimal.NewFromFloat(t)
	case float32:
		return decimal.NewFromFloat32(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case string:
		cleaned := cleanNumericString(t)
		if cleaned == "" {
			return def
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return def
		}
		return d
	default:
		return def
	}
}

// ToBool coerces v to bool, returning def on ambiguous input.
func ToBool(v interface{}, def bool) bool {
	if isAbsent(v) {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true
		case "false", "0", "no", "n":
			return false
		default:
			return def
		}
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return def
	}
}

// dateLayouts is the fixed ordered list of formats tried before the ISO
// 8601 fallback, per spec.md section 4.1.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ToDate coerces v to a time.Time, returning (time.Time{}, false) on
// failure. The time of day is not truncated: a date-only input parses to
// midnight, and an input that carries a time keeps it.
func ToDate(v interface{}) (time.Time, bool) {
	return parseTime(v)
}

// ToDatetime coerces v to a full timestamp, returning (time.Time{}, false)
// on failure. It uses the same parsing as ToDate, so both return the same
// value for the same input.
func ToDatetime(v interface{}) (time.Time, bool) {
	return parseTime(v)
}

func parseTime(v interface{}) (time.Time, bool) {
	if isAbsent(v) {
		return time.Time{}, false
	}
	var s string
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s = strings.TrimSpace(t)
	default:
		return time.Time{}, false
	}
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

// ToPercentageDecimal converts v to a fraction (e.g. "1.2%" -> 0.012).
// isPercentage forces the magnitude>1 heuristic described in spec.md
// Design Notes (a); callers that distrust the heuristic should pass
// isPercentage explicitly rather than relying on magnitude alone.
func ToPercentageDecimal(v interface{}, isPercentage bool, def float64) float64 {
	if isAbsent(v) {
		return def
	}
	raw, hasPercentSign := v.(string)
	carriesPercentSign := hasPercentSign && strings.Contains(raw, "%")

	f := ToFloat(v, def)
	if carriesPercentSign || (isPercentage && math.Abs(f) > 1) {
		return f / 100
	}
	return f
}
