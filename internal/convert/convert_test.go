package convert

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToFloatAbsentValues(t *testing.T) {
	for _, v := range []interface{}{nil, "", "-", "--", "  -  "} {
		require.Equal(t, 1.5, ToFloat(v, 1.5), "value %#v", v)
	}
}

func TestToFloatParsesVariants(t *testing.T) {
	require.Equal(t, 1234.5, ToFloat("1,234.5", 0))
	require.Equal(t, 12.3, ToFloat("12.3%", 0))
	require.Equal(t, 9.87, ToFloat(9.87, 0))
	require.Equal(t, 3.0, ToFloat(3, 0))
	require.Equal(t, 0.0, ToFloat("not-a-number", 0))
}

func TestToIntVariants(t *testing.T) {
	require.Equal(t, 1000000, ToInt("1,000,000", 0))
	require.Equal(t, 0, ToInt(nil, 0))
	require.Equal(t, 7, ToInt(7.9, 0))
}

func TestToDecimal(t *testing.T) {
	d := ToDecimal("1,234.56", decimal.Zero)
	require.True(t, d.Equal(decimal.RequireFromString("1234.56")))
	require.True(t, ToDecimal(nil, decimal.NewFromInt(5)).Equal(decimal.NewFromInt(5)))
}

func TestToBool(t *testing.T) {
	require.True(t, ToBool("true", false))
	require.True(t, ToBool("Y", false))
	require.False(t, ToBool("no", true))
	require.Equal(t, true, ToBool(nil, true))
}

func TestToDateFormats(t *testing.T) {
	cases := []string{"2024-06-03", "2024/06/03", "20240603"}
	for _, c := range cases {
		d, ok := ToDate(c)
		require.True(t, ok, c)
		require.Equal(t, 2024, d.Year())
		require.Equal(t, time.June, d.Month())
		require.Equal(t, 3, d.Day())
	}

	_, ok := ToDate("not-a-date")
	require.False(t, ok)

	_, ok = ToDate(nil)
	require.False(t, ok)
}

func TestToDatetimeISOFallback(t *testing.T) {
	dt, ok := ToDatetime("2024-06-03T15:04:05Z")
	require.True(t, ok)
	require.Equal(t, 15, dt.Hour())
}

func TestToPercentageDecimal(t *testing.T) {
	require.InDelta(t, 0.012, ToPercentageDecimal("1.2%", false, 0), 1e-9)
	require.InDelta(t, 0.05, ToPercentageDecimal(5.0, true, 0), 1e-9)
	require.InDelta(t, 0.05, ToPercentageDecimal(0.05, false, 0), 1e-9)
	require.Equal(t, -1.0, ToPercentageDecimal(nil, false, -1.0))
}

func TestConvertersNeverPanic(t *testing.T) {
	weird := []interface{}{[]int{1, 2}, map[string]int{"a": 1}, struct{}{}, make(chan int)}
	for _, v := range weird {
		require.NotPanics(t, func() {
			ToFloat(v, 0)
			ToInt(v, 0)
			ToStr(v, "")
			ToBool(v, false)
			ToDecimal(v, decimal.Zero)
			ToDate(v)
		})
	}
}
