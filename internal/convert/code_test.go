package convert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExchangeOf(t *testing.T) {
	require.Equal(t, ExchangeShanghai, ExchangeOf("600000"))
	require.Equal(t, ExchangeShenzhen, ExchangeOf("000001"))
	require.Equal(t, ExchangeShenzhen, ExchangeOf("300750"))
	require.Equal(t, ExchangeBeijing, ExchangeOf("430047"))
	require.Equal(t, ExchangeUnknown, ExchangeOf(""))
}

func TestNormalizeCodeVariants(t *testing.T) {
	cases := map[string]string{
		"600000":     "600000",
		"SH600000":   "600000",
		"sz000001":   "000001",
		"1.600000":   "600000",
		"0.000001":   "000001",
		"600000.SH":  "600000",
		"000001.SZ":  "000001",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeCode(in), "input %q", in)
	}
}

func TestNormalizeCodeIsIdempotent(t *testing.T) {
	inputs := []string{"600000", "SH600000", "1.600000", "600000.SH", "000001.SZ", "sz000001"}
	for _, in := range inputs {
		once := NormalizeCode(in)
		twice := NormalizeCode(once)
		require.Equal(t, once, twice, "idempotency failed for %q", in)
	}
}

func TestCodeRoundTripThroughVendorFormat(t *testing.T) {
	codes := []struct {
		bare     string
		exchange Exchange
	}{
		{"600000", ExchangeShanghai},
		{"000001", ExchangeShenzhen},
		{"300750", ExchangeShenzhen},
		{"430047", ExchangeBeijing},
	}
	for _, c := range codes {
		vendor := ToVendorFormat(c.bare, c.exchange)
		require.Equal(t, c.bare, NormalizeCode(vendor), "round trip failed for %q", c.bare)
	}
}

func TestToQuoteServerForm(t *testing.T) {
	require.Equal(t, "1.600000", ToQuoteServerForm("600000", ExchangeShanghai))
	require.Equal(t, "0.000001", ToQuoteServerForm("000001", ExchangeShenzhen))
}

func TestValidateCode(t *testing.T) {
	ok, reason := ValidateCode("600000.SH")
	require.True(t, ok)
	require.Empty(t, reason)

	ok, reason = ValidateCode("")
	require.False(t, ok)
	require.NotEmpty(t, reason)

	ok, reason = ValidateCode("12345")
	require.False(t, ok)
	require.NotEmpty(t, reason)
}
