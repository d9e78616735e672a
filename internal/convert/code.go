package convert

import (
	"fmt"
	"strings"
)

// Exchange identifies the listing venue inferred from a stock code's
// numeric prefix.
type Exchange string

const (
	ExchangeShanghai  Exchange = "SH"
	ExchangeShenzhen  Exchange = "SZ"
	ExchangeBeijing   Exchange = "BJ"
	ExchangeUnknown   Exchange = ""
)

// shanghaiPrefixes / shenzhenPrefixes / beijingPrefixes classify a bare
// six-digit code by its leading digits, per spec.md section 4.2.
var shanghaiPrefixes = []string{"60", "68", "50", "51", "52"}
var shenzhenPrefixes = []string{"00", "30", "12", "15", "16", "18", "20"}
var beijingPrefixes = []string{"4", "8"}

// ExchangeOf infers the exchange for a bare six-digit code.
func ExchangeOf(code string) Exchange {
	code = strings.TrimSpace(code)
	if len(code) < 1 {
		return ExchangeUnknown
	}
	for _, p := range shanghaiPrefixes {
		if strings.HasPrefix(code, p) {
			return ExchangeShanghai
		}
	}
	for _, p := range shenzhenPrefixes {
		if strings.HasPrefix(code, p) {
			return ExchangeShenzhen
		}
	}
	for _, p := range beijingPrefixes {
		if strings.HasPrefix(code, p) {
			return ExchangeBeijing
		}
	}
	return ExchangeUnknown
}

// isSixDigits reports whether s is exactly six ASCII digits.
func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeCode reduces any supported representation (bare, exchange
// prefix, quote-server form, vendor suffix) down to the bare six-digit
// code. NormalizeCode is idempotent: NormalizeCode(NormalizeCode(c)) ==
// NormalizeCode(c).
func NormalizeCode(code string) string {
	c := strings.TrimSpace(strings.ToUpper(code))
	if c == "" {
		return ""
	}

	// Quote-server form: "1.600000" / "0.000001".
	if len(c) > 2 && c[1] == '.' {
		bare := c[2:]
		if isSixDigits(bare) {
			return bare
		}
	}

	// Vendor-suffix form: "600000.SH".
	if idx := strings.LastIndex(c, "."); idx > 0 {
		bare := c[:idx]
		if isSixDigits(bare) {
			return bare
		}
	}

	// Exchange-prefix form: "SH600000".
	for _, prefix := range []string{"SH", "SZ", "BJ"} {
		if strings.HasPrefix(c, prefix) {
			bare := strings.TrimPrefix(c, prefix)
			if isSixDigits(bare) {
				return bare
			}
		}
	}

	if isSixDigits(c) {
		return c
	}
	return c
}

// ToVendorFormat renders the bare code with a trailing exchange suffix,
// e.g. "600000" -> "600000.SH".
func ToVendorFormat(code string, exchange Exchange) string {
	bare := NormalizeCode(code)
	if exchange == ExchangeUnknown {
		exchange = ExchangeOf(bare)
	}
	return fmt.Sprintf("%s.%s", bare, exchange)
}

// ToQuoteServerForm renders the quote-server form used by realtime push
// feeds: "1.XXXXXX" for Shanghai, "0.XXXXXX" for Shenzhen/Beijing.
func ToQuoteServerForm(code string, exchange Exchange) string {
	bare := NormalizeCode(code)
	if exchange == ExchangeUnknown {
		exchange = ExchangeOf(bare)
	}
	prefix := "0"
	if exchange == ExchangeShanghai {
		prefix = "1"
	}
	return fmt.Sprintf("%s.%s", prefix, bare)
}

// ValidateCode reports whether code is a recognizable stock code in any
// supported representation, and if not, why.
func ValidateCode(code string) (bool, string) {
	if strings.TrimSpace(code) == "" {
		return false, "empty code"
	}
	bare := NormalizeCode(code)
	if !isSixDigits(bare) {
		return false, fmt.Sprintf("code %q does not normalize to six digits", code)
	}
	if ExchangeOf(bare) == ExchangeUnknown {
		return false, fmt.Sprintf("code %q has no recognizable exchange prefix", bare)
	}
	return true, ""
}
