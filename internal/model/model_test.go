package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStockQuoteToRecordCarriesMeta(t *testing.T) {
	captured := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	q := StockQuote{
		RecordMeta: RecordMeta{
			NaturalKey: map[string]string{"code": "600000", "trade_date": "2024-06-03"},
			CapturedAt: captured,
			Source:     DataSource("eastmoney"),
		},
		Code:  "600000",
		Name:  "Bank A",
		Close: 9.87,
	}

	rec := q.ToRecord()
	require.Equal(t, "600000", rec["code"])
	require.Equal(t, "Bank A", rec["name"])
	require.Equal(t, 9.87, rec["close"])
	require.Equal(t, captured, rec["captured_at"])
	require.Equal(t, "eastmoney", rec["source"])

	var _ CanonicalRecord = q
}

func TestAllFamiliesImplementCanonicalRecord(t *testing.T) {
	var records []CanonicalRecord
	records = append(records,
		StockQuote{}, MoneyFlow{}, FinancialIndicator{}, OptionQuote{},
		FutureQuote{}, NewsItem{}, MacroIndicator{}, FactorValue{},
		KGEntity{}, KGRelation{}, KGEvent{}, ESGRating{}, SocialMediaPost{},
	)
	require.Len(t, records, 13)
	for _, r := range records {
		require.NotNil(t, r.ToRecord())
	}
}

func TestNaturalKeyFillsFieldsAbsentFromTheStruct(t *testing.T) {
	m := MacroIndicator{
		RecordMeta: RecordMeta{
			NaturalKey: map[string]string{"region": "CN"},
		},
		IndicatorCode: "CPI",
	}
	rec := m.ToRecord()
	require.Equal(t, "CPI", rec["indicator_code"])
	require.Equal(t, "CN", rec["region"])
}
