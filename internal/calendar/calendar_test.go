package calendar

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestIsWeekend(t *testing.T) {
	c := New(nil)
	require.True(t, c.IsWeekend(date("2024-06-01"))) // Saturday
	require.True(t, c.IsWeekend(date("2024-06-02"))) // Sunday
	require.False(t, c.IsWeekend(date("2024-06-03"))) // Monday
}

func TestIsHoliday(t *testing.T) {
	c := New(nil)
	require.True(t, c.IsHoliday(date("2024-10-01"))) // National Day
	require.False(t, c.IsHoliday(date("2024-06-03")))
}

// TestIsTradingDay is the S6-adjacent property: a date is a trading day
// iff it is a weekday and not a statutory holiday.
func TestIsTradingDay(t *testing.T) {
	c := New(nil)
	require.True(t, c.IsTradingDay(date("2024-06-03")))
	require.False(t, c.IsTradingDay(date("2024-06-01"))) // weekend
	require.False(t, c.IsTradingDay(date("2024-10-01"))) // holiday
}

func TestGetPreviousTradingDaySkipsWeekendAndHoliday(t *testing.T) {
	c := New(nil)
	// 2024-10-01..07 are all National Day holidays or weekend.
	prev := c.GetPreviousTradingDay(date("2024-10-08"), DefaultMaxLookback)
	require.True(t, c.IsTradingDay(prev))
	require.True(t, prev.Before(date("2024-10-08")))
}

func TestGetNextTradingDay(t *testing.T) {
	c := New(nil)
	next := c.GetNextTradingDay(date("2024-09-14"), DefaultMaxLookback) // Saturday
	require.True(t, c.IsTradingDay(next))
	require.True(t, next.After(date("2024-09-14")))
}

func TestGetLatestTradingDayReturnsSameDayWhenTrading(t *testing.T) {
	c := New(nil)
	d := date("2024-06-03")
	require.True(t, c.GetLatestTradingDay(d).Equal(d))
}

func TestGetLatestTradingDayFallsBackOnHoliday(t *testing.T) {
	c := New(nil)
	latest := c.GetLatestTradingDay(date("2024-10-01"))
	require.True(t, c.IsTradingDay(latest))
	require.True(t, latest.Before(date("2024-10-01")))
}

func TestGetTradingDaysBetweenInclusiveAscending(t *testing.T) {
	c := New(nil)
	days := c.GetTradingDaysBetween(date("2024-06-03"), date("2024-06-07"))
	require.Len(t, days, 5)
	require.True(t, days[0].Equal(date("2024-06-03")))
	require.True(t, days[len(days)-1].Equal(date("2024-06-07")))
}

func TestGetRecentTradingDaysAscendingMostRecentLast(t *testing.T) {
	c := New(nil)
	days := c.GetRecentTradingDays(3, date("2024-06-07"))
	require.Len(t, days, 3)
	require.True(t, days[len(days)-1].Equal(date("2024-06-07")))
	for i := 1; i < len(days); i++ {
		require.True(t, days[i].After(days[i-1]))
	}
}

type stubCounter struct {
	counts map[string]int
}

func (s stubCounter) DistinctSymbolCount(d time.Time) (int, error) {
	return s.counts[d.Format("2006-01-02")], nil
}

func TestGetTradingDaysFromDBFiltersByMinStocks(t *testing.T) {
	c := New(nil)
	counter := stubCounter{counts: map[string]int{
		"2024-06-03": 4500,
		"2024-06-04": 10,
	}}
	days, err := c.GetTradingDaysFromDB(counter, date("2024-06-03"), date("2024-06-04"), 100)
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.True(t, days[0].Equal(date("2024-06-03")))
}

func TestGetTradingDaysFromDBPropagatesCounterError(t *testing.T) {
	c := New(nil)
	counter := errCounter{}
	_, err := c.GetTradingDaysFromDB(counter, date("2024-06-03"), date("2024-06-03"), 100)
	require.Error(t, err)
}

type errCounter struct{}

func (errCounter) DistinctSymbolCount(d time.Time) (int, error) {
	return 0, fmt.Errorf("db unavailable")
}
