// Package calendar is the single source of truth for trading-day
// arithmetic (spec.md section 4.10), ported from
// backend/openfinance/datacenter/task/trading_calendar.py's holiday-set
// and bounded-lookback logic.
package calendar

import (
	"fmt"
	"time"

	"github.com/openfinance/datahub/internal/logging"
)

// DefaultMaxLookback bounds get_previous_trading_day / get_next_trading_day
// scans, matching the original's max_lookback=30 default.
const DefaultMaxLookback = 30

// statutoryHolidays2024 through 2026 mirror CHINESE_HOLIDAYS_2024/2025/2026.
var statutoryHolidays2024 = dateSet(
	"2024-01-01",
	"2024-02-10", "2024-02-11", "2024-02-12", "2024-02-13", "2024-02-14", "2024-02-15", "2024-02-16", "2024-02-17",
	"2024-04-04", "2024-04-05", "2024-04-06",
	"2024-05-01", "2024-05-02", "2024-05-03", "2024-05-04", "2024-05-05",
	"2024-06-10",
	"2024-09-15", "2024-09-16", "2024-09-17",
	"2024-10-01", "2024-10-02", "2024-10-03", "2024-10-04", "2024-10-07",
)

var statutoryHolidays2025 = dateSet(
	"2025-01-01",
	"2025-01-28", "2025-01-29", "2025-01-30", "2025-01-31", "2025-02-01", "2025-02-02", "2025-02-03", "2025-02-04",
	"2025-04-04", "2025-04-05", "2025-04-06",
	"2025-05-01", "2025-05-02", "2025-05-03", "2025-05-04", "2025-05-05",
	"2025-05-31", "2025-06-01", "2025-06-02",
	"2025-10-01", "2025-10-02", "2025-10-03", "2025-10-04", "2025-10-05", "2025-10-06", "2025-10-07", "2025-10-08",
)

var statutoryHolidays2026 = dateSet(
	"2026-01-01", "2026-01-02", "2026-01-03",
	"2026-02-16", "2026-02-17", "2026-02-18", "2026-02-19", "2026-02-20",
	"2026-04-05", "2026-04-06", "2026-04-07",
	"2026-05-01", "2026-05-02", "2026-05-03", "2026-05-04", "2026-05-05",
	"2026-06-19", "2026-06-20", "2026-06-21",
	"2026-10-01", "2026-10-02", "2026-10-03", "2026-10-04", "2026-10-05", "2026-10-06", "2026-10-07", "2026-10-08",
)

// allHolidays is the union of every year's statutory holiday set.
var allHolidays = unionSets(statutoryHolidays2024, statutoryHolidays2025, statutoryHolidays2026)

func dateSet(iso ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(iso))
	for _, d := range iso {
		s[d] = struct{}{}
	}
	return s
}

func unionSets(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}

func dayKey(d time.Time) string {
	return d.Format("2006-01-02")
}

// Calendar is the A-share trading calendar: weekdays minus statutory
// holidays. It is stateless and safe for concurrent use.
type Calendar struct {
	logger *logging.Logger
}

// New constructs a Calendar.
func New(logger *logging.Logger) *Calendar {
	if logger == nil {
		logger = logging.NewDefault("calendar")
	}
	return &Calendar{logger: logger}
}

// IsWeekend reports whether d falls on Saturday or Sunday.
func (c *Calendar) IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHoliday reports whether d is in the compiled statutory-holiday set.
func (c *Calendar) IsHoliday(d time.Time) bool {
	_, ok := allHolidays[dayKey(d)]
	return ok
}

// IsTradingDay reports whether d is neither a weekend nor a holiday.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	return !c.IsWeekend(d) && !c.IsHoliday(d)
}

// GetPreviousTradingDay returns the nearest trading day strictly before d,
// scanning at most maxLookback days back before giving up and returning the
// earliest date scanned (with a logged warning), matching the original's
// bounded-lookback fallback behavior.
func (c *Calendar) GetPreviousTradingDay(d time.Time, maxLookback int) time.Time {
	if maxLookback <= 0 {
		maxLookback = DefaultMaxLookback
	}
	current := d
	for i := 0; i < maxLookback; i++ {
		current = current.AddDate(0, 0, -1)
		if c.IsTradingDay(current) {
			return current
		}
	}
	c.logger.WithField("reference", d.Format("2006-01-02")).
		Warn(fmt.Sprintf("no trading day found in last %d days", maxLookback))
	return current
}

// GetNextTradingDay returns the nearest trading day strictly after d,
// bounded the same way as GetPreviousTradingDay.
func (c *Calendar) GetNextTradingDay(d time.Time, maxLookahead int) time.Time {
	if maxLookahead <= 0 {
		maxLookahead = DefaultMaxLookback
	}
	current := d
	for i := 0; i < maxLookahead; i++ {
		current = current.AddDate(0, 0, 1)
		if c.IsTradingDay(current) {
			return current
		}
	}
	c.logger.WithField("reference", d.Format("2006-01-02")).
		Warn(fmt.Sprintf("no trading day found in next %d days", maxLookahead))
	return current
}

// GetLatestTradingDay returns d itself if it is a trading day, otherwise
// the most recent trading day before it.
func (c *Calendar) GetLatestTradingDay(d time.Time) time.Time {
	if c.IsTradingDay(d) {
		return d
	}
	return c.GetPreviousTradingDay(d, DefaultMaxLookback)
}

// GetTradingDaysBetween returns every trading day from start to end,
// inclusive, in ascending order.
func (c *Calendar) GetTradingDaysBetween(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// GetRecentTradingDays returns the count most-recent trading days up to and
// including end, in ascending order.
func (c *Calendar) GetRecentTradingDays(count int, end time.Time) []time.Time {
	var days []time.Time
	current := end
	for len(days) < count {
		if c.IsTradingDay(current) {
			days = append(days, current)
		}
		current = current.AddDate(0, 0, -1)
	}
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days
}

// TradingDayCounter reports, for one calendar date, how many distinct
// symbols reported quotes — the collaborator GetTradingDaysFromDB queries
// to infer trading days directly from observed data rather than the
// statutory calendar.
type TradingDayCounter interface {
	DistinctSymbolCount(d time.Time) (int, error)
}

// GetTradingDaysFromDB treats a calendar date as a trading day only if at
// least minStocks distinct symbols reported quotes for it, per spec.md
// section 4.10's optional DB-inferred variant.
func (c *Calendar) GetTradingDaysFromDB(counter TradingDayCounter, start, end time.Time, minStocks int) ([]time.Time, error) {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		n, err := counter.DistinctSymbolCount(d)
		if err != nil {
			return nil, fmt.Errorf("calendar: distinct symbol count for %s: %w", dayKey(d), err)
		}
		if n >= minStocks {
			out = append(out, d)
		}
	}
	return out, nil
}
