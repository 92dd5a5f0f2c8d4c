package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the set of coin prices visible on one calendar day.
// A coin absent from Prices is delisted that day.
type Snapshot struct {
	Date   time.Time
	Prices map[int]decimal.Decimal
}

// Price returns the price of a coin on this day, if it is listed.
func (s Snapshot) Price(coinID int) (decimal.Decimal, bool) {
	p, ok := s.Prices[coinID]
	return p, ok
}

// Provider exposes the per-day price table over a bounded date range.
// Implementations must be fully loaded before any session is created
// and safe for concurrent readers afterwards.
type Provider interface {
	// PricesOn returns the snapshot for a day. Days outside the data
	// range yield an empty snapshot, never an error.
	PricesOn(date time.Time) Snapshot
	MinDate() time.Time
	MaxDate() time.Time
}

// Day builds a normalized calendar day (UTC midnight). All dates in
// the simulation go through this so day arithmetic stays exact.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NormalizeDay truncates a timestamp to its UTC calendar day.
func NormalizeDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return Day(y, m, d)
}

// NextDay advances a calendar day by one.
func NextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

// DaysBetween returns b-a in whole days. Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
