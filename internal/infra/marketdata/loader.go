// Package marketdata loads the historical coin price table from disk
// and serves it as a market.Provider. The table is immutable once
// loaded and shared by every session.
package marketdata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imminent-crash/server/internal/domain/market"
)

// Table is the in-memory price table keyed by calendar day.
type Table struct {
	catalog market.Catalog
	byDate  map[time.Time]market.Snapshot
	minDate time.Time
	maxDate time.Time
}

// Load reads the price table from a JSON file.
func Load(path string, catalog market.Catalog) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open market data file: %w", err)
	}
	defer f.Close()
	return Parse(f, catalog)
}

// Parse decodes the price table from its wire format: an array of
// objects, each mapping an ISO date to a {coin name: price} object.
// Coin names not in the catalog are ignored; missing prices mean the
// coin is delisted that day.
func Parse(r io.Reader, catalog market.Catalog) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []map[string]map[string]json.Number
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode market data: %w", err)
	}

	t := &Table{
		catalog: catalog,
		byDate:  make(map[time.Time]market.Snapshot, len(raw)),
	}

	for _, entry := range raw {
		for dateStr, prices := range entry {
			date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
			if err != nil {
				return nil, fmt.Errorf("invalid date %q in market data: %w", dateStr, err)
			}

			snap := market.Snapshot{Date: date, Prices: make(map[int]decimal.Decimal, len(prices))}
			for name, num := range prices {
				coin, ok := catalog.ByName(name)
				if !ok {
					continue
				}
				price, err := decimal.NewFromString(num.String())
				if err != nil {
					return nil, fmt.Errorf("invalid price for %s on %s: %w", name, dateStr, err)
				}
				snap.Prices[coin.ID] = price
			}
			t.byDate[date] = snap

			if t.minDate.IsZero() || date.Before(t.minDate) {
				t.minDate = date
			}
			if date.After(t.maxDate) {
				t.maxDate = date
			}
		}
	}

	if len(t.byDate) == 0 {
		return nil, fmt.Errorf("market data contains no price entries")
	}
	return t, nil
}

// PricesOn returns the snapshot for a day. Days without data yield an
// empty snapshot so the tick proceeds with zero priced coins.
func (t *Table) PricesOn(date time.Time) market.Snapshot {
	day := market.NormalizeDay(date)
	if snap, ok := t.byDate[day]; ok {
		return snap
	}
	return market.Snapshot{Date: day, Prices: map[int]decimal.Decimal{}}
}

// MinDate returns the first day with price data.
func (t *Table) MinDate() time.Time { return t.minDate }

// MaxDate returns the last day with price data.
func (t *Table) MaxDate() time.Time { return t.maxDate }

// Catalog returns the coin catalog the table was loaded against.
func (t *Table) Catalog() market.Catalog { return t.catalog }
