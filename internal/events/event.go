// Package events defines the delta events a session streams to its
// player, plus the bounded per-session lookback log the tick engine
// diffs against.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imminent-crash/server/internal/domain/market"
)

// Cadence is how often a living cost fires.
type Cadence string

const (
	CadenceDaily   Cadence = "DAILY"
	CadenceWeekly  Cadence = "WEEKLY"
	CadenceMonthly Cadence = "MONTHLY"
)

// BalanceMovement is one signed cash movement applied during a tick.
type BalanceMovement struct {
	Amount decimal.Decimal `json:"amount"`
	Name   string          `json:"name"`
}

// CoinMovement is one coin's price point visible on a tick.
type CoinMovement struct {
	CoinID int             `json:"coin_id"`
	Price  decimal.Decimal `json:"price"`
}

// CoinAmount values a held position at this tick's price.
type CoinAmount struct {
	CoinID int             `json:"coin_id"`
	Amount int64           `json:"amount"`
	Value  decimal.Decimal `json:"value"`
}

// LivingCost is a named recurring cash debit.
type LivingCost struct {
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
	Cadence Cadence         `json:"cadence"`
}

// Narrative is a one-off scripted flavor event.
type Narrative struct {
	Title   string `json:"title"`
	Details string `json:"details"`
}

// GameEvent describes everything that changed during one tick. It is
// immutable once emitted; the session keeps the last one to diff the
// next tick against.
type GameEvent struct {
	Date               time.Time         `json:"date"`
	CurrentBalance     decimal.Decimal   `json:"current_balance"`
	BalanceMovements   []BalanceMovement `json:"balance_movements,omitempty"`
	CoinMovements      []CoinMovement    `json:"coin_movements,omitempty"`
	NewCoins           []market.Coin     `json:"new_coins,omitempty"`
	NewLivingCosts     []LivingCost      `json:"new_living_costs,omitempty"`
	ChangedLivingCosts []LivingCost      `json:"changed_living_costs,omitempty"`
	CoinAmounts        []CoinAmount      `json:"coin_amounts,omitempty"`
	NewEvents          []Narrative       `json:"new_events,omitempty"`
	IsDead             bool              `json:"is_dead"`
	IsWinner           bool              `json:"is_winner"`
}

// CoinPrice returns the price point for a coin on this event.
func (e *GameEvent) CoinPrice(coinID int) (decimal.Decimal, bool) {
	if e == nil {
		return decimal.Decimal{}, false
	}
	for _, cm := range e.CoinMovements {
		if cm.CoinID == coinID {
			return cm.Price, true
		}
	}
	return decimal.Decimal{}, false
}

// HasCoin reports whether the coin was priced on this event.
func (e *GameEvent) HasCoin(coinID int) bool {
	_, ok := e.CoinPrice(coinID)
	return ok
}

// HasNarrative reports whether any narrative fired on this event.
func (e *GameEvent) HasNarrative() bool {
	return e != nil && len(e.NewEvents) > 0
}
