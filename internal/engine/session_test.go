package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imminent-crash/server/internal/domain/market"
	"github.com/imminent-crash/server/internal/events"
)

// stubProvider serves a flat price table with optional per-day
// overrides, so tests can stage exact day-over-day moves.
type stubProvider struct {
	min, max time.Time
	base     map[int]decimal.Decimal
	override map[string]map[int]decimal.Decimal
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		min: market.Day(2021, 2, 24),
		max: market.Day(2021, 12, 31),
		base: map[int]decimal.Decimal{
			1: decimal.NewFromInt(10),
			2: decimal.NewFromInt(5),
		},
		override: make(map[string]map[int]decimal.Decimal),
	}
}

func (p *stubProvider) setPrice(date time.Time, coinID int, price string) {
	key := date.Format("2006-01-02")
	if p.override[key] == nil {
		p.override[key] = make(map[int]decimal.Decimal)
	}
	p.override[key][coinID] = decimal.RequireFromString(price)
}

func (p *stubProvider) PricesOn(date time.Time) market.Snapshot {
	prices := make(map[int]decimal.Decimal, len(p.base))
	for id, price := range p.base {
		prices[id] = price
	}
	for id, price := range p.override[date.Format("2006-01-02")] {
		prices[id] = price
	}
	return market.Snapshot{Date: market.NormalizeDay(date), Prices: prices}
}

func (p *stubProvider) MinDate() time.Time { return p.min }
func (p *stubProvider) MaxDate() time.Time { return p.max }

func testCatalog() market.Catalog {
	return market.Catalog{
		{ID: 1, Name: "Alpha"},
		{ID: 2, Name: "Beta"},
	}
}

func testConfig() Config {
	return Config{
		TickPeriod:     time.Hour,
		InitialBalance: decimal.NewFromInt(50000),
		BaselineCost:   decimal.NewFromInt(100),
		LookbackLimit:  32,
		Script:         Script{},
		Catalog:        testCatalog(),
	}
}

var testStart = market.Day(2021, 3, 1)

// newRunningSession builds a session in the running phase without
// spawning the tick loop, so tests drive ticks directly.
func newRunningSession(provider market.Provider, cfg Config, days int) *Session {
	s := NewSession(uuid.New(), provider, testStart, testStart.AddDate(0, 0, days), cfg, zerolog.Nop())
	s.phase = PhaseRunning
	return s
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func findMovement(e *events.GameEvent, name string) (decimal.Decimal, bool) {
	for _, m := range e.BalanceMovements {
		if m.Name == name {
			return m.Amount, true
		}
	}
	return decimal.Zero, false
}

func TestTickAdvancesOneDay(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 100)

	e1, terminal := s.tick()
	require.NotNil(t, e1)
	require.False(t, terminal)
	assert.True(t, e1.Date.Equal(testStart), "first tick should land on the start date")

	e2, _ := s.tick()
	require.NotNil(t, e2)
	assert.True(t, e2.Date.Equal(testStart.AddDate(0, 0, 1)))
}

func TestBaselineCostChargedFromFirstTick(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 100)

	e, _ := s.tick()
	require.NotNil(t, e)

	require.Len(t, e.NewLivingCosts, 1)
	assert.Equal(t, "Living Costs", e.NewLivingCosts[0].Name)
	assert.Equal(t, events.CadenceDaily, e.NewLivingCosts[0].Cadence)
	requireAmount(t, "100", e.NewLivingCosts[0].Amount)

	charge, ok := findMovement(e, "Living Costs")
	require.True(t, ok, "baseline cost should be charged on its first day")
	requireAmount(t, "-100", charge)
	requireAmount(t, "49900", e.CurrentBalance)

	// Reported as new exactly once.
	e2, _ := s.tick()
	assert.Empty(t, e2.NewLivingCosts)
}

func TestBaselineEscalatesEverySeventhTick(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 100)

	var seventh *events.GameEvent
	for i := 0; i < 7; i++ {
		seventh, _ = s.tick()
	}

	// Seven days at the original amount, escalation applied after the
	// seventh charge.
	requireAmount(t, "49300", seventh.CurrentBalance)
	require.Len(t, seventh.ChangedLivingCosts, 1)
	assert.Equal(t, "Living Costs", seventh.ChangedLivingCosts[0].Name)
	requireAmount(t, "110", seventh.ChangedLivingCosts[0].Amount)

	eighth, _ := s.tick()
	charge, ok := findMovement(eighth, "Living Costs")
	require.True(t, ok)
	requireAmount(t, "-110", charge)
	requireAmount(t, "49190", eighth.CurrentBalance)
}

func TestBuySettlesOnNextTick(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 100)

	e1, _ := s.tick()
	require.NotNil(t, e1)

	require.NoError(t, s.SubmitBuy(1, 2))

	// Nothing settles until the next tick.
	_, pending := findMovement(e1, "Coin purchase")
	assert.False(t, pending)

	e2, _ := s.tick()
	debit, ok := findMovement(e2, "Coin purchase")
	require.True(t, ok)
	requireAmount(t, "-20", debit)

	require.Len(t, e2.CoinAmounts, 1)
	assert.Equal(t, 1, e2.CoinAmounts[0].CoinID)
	assert.Equal(t, int64(2), e2.CoinAmounts[0].Amount)
	requireAmount(t, "20", e2.CoinAmounts[0].Value)

	requireAmount(t, "49780", e2.CurrentBalance)
}

func TestBuyDebitUsesSubmissionPrice(t *testing.T) {
	provider := newStubProvider()
	// The price doubles on the settlement day; the debit must not.
	provider.setPrice(testStart.AddDate(0, 0, 1), 1, "20")
	s := newRunningSession(provider, testConfig(), 100)

	s.tick()
	require.NoError(t, s.SubmitBuy(1, 3))

	e, _ := s.tick()
	debit, ok := findMovement(e, "Coin purchase")
	require.True(t, ok)
	requireAmount(t, "-30", debit)
}

func TestSellSettlesAtLastEmittedPrice(t *testing.T) {
	provider := newStubProvider()
	provider.setPrice(testStart.AddDate(0, 0, 1), 1, "12")
	s := newRunningSession(provider, testConfig(), 100)

	s.tick()
	require.NoError(t, s.SubmitBuy(1, 3))
	s.tick() // holdings now 3, last emitted price is 12

	require.NoError(t, s.SubmitSell(1, 3))
	e, _ := s.tick() // settlement day price back at 10

	proceeds, ok := findMovement(e, "Coin sale")
	require.True(t, ok)
	requireAmount(t, "36", proceeds)

	// Round trip: holdings are back to zero and the net balance effect
	// of the trade is (sell price - buy price) x quantity = 6, on top
	// of three days of living costs and no other movements.
	require.Len(t, e.CoinAmounts, 1)
	assert.Equal(t, 1, e.CoinAmounts[0].CoinID)
	assert.Equal(t, int64(0), e.CoinAmounts[0].Amount)
	requireAmount(t, "0", e.CoinAmounts[0].Value)
	requireAmount(t, "49706", e.CurrentBalance)
}

func TestUnderfundedSellIsDropped(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 100)

	s.tick()
	require.NoError(t, s.SubmitSell(1, 5))

	e, _ := s.tick()
	_, settled := findMovement(e, "Coin sale")
	assert.False(t, settled, "sell without holdings should be dropped, not filled")
	requireAmount(t, "49800", e.CurrentBalance)
}

func TestDeathOnNegativeBalance(t *testing.T) {
	cfg := testConfig()
	cfg.InitialBalance = decimal.NewFromInt(50)
	s := newRunningSession(newStubProvider(), cfg, 100)

	e, terminal := s.tick()
	require.NotNil(t, e)
	assert.True(t, e.IsDead)
	assert.True(t, terminal)
	assert.Equal(t, PhaseDead, s.Phase())

	// No further ticks once dead.
	e2, terminal := s.tick()
	assert.Nil(t, e2)
	assert.True(t, terminal)

	score := s.Score()
	assert.True(t, score.IsDead)
	requireAmount(t, "-50", score.CurrentBalance)
}

func TestZeroBalanceSurvives(t *testing.T) {
	cfg := testConfig()
	cfg.InitialBalance = decimal.NewFromInt(100)
	s := newRunningSession(newStubProvider(), cfg, 100)

	e, terminal := s.tick()
	assert.False(t, e.IsDead)
	assert.False(t, terminal)
	requireAmount(t, "0", e.CurrentBalance)
}

func TestWinAtEndOfData(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 2)

	e1, _ := s.tick()
	assert.False(t, e1.IsWinner)
	e2, _ := s.tick()
	assert.False(t, e2.IsWinner)

	e3, terminal := s.tick()
	require.NotNil(t, e3)
	assert.True(t, e3.IsWinner)
	assert.True(t, terminal)
	assert.Equal(t, PhaseWon, s.Phase())
}

func TestHighWaterMarkExcludesCurrentTick(t *testing.T) {
	cfg := testConfig()
	cfg.Script = NewScript([]ScriptEntry{
		{Day: 0, Title: "Signing bonus", BalanceDelta: decimal.NewFromInt(1000)},
	})
	s := newRunningSession(newStubProvider(), cfg, 100)

	s.tick() // +1000 -100, balance 50900, high water still 50000
	requireAmount(t, "50000", s.Score().HighestBalance)

	s.tick() // the previous peak is credited before this tick's net
	score := s.Score()
	requireAmount(t, "50900", score.HighestBalance)
	requireAmount(t, "50800", score.CurrentBalance)
}

func TestScriptedEventApplies(t *testing.T) {
	cfg := testConfig()
	cfg.Script = NewScript([]ScriptEntry{
		{Day: 1, Title: "Side job", Details: "Cash for a weekend gig.", BalanceDelta: decimal.NewFromInt(500)},
		{Day: 1, Title: "Gym membership", CostMutation: &CostMutation{
			Add: &events.LivingCost{
				Name:    "Gym membership",
				Amount:  decimal.NewFromInt(35),
				Cadence: events.CadenceWeekly,
			},
		}},
	})
	s := newRunningSession(newStubProvider(), cfg, 100)

	e1, _ := s.tick()
	assert.Empty(t, e1.NewEvents)

	e2, _ := s.tick()
	require.Len(t, e2.NewEvents, 2)
	assert.Equal(t, "Side job", e2.NewEvents[0].Title)

	windfall, ok := findMovement(e2, "Side job")
	require.True(t, ok)
	requireAmount(t, "500", windfall)

	var gym *events.LivingCost
	for i := range e2.NewLivingCosts {
		if e2.NewLivingCosts[i].Name == "Gym membership" {
			gym = &e2.NewLivingCosts[i]
		}
	}
	require.NotNil(t, gym, "scripted cost should be reported as new")
	assert.Equal(t, events.CadenceWeekly, gym.Cadence)

	// Weekly cadence does not bill on the day it was added.
	_, billed := findMovement(e2, "Gym membership")
	assert.False(t, billed)
}

func TestPausedTickDoesNothing(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 100)

	s.tick()
	require.NoError(t, s.Pause())
	require.NoError(t, s.Pause()) // idempotent

	e, terminal := s.tick()
	assert.Nil(t, e)
	assert.False(t, terminal)
	assert.Equal(t, 0, s.Score().DaysAlive, "paused ticks must not advance the calendar")

	require.NoError(t, s.Continue())
	e2, _ := s.tick()
	require.NotNil(t, e2)
	assert.True(t, e2.Date.Equal(testStart.AddDate(0, 0, 1)))
}

func TestScoreBeforeFirstTick(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 100)

	score := s.Score()
	assert.Equal(t, -1, score.DaysAlive)
	requireAmount(t, "50000", score.CurrentBalance)
	requireAmount(t, "50000", score.HighestBalance)
	assert.False(t, score.IsDead)
}

func TestOrderValidation(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 100)

	// No prices have been emitted yet.
	assert.ErrorIs(t, s.SubmitBuy(1, 1), ErrInvalidOrder)

	s.tick()
	assert.ErrorIs(t, s.SubmitBuy(1, 0), ErrInvalidOrder)
	assert.ErrorIs(t, s.SubmitSell(2, -1), ErrInvalidOrder)
	assert.ErrorIs(t, s.SubmitBuy(99, 1), ErrInvalidOrder)
	assert.ErrorIs(t, s.SubmitSell(99, 1), ErrInvalidOrder)
	assert.NoError(t, s.SubmitBuy(1, 1))

	s.Quit()
	assert.ErrorIs(t, s.SubmitBuy(1, 1), ErrSessionTerminated)
	assert.ErrorIs(t, s.SubmitSell(1, 1), ErrSessionTerminated)
	assert.ErrorIs(t, s.Pause(), ErrSessionTerminated)
	assert.ErrorIs(t, s.Continue(), ErrSessionTerminated)
}

func TestRisingCoinNarrative(t *testing.T) {
	provider := newStubProvider()
	provider.setPrice(testStart.AddDate(0, 0, 1), 1, "10.31")
	provider.setPrice(testStart.AddDate(0, 0, 2), 1, "10.62")
	s := newRunningSession(provider, testConfig(), 100)

	e1, _ := s.tick()
	assert.Empty(t, e1.NewEvents, "no narrative without a previous day to compare")

	e2, _ := s.tick()
	require.Len(t, e2.NewEvents, 1)
	assert.Equal(t, "Coin rising!", e2.NewEvents[0].Title)
	assert.Equal(t, "Alpha is going to the moon!", e2.NewEvents[0].Details)

	// Throttled while a narrative sits in the recent window.
	e3, _ := s.tick()
	assert.Empty(t, e3.NewEvents)
}

func TestStartQuitClosesStream(t *testing.T) {
	cfg := testConfig()
	cfg.TickPeriod = 10 * time.Millisecond
	s := NewSession(uuid.New(), newStubProvider(), testStart, testStart.AddDate(0, 0, 100), cfg, zerolog.Nop())

	stream, err := s.Start(context.Background())
	require.NoError(t, err)

	_, err = s.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	select {
	case e, ok := <-stream:
		require.True(t, ok)
		require.NotNil(t, e)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first event")
	}

	s.Quit()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				assert.Equal(t, PhaseTerminated, s.Phase())
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after quit")
		}
	}
}

func TestTicksContinueWithoutStreamConsumer(t *testing.T) {
	cfg := testConfig()
	cfg.TickPeriod = 5 * time.Millisecond
	s := NewSession(uuid.New(), newStubProvider(), testStart, testStart.AddDate(0, 0, 10000), cfg, zerolog.Nop())

	// Nobody reads the stream; the calendar must still advance well
	// past the channel buffer.
	_, err := s.Start(context.Background())
	require.NoError(t, err)
	defer s.Quit()

	require.Eventually(t, func() bool {
		return s.Score().DaysAlive > eventBuffer
	}, 2*time.Second, 10*time.Millisecond, "tick loop stalled once the stream buffer filled")

	first := s.Score().DaysAlive
	require.Eventually(t, func() bool {
		return s.Score().DaysAlive > first
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeliverDropsOldestWhenBacklogged(t *testing.T) {
	s := newRunningSession(newStubProvider(), testConfig(), 10000)

	var last *events.GameEvent
	for i := 0; i < eventBuffer+5; i++ {
		e, _ := s.tick()
		require.NotNil(t, e)
		s.deliver(e)
		last = e
	}

	// The buffer holds the most recent events; the head has moved past
	// the evicted ones and the newest is still there.
	require.Len(t, s.eventsCh, eventBuffer)
	head := <-s.eventsCh
	assert.True(t, head.Date.After(testStart.AddDate(0, 0, 3)))

	newest := head
	for len(s.eventsCh) > 0 {
		newest = <-s.eventsCh
	}
	assert.True(t, newest.Date.Equal(last.Date))
}

func TestStartAfterQuitFails(t *testing.T) {
	s := NewSession(uuid.New(), newStubProvider(), testStart, testStart.AddDate(0, 0, 100), testConfig(), zerolog.Nop())
	s.Quit()

	_, err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrSessionTerminated)
}
