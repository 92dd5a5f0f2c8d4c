// Package engine contains the per-session simulation core: the tick
// loop advancing one calendar day per wall-clock period, order
// settlement with one-tick latency, event diffing against the previous
// tick, and the command surface that is safe to call while the loop
// runs.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imminent-crash/server/internal/domain/market"
	"github.com/imminent-crash/server/internal/events"
	"github.com/imminent-crash/server/internal/platform/metrics"
)

// Phase is the lifecycle phase of a session.
type Phase string

const (
	PhaseCreated    Phase = "CREATED"
	PhaseRunning    Phase = "RUNNING"
	PhasePaused     Phase = "PAUSED"
	PhaseDead       Phase = "DEAD"
	PhaseWon        Phase = "WON"
	PhaseTerminated Phase = "TERMINATED"
)

// Terminal reports whether no further ticks can occur in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseDead || p == PhaseWon || p == PhaseTerminated
}

const (
	// baselineCostName is the recurring cost every session starts with.
	baselineCostName = "Living Costs"

	// escalationInterval and escalationFactor drive the weekly rise of
	// the baseline cost: every 7th tick it grows by x1.1, after that
	// tick's charge has been taken at the old amount.
	escalationInterval = 7

	// narrativeLookback is how many recent events must be free of
	// narratives before a new market narrative may fire.
	narrativeLookback = 5

	eventBuffer = 16
)

var (
	escalationFactor = decimal.RequireFromString("1.1")

	// risingThreshold is the day-over-day price increase above which
	// the "Coin rising!" narrative fires.
	risingThreshold = decimal.RequireFromString("0.2")
)

// Config carries the tunables of a session.
type Config struct {
	TickPeriod     time.Duration
	InitialBalance decimal.Decimal
	BaselineCost   decimal.Decimal
	LookbackLimit  int
	Script         Script
	Catalog        market.Catalog
}

// DefaultConfig returns the reference settings: one simulated day per
// wall-clock second, 50000 starting cash, 100/day baseline cost.
func DefaultConfig() Config {
	return Config{
		TickPeriod:     time.Second,
		InitialBalance: decimal.NewFromInt(50000),
		BaselineCost:   decimal.NewFromInt(100),
		LookbackLimit:  events.DefaultLogCapacity,
		Script:         DefaultScript(),
		Catalog:        market.DefaultCatalog(),
	}
}

// Score is the player-facing summary of a session, valid at any phase.
type Score struct {
	DaysAlive      int             `json:"days_alive"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	HighestBalance decimal.Decimal `json:"highest_balance"`
	IsDead         bool            `json:"is_dead"`
}

// Session is one player's independent run. Its state is owned by the
// run goroutine plus serialized command access; two sessions never
// share state.
type Session struct {
	id       uuid.UUID
	cfg      Config
	provider market.Provider
	log      zerolog.Logger

	mu             sync.Mutex
	phase          Phase
	dead           bool
	startDate      time.Time
	endDate        time.Time
	currentDate    time.Time
	balance        decimal.Decimal
	highestBalance decimal.Decimal
	holdings       map[int]int64
	costs          costLedger
	tickCount      int64
	started        bool
	cancel         context.CancelFunc

	intake  orderIntake
	history *events.Log

	eventsCh chan *events.GameEvent
}

// NewSession creates a session seeded with the given simulation
// window. The calendar cursor starts one day before startDate, so the
// first tick lands exactly on startDate and DaysAlive is -1 until
// then.
func NewSession(id uuid.UUID, provider market.Provider, startDate, endDate time.Time, cfg Config, log zerolog.Logger) *Session {
	return &Session{
		id:             id,
		cfg:            cfg,
		provider:       provider,
		log:            log.With().Str("session", id.String()).Logger(),
		phase:          PhaseCreated,
		startDate:      market.NormalizeDay(startDate),
		endDate:        market.NormalizeDay(endDate),
		currentDate:    market.NormalizeDay(startDate).AddDate(0, 0, -1),
		balance:        cfg.InitialBalance,
		highestBalance: cfg.InitialBalance,
		holdings:       make(map[int]int64),
		history:        events.NewLog(cfg.LookbackLimit),
		eventsCh:       make(chan *events.GameEvent, eventBuffer),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start launches the tick loop and returns the event stream. The
// stream has exactly one consumer; it closes when the session dies,
// wins, or is quit. A consumer that stops reading loses the oldest
// buffered events; the tick loop never waits on it.
func (s *Session) Start(ctx context.Context) (<-chan *events.GameEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() {
		return nil, ErrSessionTerminated
	}
	if s.started {
		return nil, ErrAlreadyStarted
	}
	s.started = true
	s.phase = PhaseRunning

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)

	s.log.Info().
		Time("start_date", s.startDate).
		Time("end_date", s.endDate).
		Msg("session started")
	return s.eventsCh, nil
}

// run is the single-writer loop: it alone mutates session state, one
// atomic tick at a time, until a terminal phase or cancellation.
func (s *Session) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()
	defer close(s.eventsCh)

	for {
		select {
		case <-ctx.Done():
			s.terminate()
			return
		case <-ticker.C:
			event, terminal := s.tick()
			if event != nil {
				s.deliver(event)
			}
			if terminal {
				return
			}
		}
	}
}

// deliver hands an event to the stream without ever blocking the tick
// loop. When the consumer is slow or gone and the buffer is full, the
// oldest buffered event is dropped so the simulation keeps advancing.
func (s *Session) deliver(event *events.GameEvent) {
	for {
		select {
		case s.eventsCh <- event:
			return
		default:
		}
		select {
		case <-s.eventsCh:
			s.log.Debug().Msg("stream backlog full, dropped oldest event")
		default:
		}
	}
}

// tick advances the simulation by one day and builds the delta event.
// A tick while paused is consumed: no event, no date advance, no
// settlement. Returns the event (nil when skipped) and whether the
// session reached a terminal phase.
func (s *Session) tick() (*events.GameEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning {
		return nil, s.phase.Terminal()
	}

	started := time.Now()
	prev := s.history.Last()

	var movements []events.BalanceMovement
	var narratives []events.Narrative
	var changedCosts []events.LivingCost

	// Settle queued orders from the previous tick, sells before buys.
	buys, sells := s.intake.drain()
	for _, order := range sells {
		if s.holdings[order.CoinID] < order.Quantity {
			metrics.Get().RecordOrderDropped()
			s.log.Debug().Int("coin", order.CoinID).Int64("qty", order.Quantity).
				Msg("sell order dropped: insufficient holdings")
			continue
		}
		price, ok := prev.CoinPrice(order.CoinID)
		if !ok {
			metrics.Get().RecordOrderDropped()
			s.log.Debug().Int("coin", order.CoinID).Msg("sell order dropped: coin not priced")
			continue
		}
		s.holdings[order.CoinID] -= order.Quantity
		proceeds := price.Mul(decimal.NewFromInt(order.Quantity))
		movements = append(movements, events.BalanceMovement{Amount: proceeds, Name: "Coin sale"})
		metrics.Get().RecordOrderSettled()
	}
	for _, order := range buys {
		s.holdings[order.CoinID] += order.Quantity
		cost := order.Price.Mul(decimal.NewFromInt(order.Quantity))
		movements = append(movements, events.BalanceMovement{Amount: cost.Neg(), Name: "Coin purchase"})
		metrics.Get().RecordOrderSettled()
	}

	// Advance the calendar.
	s.currentDate = market.NextDay(s.currentDate)
	s.tickCount++
	dayOffset := market.DaysBetween(s.startDate, s.currentDate)

	// Living costs: the baseline exists from the first tick on.
	s.costs.ensure(events.LivingCost{
		Name:    baselineCostName,
		Amount:  s.cfg.BaselineCost,
		Cadence: events.CadenceDaily,
	})

	// Scripted life events for this day offset.
	for _, entry := range s.cfg.Script.On(dayOffset) {
		narratives = append(narratives, entry.Narrative())
		if !entry.BalanceDelta.IsZero() {
			movements = append(movements, events.BalanceMovement{
				Amount: entry.BalanceDelta,
				Name:   entry.Title,
			})
		}
		if m := entry.CostMutation; m != nil {
			if m.Add != nil {
				s.costs.ensure(*m.Add)
			}
			if m.Scale != nil {
				if changed, ok := s.costs.scale(m.Scale.Name, m.Scale.Factor); ok {
					changedCosts = append(changedCosts, changed)
				}
			}
		}
	}

	// Price snapshot and new-coin diff against the previous event.
	snapshot := s.provider.PricesOn(s.currentDate)
	var coinMovements []events.CoinMovement
	var newCoins []market.Coin
	for _, coin := range s.cfg.Catalog {
		price, ok := snapshot.Price(coin.ID)
		if !ok {
			continue
		}
		coinMovements = append(coinMovements, events.CoinMovement{CoinID: coin.ID, Price: price})
		if !prev.HasCoin(coin.ID) {
			newCoins = append(newCoins, coin)
		}
	}

	// Holding valuations, included only when changed vs. last tick.
	coinAmounts := s.valuationChanges(prev, snapshot)

	// Recurring cost debits due at this day offset.
	movements = append(movements, s.costs.dueMovements(dayOffset)...)

	// The high-water mark is taken before this tick's net movement, so
	// a tick that nets negative still credits the pre-tick high.
	if s.balance.GreaterThan(s.highestBalance) {
		s.highestBalance = s.balance
	}
	net := decimal.Zero
	for _, m := range movements {
		net = net.Add(m.Amount)
	}
	s.balance = s.balance.Add(net)

	// Weekly baseline escalation, after the charge at the old amount.
	if s.tickCount%escalationInterval == 0 {
		if changed, ok := s.costs.scale(baselineCostName, escalationFactor); ok {
			changedCosts = append(changedCosts, changed)
		}
	}

	// Market narrative, throttled to one per lookback window.
	if len(narratives) == 0 && !s.history.NarrativeInLast(narrativeLookback) {
		if n, ok := s.risingCoinNarrative(prev, coinMovements); ok {
			narratives = append(narratives, n)
		}
	}

	isDead := s.balance.IsNegative()
	isWinner := !s.currentDate.Before(s.endDate)

	event := &events.GameEvent{
		Date:               s.currentDate,
		CurrentBalance:     s.balance,
		BalanceMovements:   movements,
		CoinMovements:      coinMovements,
		NewCoins:           newCoins,
		NewLivingCosts:     s.costs.collectNew(),
		ChangedLivingCosts: changedCosts,
		CoinAmounts:        coinAmounts,
		NewEvents:          narratives,
		IsDead:             isDead,
		IsWinner:           isWinner,
	}
	s.history.Append(event)
	metrics.Get().RecordTick(time.Since(started))

	switch {
	case isDead:
		s.dead = true
		s.phase = PhaseDead
		s.log.Info().Time("date", s.currentDate).Str("balance", s.balance.String()).
			Msg("session dead")
	case isWinner:
		s.phase = PhaseWon
		s.log.Info().Time("date", s.currentDate).Str("balance", s.balance.String()).
			Msg("session won")
	}
	return event, s.phase.Terminal()
}

// valuationChanges values every held position at this tick's prices
// and returns the entries that differ from the previous event.
func (s *Session) valuationChanges(prev *events.GameEvent, snapshot market.Snapshot) []events.CoinAmount {
	prevByCoin := make(map[int]events.CoinAmount)
	if prev != nil {
		for _, ca := range prev.CoinAmounts {
			prevByCoin[ca.CoinID] = ca
		}
	}

	var changed []events.CoinAmount
	for _, coin := range s.cfg.Catalog {
		qty, held := s.holdings[coin.ID]
		if !held {
			continue
		}
		value := decimal.Zero
		if price, ok := snapshot.Price(coin.ID); ok {
			value = price.Mul(decimal.NewFromInt(qty))
		}
		ca := events.CoinAmount{CoinID: coin.ID, Amount: qty, Value: value}
		if last, ok := prevByCoin[coin.ID]; ok && last.Amount == ca.Amount && last.Value.Equal(ca.Value) {
			continue
		}
		changed = append(changed, ca)
	}
	return changed
}

// risingCoinNarrative finds the coin with the largest day-over-day
// increase and fires when it beats the threshold.
func (s *Session) risingCoinNarrative(prev *events.GameEvent, current []events.CoinMovement) (events.Narrative, bool) {
	if prev == nil {
		return events.Narrative{}, false
	}
	var bestName string
	var bestGain decimal.Decimal
	for _, cm := range current {
		prevPrice, ok := prev.CoinPrice(cm.CoinID)
		if !ok {
			continue
		}
		gain := cm.Price.Sub(prevPrice)
		if bestName == "" || gain.GreaterThan(bestGain) {
			coin, _ := s.cfg.Catalog.ByID(cm.CoinID)
			bestName, bestGain = coin.Name, gain
		}
	}
	if bestName == "" || !bestGain.GreaterThan(risingThreshold) {
		return events.Narrative{}, false
	}
	return events.Narrative{
		Title:   "Coin rising!",
		Details: bestName + " is going to the moon!",
	}, true
}

// SubmitBuy validates and queues a purchase. The debit is fixed at the
// price visible on the last emitted event; settlement happens on the
// next tick.
func (s *Session) SubmitBuy(coinID int, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() {
		metrics.Get().RecordOrderRejected()
		return ErrSessionTerminated
	}
	if quantity <= 0 {
		metrics.Get().RecordOrderRejected()
		return ErrInvalidOrder
	}
	price, ok := s.history.Last().CoinPrice(coinID)
	if !ok {
		metrics.Get().RecordOrderRejected()
		return ErrInvalidOrder
	}
	s.intake.addBuy(BuyOrder{CoinID: coinID, Quantity: quantity, Price: price})
	metrics.Get().RecordOrderAccepted()
	return nil
}

// SubmitSell validates and queues a sale. Whether it settles depends
// on the holdings at settlement time; an under-collateralized sell is
// silently dropped, never partially filled.
func (s *Session) SubmitSell(coinID int, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() {
		metrics.Get().RecordOrderRejected()
		return ErrSessionTerminated
	}
	if quantity <= 0 {
		metrics.Get().RecordOrderRejected()
		return ErrInvalidOrder
	}
	if !s.history.Last().HasCoin(coinID) {
		metrics.Get().RecordOrderRejected()
		return ErrInvalidOrder
	}
	s.intake.addSell(SellOrder{CoinID: coinID, Quantity: quantity})
	metrics.Get().RecordOrderAccepted()
	return nil
}

// Pause suspends ticking. Idempotent; the simulation date does not
// move while paused.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return ErrSessionTerminated
	}
	if s.phase == PhaseRunning {
		s.phase = PhasePaused
		s.log.Debug().Msg("session paused")
	}
	return nil
}

// Continue resumes ticking. Idempotent.
func (s *Session) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return ErrSessionTerminated
	}
	if s.phase == PhasePaused {
		s.phase = PhaseRunning
		s.log.Debug().Msg("session continued")
	}
	return nil
}

// Quit cancels the tick loop from any phase. Outstanding orders are
// discarded and the event stream completes within one tick period.
func (s *Session) Quit() {
	s.mu.Lock()
	cancel := s.cancel
	if !s.phase.Terminal() {
		s.phase = PhaseTerminated
	}
	s.intake.discard()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.log.Info().Msg("session quit")
}

// terminate marks the session terminated after cancellation; death and
// win outcomes recorded by the final tick are preserved.
func (s *Session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.Terminal() {
		s.phase = PhaseTerminated
	}
	s.intake.discard()
}

// Score summarizes the session. Valid at any phase; before the first
// tick DaysAlive is -1.
func (s *Session) Score() Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Score{
		DaysAlive:      market.DaysBetween(s.startDate, s.currentDate),
		CurrentBalance: s.balance,
		HighestBalance: s.highestBalance,
		IsDead:         s.dead,
	}
}
