package engine

import (
	"sync"

	"github.com/shopspring/decimal"
)

// BuyOrder is a queued purchase. Price is the unit price recorded at
// submission time; the debit at settlement uses it, not the price on
// the settlement day.
type BuyOrder struct {
	CoinID   int
	Quantity int64
	Price    decimal.Decimal
}

// SellOrder is a queued sale. It settles against the holdings and
// price visible at settlement time.
type SellOrder struct {
	CoinID   int
	Quantity int64
}

// orderIntake holds the orders submitted since the last tick. Callers
// append from arbitrary goroutines; the tick drains both queues
// exactly once per settlement pass. Orders settle in submission order
// within their queue.
type orderIntake struct {
	mu    sync.Mutex
	buys  []BuyOrder
	sells []SellOrder
}

func (q *orderIntake) addBuy(o BuyOrder) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buys = append(q.buys, o)
}

func (q *orderIntake) addSell(o SellOrder) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sells = append(q.sells, o)
}

// drain returns and clears both queues.
func (q *orderIntake) drain() (buys []BuyOrder, sells []SellOrder) {
	q.mu.Lock()
	defer q.mu.Unlock()
	buys, sells = q.buys, q.sells
	q.buys, q.sells = nil, nil
	return buys, sells
}

// discard drops all queued orders without settling them.
func (q *orderIntake) discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buys, q.sells = nil, nil
}
