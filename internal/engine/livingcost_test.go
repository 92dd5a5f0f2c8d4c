package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imminent-crash/server/internal/events"
)

func cost(name string, amount int64, cadence events.Cadence) events.LivingCost {
	return events.LivingCost{Name: name, Amount: decimal.NewFromInt(amount), Cadence: cadence}
}

func TestLedgerEnsureIsIdempotent(t *testing.T) {
	var ledger costLedger

	assert.True(t, ledger.ensure(cost("Rent", 900, events.CadenceMonthly)))
	assert.False(t, ledger.ensure(cost("Rent", 1200, events.CadenceMonthly)))

	// The original amount wins.
	c := ledger.byName("Rent")
	require.NotNil(t, c)
	requireAmount(t, "900", c.Amount)
}

func TestLedgerDueMovements(t *testing.T) {
	var ledger costLedger
	ledger.ensure(cost("Food", 30, events.CadenceDaily))
	ledger.ensure(cost("Gym", 35, events.CadenceWeekly))
	ledger.ensure(cost("Rent", 900, events.CadenceMonthly))

	daily := ledger.dueMovements(1)
	require.Len(t, daily, 1)
	assert.Equal(t, "Food", daily[0].Name)
	requireAmount(t, "-30", daily[0].Amount)

	weekly := ledger.dueMovements(14)
	require.Len(t, weekly, 2)
	assert.Equal(t, "Gym", weekly[1].Name)
	requireAmount(t, "-35", weekly[1].Amount)

	monthly := ledger.dueMovements(31)
	require.Len(t, monthly, 2)
	assert.Equal(t, "Rent", monthly[1].Name)

	// Offset 0 fires every cadence.
	assert.Len(t, ledger.dueMovements(0), 3)
}

func TestLedgerScale(t *testing.T) {
	var ledger costLedger
	ledger.ensure(cost("Food", 30, events.CadenceDaily))

	changed, ok := ledger.scale("Food", decimal.RequireFromString("1.1"))
	require.True(t, ok)
	requireAmount(t, "33", changed.Amount)

	_, ok = ledger.scale("Missing", decimal.NewFromInt(2))
	assert.False(t, ok)

	due := ledger.dueMovements(1)
	requireAmount(t, "-33", due[0].Amount)
}

func TestLedgerCollectNewReportsOnce(t *testing.T) {
	var ledger costLedger
	ledger.ensure(cost("Food", 30, events.CadenceDaily))
	ledger.ensure(cost("Gym", 35, events.CadenceWeekly))

	added := ledger.collectNew()
	require.Len(t, added, 2)
	assert.Empty(t, ledger.collectNew())

	ledger.ensure(cost("Rent", 900, events.CadenceMonthly))
	added = ledger.collectNew()
	require.Len(t, added, 1)
	assert.Equal(t, "Rent", added[0].Name)
}
