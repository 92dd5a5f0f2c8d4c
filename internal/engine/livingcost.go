package engine

import (
	"github.com/shopspring/decimal"

	"github.com/imminent-crash/server/internal/events"
)

// livingCost tracks one recurring cost plus whether it was added on
// the current tick (new costs are reported once, then become active).
type livingCost struct {
	events.LivingCost
	justAdded bool
}

// costLedger is the ordered set of a session's recurring costs. It is
// only touched from inside the tick, under the session lock.
type costLedger struct {
	costs []*livingCost
}

// ensure adds the cost if no cost with that name exists yet. Returns
// true when the cost was added.
func (cl *costLedger) ensure(cost events.LivingCost) bool {
	if cl.byName(cost.Name) != nil {
		return false
	}
	cl.costs = append(cl.costs, &livingCost{LivingCost: cost, justAdded: true})
	return true
}

func (cl *costLedger) byName(name string) *livingCost {
	for _, c := range cl.costs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// scale multiplies a named cost's amount by factor. Returns the
// updated cost and whether it existed.
func (cl *costLedger) scale(name string, factor decimal.Decimal) (events.LivingCost, bool) {
	c := cl.byName(name)
	if c == nil {
		return events.LivingCost{}, false
	}
	c.Amount = c.Amount.Mul(factor)
	return c.LivingCost, true
}

// dueMovements returns the debit movements for every cost whose
// cadence fires at the given day offset. Daily costs always fire;
// weekly fire when offset%7==0, monthly when offset%31==0.
func (cl *costLedger) dueMovements(dayOffset int) []events.BalanceMovement {
	var movements []events.BalanceMovement
	for _, c := range cl.costs {
		due := false
		switch c.Cadence {
		case events.CadenceDaily:
			due = true
		case events.CadenceWeekly:
			due = dayOffset%7 == 0
		case events.CadenceMonthly:
			due = dayOffset%31 == 0
		}
		if due {
			movements = append(movements, events.BalanceMovement{
				Amount: c.Amount.Neg(),
				Name:   c.Name,
			})
		}
	}
	return movements
}

// collectNew returns the costs added this tick and marks them active.
func (cl *costLedger) collectNew() []events.LivingCost {
	var added []events.LivingCost
	for _, c := range cl.costs {
		if c.justAdded {
			added = append(added, c.LivingCost)
			c.justAdded = false
		}
	}
	return added
}
