package engine

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/imminent-crash/server/internal/events"
)

// CostScale rescales an existing living cost by a factor.
type CostScale struct {
	Name   string
	Factor decimal.Decimal
}

// CostMutation changes the living-cost set when a script entry fires:
// either a new recurring cost, a rescale of an existing one, or both.
type CostMutation struct {
	Add   *events.LivingCost
	Scale *CostScale
}

// ScriptEntry is one scripted life event keyed to a day offset from
// the session's start date. BalanceDelta is signed: negative for a
// one-off cost, positive for a windfall.
type ScriptEntry struct {
	Day          int
	Title        string
	Details      string
	BalanceDelta decimal.Decimal
	CostMutation *CostMutation
}

// Narrative converts the entry to its streamed form.
func (e ScriptEntry) Narrative() events.Narrative {
	return events.Narrative{Title: e.Title, Details: e.Details}
}

// Script is the declarative table of scripted events, looked up by
// day offset each tick. It replaces hardcoded magic day numbers.
type Script map[int][]ScriptEntry

// NewScript indexes entries by day offset, preserving order within a
// day.
func NewScript(entries []ScriptEntry) Script {
	s := make(Script, len(entries))
	for _, e := range entries {
		s[e.Day] = append(s[e.Day], e)
	}
	return s
}

// On returns the entries scripted for a day offset.
func (s Script) On(dayOffset int) []ScriptEntry {
	return s[dayOffset]
}

// Raw YAML mirror of ScriptEntry. Amounts decode as strings because
// the YAML decoder has no native decimal support.
type rawScriptEntry struct {
	Day          int              `yaml:"day"`
	Title        string           `yaml:"title"`
	Details      string           `yaml:"details"`
	BalanceDelta string           `yaml:"balance_delta"`
	CostMutation *rawCostMutation `yaml:"cost_mutation"`
}

type rawCostMutation struct {
	Add   *rawLivingCost `yaml:"add"`
	Scale *rawCostScale  `yaml:"scale"`
}

type rawLivingCost struct {
	Name    string `yaml:"name"`
	Amount  string `yaml:"amount"`
	Cadence string `yaml:"cadence"`
}

type rawCostScale struct {
	Name   string `yaml:"name"`
	Factor string `yaml:"factor"`
}

// LoadScript reads a script table from a YAML file: a list of entries
// with day, title, details, balance_delta and an optional
// cost_mutation.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	var raw []rawScriptEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse script file: %w", err)
	}

	entries := make([]ScriptEntry, 0, len(raw))
	for i, r := range raw {
		entry, err := r.toEntry()
		if err != nil {
			return nil, fmt.Errorf("script entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return NewScript(entries), nil
}

func (r rawScriptEntry) toEntry() (ScriptEntry, error) {
	entry := ScriptEntry{Day: r.Day, Title: r.Title, Details: r.Details}

	if r.BalanceDelta != "" {
		delta, err := decimal.NewFromString(r.BalanceDelta)
		if err != nil {
			return ScriptEntry{}, fmt.Errorf("invalid balance_delta %q: %w", r.BalanceDelta, err)
		}
		entry.BalanceDelta = delta
	}

	if r.CostMutation == nil {
		return entry, nil
	}
	entry.CostMutation = &CostMutation{}
	if add := r.CostMutation.Add; add != nil {
		amount, err := decimal.NewFromString(add.Amount)
		if err != nil {
			return ScriptEntry{}, fmt.Errorf("invalid cost amount %q: %w", add.Amount, err)
		}
		cadence, err := parseCadence(add.Cadence)
		if err != nil {
			return ScriptEntry{}, err
		}
		entry.CostMutation.Add = &events.LivingCost{Name: add.Name, Amount: amount, Cadence: cadence}
	}
	if scale := r.CostMutation.Scale; scale != nil {
		factor, err := decimal.NewFromString(scale.Factor)
		if err != nil {
			return ScriptEntry{}, fmt.Errorf("invalid scale factor %q: %w", scale.Factor, err)
		}
		entry.CostMutation.Scale = &CostScale{Name: scale.Name, Factor: factor}
	}
	return entry, nil
}

func parseCadence(s string) (events.Cadence, error) {
	switch events.Cadence(s) {
	case events.CadenceDaily, events.CadenceWeekly, events.CadenceMonthly:
		return events.Cadence(s), nil
	default:
		return "", fmt.Errorf("invalid cadence %q", s)
	}
}

// DefaultScript is the built-in set of scripted life events used when
// no script file is configured.
func DefaultScript() Script {
	return NewScript([]ScriptEntry{
		{
			Day:          3,
			Title:        "Freezer breakdown",
			Details:      "The freezer gave out overnight. Replacing it is not optional.",
			BalanceDelta: decimal.NewFromInt(-450),
		},
		{
			Day:          9,
			Title:        "Car inspection",
			Details:      "The car failed its inspection. Brakes and tires, all at once.",
			BalanceDelta: decimal.NewFromInt(-1200),
		},
		{
			Day:          14,
			Title:        "Birthday",
			Details:      "A birthday card from your grandmother, with cash inside.",
			BalanceDelta: decimal.NewFromInt(250),
		},
		{
			Day:     21,
			Title:   "Gym membership",
			Details: "You signed up for the gym. It bills weekly, forever.",
			CostMutation: &CostMutation{
				Add: &events.LivingCost{
					Name:    "Gym membership",
					Amount:  decimal.NewFromInt(35),
					Cadence: events.CadenceWeekly,
				},
			},
		},
		{
			Day:     31,
			Title:   "Insurance premium",
			Details: "The insurer moved you to a monthly premium plan.",
			CostMutation: &CostMutation{
				Add: &events.LivingCost{
					Name:    "Insurance premium",
					Amount:  decimal.NewFromInt(120),
					Cadence: events.CadenceMonthly,
				},
			},
		},
	})
}
