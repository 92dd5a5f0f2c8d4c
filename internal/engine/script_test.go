package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imminent-crash/server/internal/events"
)

func TestScriptLookup(t *testing.T) {
	script := NewScript([]ScriptEntry{
		{Day: 3, Title: "First"},
		{Day: 3, Title: "Second"},
		{Day: 9, Title: "Third"},
	})

	entries := script.On(3)
	require.Len(t, entries, 2)
	assert.Equal(t, "First", entries[0].Title)
	assert.Equal(t, "Second", entries[1].Title)

	assert.Len(t, script.On(9), 1)
	assert.Empty(t, script.On(4))
}

func TestDefaultScriptCoversEarlyGame(t *testing.T) {
	script := DefaultScript()

	freezer := script.On(3)
	require.Len(t, freezer, 1)
	assert.True(t, freezer[0].BalanceDelta.IsNegative())

	birthday := script.On(14)
	require.Len(t, birthday, 1)
	assert.True(t, birthday[0].BalanceDelta.IsPositive())

	gym := script.On(21)
	require.Len(t, gym, 1)
	require.NotNil(t, gym[0].CostMutation)
	require.NotNil(t, gym[0].CostMutation.Add)
	assert.Equal(t, events.CadenceWeekly, gym[0].CostMutation.Add.Cadence)
}

func TestLoadScript(t *testing.T) {
	raw := `
- day: 2
  title: Parking fine
  details: Wrong side of the street.
  balance_delta: "-75.50"
- day: 10
  title: New phone plan
  cost_mutation:
    add:
      name: Phone plan
      amount: "29.99"
      cadence: MONTHLY
- day: 12
  title: Inflation
  cost_mutation:
    scale:
      name: Living Costs
      factor: "1.25"
`
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	script, err := LoadScript(path)
	require.NoError(t, err)

	fine := script.On(2)
	require.Len(t, fine, 1)
	assert.Equal(t, "Parking fine", fine[0].Title)
	requireAmount(t, "-75.50", fine[0].BalanceDelta)

	phone := script.On(10)
	require.Len(t, phone, 1)
	require.NotNil(t, phone[0].CostMutation.Add)
	assert.Equal(t, events.CadenceMonthly, phone[0].CostMutation.Add.Cadence)
	requireAmount(t, "29.99", phone[0].CostMutation.Add.Amount)

	inflation := script.On(12)
	require.Len(t, inflation, 1)
	require.NotNil(t, inflation[0].CostMutation.Scale)
	assert.True(t, inflation[0].CostMutation.Scale.Factor.Equal(decimal.RequireFromString("1.25")))
}

func TestLoadScriptRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadScript(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	badCadence := filepath.Join(dir, "bad_cadence.yaml")
	require.NoError(t, os.WriteFile(badCadence, []byte(`
- day: 1
  title: Broken
  cost_mutation:
    add:
      name: X
      amount: "10"
      cadence: FORTNIGHTLY
`), 0o644))
	_, err = LoadScript(badCadence)
	assert.Error(t, err)

	badAmount := filepath.Join(dir, "bad_amount.yaml")
	require.NoError(t, os.WriteFile(badAmount, []byte(`
- day: 1
  title: Broken
  balance_delta: "ten"
`), 0o644))
	_, err = LoadScript(badAmount)
	assert.Error(t, err)
}
