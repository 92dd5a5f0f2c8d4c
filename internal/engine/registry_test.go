package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(newStubProvider(), testConfig(), zerolog.Nop())
}

func TestRegistryCreateAndResolve(t *testing.T) {
	r := newTestRegistry()

	s := r.Create()
	require.NotNil(t, s)
	assert.Equal(t, PhaseCreated, s.Phase())
	assert.Equal(t, 1, r.Count())

	resolved, err := r.Resolve(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, resolved)
}

func TestRegistrySimulationWindow(t *testing.T) {
	provider := newStubProvider()
	r := NewRegistry(provider, testConfig(), zerolog.Nop())

	s := r.Create()

	// Sessions start a few days into the priced range and run to its end.
	assert.True(t, s.startDate.Equal(provider.MinDate().AddDate(0, 0, startOffsetDays)))
	assert.True(t, s.endDate.Equal(provider.MaxDate()))
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Resolve(uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryRemove(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()

	require.NoError(t, r.Remove(s.ID()))
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, PhaseTerminated, s.Phase())

	_, err := r.Resolve(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.Remove(s.ID()), ErrSessionNotFound)
}

func TestRegistryShutdown(t *testing.T) {
	r := newTestRegistry()
	a := r.Create()
	b := r.Create()

	r.Shutdown()
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, PhaseTerminated, a.Phase())
	assert.Equal(t, PhaseTerminated, b.Phase())
}
