package engine

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imminent-crash/server/internal/domain/market"
	"github.com/imminent-crash/server/internal/platform/metrics"
)

// startOffsetDays delays the simulation window past the first priced
// day so every session opens with a few days of history behind it.
const startOffsetDays = 5

// Registry owns the live sessions: it creates them seeded from the
// market provider, resolves ids for every command, and removes them on
// quit. Safe for concurrent callers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	provider market.Provider
	cfg      Config
	log      zerolog.Logger
}

// NewRegistry creates an empty registry. The provider must already be
// fully loaded.
func NewRegistry(provider market.Provider, cfg Config, log zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		provider: provider,
		cfg:      cfg,
		log:      log,
	}
}

// Create seeds a new session with the simulation window derived from
// the provider's date range and indexes it under a fresh id.
func (r *Registry) Create() *Session {
	id := uuid.New()
	start := r.provider.MinDate().AddDate(0, 0, startOffsetDays)
	end := r.provider.MaxDate()

	s := NewSession(id, r.provider, start, end, r.cfg, r.log)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	metrics.Get().RecordSessionCreated()
	r.log.Info().Str("session", id.String()).Msg("session created")
	return s
}

// Resolve returns the session for an id, or ErrSessionNotFound.
func (r *Registry) Resolve(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove quits the session and drops it from the registry. After
// Remove the id no longer resolves.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Quit()
	metrics.Get().RecordSessionRemoved()
	r.log.Info().Str("session", id.String()).Msg("session removed")
	return nil
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown quits every session. Used on server shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Quit()
		metrics.Get().RecordSessionRemoved()
	}
}
