package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/imminent-crash/server/internal/engine"
	"github.com/imminent-crash/server/internal/infra/storage"
	"github.com/imminent-crash/server/internal/platform/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow cross-origin requests for browser clients
	},
}

// Server is the HTTP and websocket frontend over the session registry.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	registry *engine.Registry
	scores   storage.HighscoreRepository
	log      zerolog.Logger
}

// ServerConfig holds frontend configuration.
type ServerConfig struct {
	Addr     string
	Registry *engine.Registry
	Scores   storage.HighscoreRepository
	Log      zerolog.Logger
}

// NewServer builds the router and wraps it in an http.Server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		registry: cfg.Registry,
		scores:   cfg.Scores,
		log:      cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Post("/pause", s.handlePause)
				r.Post("/continue", s.handleContinue)
				r.Post("/quit", s.handleQuit)
				r.Post("/buy", s.handleBuy)
				r.Post("/sell", s.handleSell)
				r.Get("/score", s.handleScore)
			})
		})

		r.Route("/highscores", func(r chi.Router) {
			r.Post("/", s.handleRecordHighscore)
			r.Get("/", s.handleListHighscores)
		})
	})

	s.router.Get("/ws/{sessionID}", s.handleStream)

	s.router.Get("/metrics", metrics.Handler())
	s.router.Get("/metrics/prometheus", metrics.PrometheusHandler())
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving and blocks until the listener fails or is closed.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.registry.Count(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := s.registry.Create()
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": session.ID().String(),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.sessionCommand(w, r, func(session *engine.Session) error {
		return session.Pause()
	})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	s.sessionCommand(w, r, func(session *engine.Session) error {
		return session.Continue()
	})
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if err := s.registry.Remove(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderRequest struct {
	CoinID   int   `json:"coin_id"`
	Quantity int64 `json:"quantity"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.orderCommand(w, r, func(session *engine.Session, req orderRequest) error {
		return session.SubmitBuy(req.CoinID, req.Quantity)
	})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.orderCommand(w, r, func(session *engine.Session, req orderRequest) error {
		return session.SubmitSell(req.CoinID, req.Quantity)
	})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	session, err := s.registry.Resolve(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.Score())
}

type highscoreRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

func (s *Server) handleRecordHighscore(w http.ResponseWriter, r *http.Request) {
	var req highscoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
		return
	}
	session, err := s.registry.Resolve(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	score := session.Score()
	entry := storage.Highscore{
		ID:             uuid.New().String(),
		Name:           req.Name,
		RecordedAt:     time.Now().UTC(),
		DaysAlive:      score.DaysAlive,
		CurrentBalance: score.CurrentBalance,
		HighestBalance: score.HighestBalance,
		IsDead:         score.IsDead,
	}
	if err := s.scores.Append(r.Context(), entry); err != nil {
		s.log.Error().Err(err).Msg("failed to record highscore")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to record highscore"})
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListHighscores(w http.ResponseWriter, r *http.Request) {
	winning, err := s.scores.TopWinning(r.Context(), 10)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load winning highscores")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load highscores"})
		return
	}
	losing, err := s.scores.TopLosing(r.Context(), 10)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load losing highscores")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load highscores"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"winning": winning,
		"losing":  losing,
	})
}

// handleStream upgrades the connection, starts the session loop and
// wires the pumps. The stream begins on the first websocket attach.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	session, err := s.registry.Resolve(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Upgrade first: a failed handshake must leave the session
	// startable by a later attach.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	stream, err := session.Start(context.Background())
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	metrics.Get().RecordWSConnection(1)

	client := NewClient(session, s.registry, conn, s.log)
	go func() {
		client.WritePump(stream)
		metrics.Get().RecordWSConnection(-1)
	}()
	go client.ReadPump()
}

func (s *Server) sessionCommand(w http.ResponseWriter, r *http.Request, fn func(*engine.Session) error) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	session, err := s.registry.Resolve(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := fn(session); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) orderCommand(w http.ResponseWriter, r *http.Request, fn func(*engine.Session, orderRequest) error) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	session, err := s.registry.Resolve(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := fn(session, req); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrSessionTerminated):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrAlreadyStarted):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
