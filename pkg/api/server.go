package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/taskpilot/internal/observability"
	"github.com/harun/taskpilot/pkg/agent"
	"github.com/harun/taskpilot/pkg/conversation"
)

// ServerOptions configures the HTTP server
type ServerOptions struct {
	Host         string
	Port         int
	JWTSecret    string
	HistoryLimit int
	Model        agent.ModelConfig
}

// Server is the chat backend HTTP server
type Server struct {
	options        ServerOptions
	server         *http.Server
	runner         *agent.Runner
	conversations  *conversation.Store
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new API server
func NewServer(options ServerOptions, runner *agent.Runner, conversations *conversation.Store, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.HistoryLimit == 0 {
		options.HistoryLimit = 20
	}

	if runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if conversations == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if options.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	return &Server{
		options:       options,
		runner:        runner,
		conversations: conversations,
		logger:        logger,
		startTime:     time.Now(),
	}, nil
}

// Start starts the HTTP server in the background
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	mux.HandleFunc("POST /api/chat", s.withTracking(s.authMiddleware(s.handleChat)))
	mux.HandleFunc("GET /api/chat/conversations", s.withTracking(s.authMiddleware(s.handleListConversations)))
	mux.HandleFunc("GET /api/chat/conversations/{id}", s.withTracking(s.authMiddleware(s.handleGetConversation)))
	mux.HandleFunc("DELETE /api/chat/conversations/{id}", s.withTracking(s.authMiddleware(s.handleDeleteConversation)))
	mux.HandleFunc("GET /ws/chat", s.authMiddleware(s.handleWebSocket))

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting API server")

	// Serve in a goroutine so startup can continue
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown deadline reached with requests still in flight")
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}

	return nil
}

// withTracking rejects requests during shutdown and tracks in-flight work
func (s *Server) withTracking(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		shuttingDown := s.isShuttingDown
		s.shutdownMu.RUnlock()

		if shuttingDown {
			s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
