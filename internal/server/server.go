package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/server/handler"
	"github.com/parasfix/betsol/internal/server/middleware"
	"github.com/parasfix/betsol/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// the rate-limiting middleware.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Archive may be nil when archiving is disabled.
type Handlers struct {
	Health     *handler.HealthHandler
	Matches    *handler.MatchHandler
	Wagers     *handler.WagerHandler
	Settlement *handler.SettlementHandler
	Transfers  *handler.TransferHandler
	Archive    *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API for the wagering ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub. limiter may be nil when rate limiting is
// disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Match endpoints.
	mux.HandleFunc("GET /api/matches", handlers.Matches.ListMatches)
	mux.HandleFunc("POST /api/matches", handlers.Matches.CreateMatch)
	mux.HandleFunc("GET /api/matches/{id}", handlers.Matches.GetMatch)
	mux.HandleFunc("POST /api/matches/{id}/resolve", handlers.Matches.ResolveMatch)

	// Wager endpoints.
	mux.HandleFunc("GET /api/wagers", handlers.Wagers.ListWagers)
	mux.HandleFunc("POST /api/wagers", handlers.Wagers.CreateWager)
	mux.HandleFunc("GET /api/wagers/{id}", handlers.Wagers.GetWager)

	// Payout and treasury endpoints.
	mux.HandleFunc("POST /api/payouts/run", handlers.Settlement.RunPayoutBatch)
	mux.HandleFunc("GET /api/payouts/outstanding", handlers.Settlement.ListOutstanding)
	mux.HandleFunc("GET /api/treasury/balance", handlers.Settlement.TreasuryBalance)

	// Manual reconciliation endpoint.
	mux.HandleFunc("GET /api/transfers/unmatched", handlers.Transfers.ListUnmatched)

	// Archive trigger (only when archiving is enabled).
	if handlers.Archive != nil {
		mux.HandleFunc("POST /api/archive/run", handlers.Archive.Run)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-IP rate limiting when configured.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
