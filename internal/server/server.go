// Package server exposes the HTTP and WebSocket surface of the service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/stockledger/stockledger/internal/config"
	"github.com/stockledger/stockledger/internal/ledger"
	"github.com/stockledger/stockledger/internal/metrics"
	"github.com/stockledger/stockledger/internal/quote"
	"github.com/stockledger/stockledger/internal/ratelimit"
)

// QuoteProvider is the upstream dependency of the stock and search handlers.
// *quote.Client satisfies it.
type QuoteProvider interface {
	FetchChart(ctx context.Context, sym, period string) (*quote.Chart, error)
	Search(ctx context.Context, query string) ([]quote.SearchResult, error)
}

// Deps carries the collaborators the server routes requests to.
type Deps struct {
	Quotes  QuoteProvider
	Ledger  *ledger.Service
	Syncer  *quote.Syncer
	Metrics *metrics.Registry
}

// Server is the stockledger HTTP server.
type Server struct {
	router      *mux.Router
	server      *http.Server
	deps        Deps
	cfg         config.ServerConfig
	apiLimit    *ratelimit.ClientLimiter
	searchLimit *ratelimit.ClientLimiter
}

// New creates a server around the given dependencies.
func New(cfg config.ServerConfig, rl config.RateLimitConfig, deps Deps) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		deps:        deps,
		cfg:         cfg,
		apiLimit:    ratelimit.NewClientLimiter(rl.APIRequests, rl.APIWindow),
		searchLimit: ratelimit.NewClientLimiter(rl.SearchLimit, rl.SearchWindow),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/stock/{symbol}", s.handleGetStock).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)

	api.HandleFunc("/ledger", s.handleListEntries).Methods(http.MethodGet)
	api.HandleFunc("/ledger", s.handleAddEntry).Methods(http.MethodPost)
	api.HandleFunc("/ledger/{id}", s.handleUpdateEntry).Methods(http.MethodPatch)
	api.HandleFunc("/ledger/{id}/close", s.handleCloseEntry).Methods(http.MethodPost)
	api.HandleFunc("/ledger/{id}", s.handleDeleteEntry).Methods(http.MethodDelete)

	// The quote stream upgrades the connection; it bypasses the JSON and
	// rate-limit middleware.
	s.router.HandleFunc("/api/quotes/ws", s.handleQuoteStream).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Router exposes the handler tree. Used by tests with httptest.
func (s *Server) Router() http.Handler { return s.router }

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
