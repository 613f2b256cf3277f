// Package api exposes the staking service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"fsp-staking/internal/observability"
	"fsp-staking/internal/service"
)

// FeedHandler serves the live event websocket and reports its client count.
type FeedHandler interface {
	http.Handler
	ClientCount() int
}

// Options contains configuration for creating a Server.
type Options struct {
	Service        *service.Service
	Feed           FeedHandler  // optional
	MetricsHandler http.Handler // Default: observability.Handler()
	Logger         zerolog.Logger
	DevEndpoints   bool   // token creation and minting
	MaxPersistLag  uint64 // Default: 1000 transactions before /health degrades
}

// Server routes HTTP requests to the service.
type Server struct {
	router  *mux.Router
	svc     *service.Service
	feed    FeedHandler
	metrics http.Handler
	log     zerolog.Logger
	dev     bool
	maxLag  uint64
}

// New creates a server with all routes registered.
func New(opts Options) *Server {
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = observability.Handler()
	}
	if opts.MaxPersistLag == 0 {
		opts.MaxPersistLag = 1000
	}
	s := &Server{
		router:  mux.NewRouter(),
		svc:     opts.Service,
		feed:    opts.Feed,
		metrics: opts.MetricsHandler,
		log:     opts.Logger.With().Str("component", "api").Logger(),
		dev:     opts.DevEndpoints,
		maxLag:  opts.MaxPersistLag,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/health", s.wrap(s.handleHealth)).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	if s.feed != nil {
		r.Handle("/ws/events", s.feed).Methods(http.MethodGet)
	}

	r.HandleFunc("/tokens", s.wrap(s.handleListTokens)).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}", s.wrap(s.handleGetToken)).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}/balances/{owner}", s.wrap(s.handleTokenBalance)).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}/allowances/{owner}/{spender}", s.wrap(s.handleAllowance)).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}/approve", s.wrap(s.handleApprove)).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{addr}/native", s.wrap(s.handleNativeBalance)).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{addr}/positions", s.wrap(s.handleUserPositions)).Methods(http.MethodGet)
	if s.dev {
		r.HandleFunc("/tokens", s.wrap(s.handleCreateToken)).Methods(http.MethodPost)
		r.HandleFunc("/tokens/{addr}/mint", s.wrap(s.handleMint)).Methods(http.MethodPost)
		r.HandleFunc("/native/mint", s.wrap(s.handleMintNative)).Methods(http.MethodPost)
	}

	f := r.PathPrefix("/factory").Subrouter()
	f.HandleFunc("", s.wrap(s.handleGetFactory)).Methods(http.MethodGet)
	f.HandleFunc("/pools", s.wrap(s.handleDeployPool)).Methods(http.MethodPost)
	f.HandleFunc("/admins", s.wrap(s.handleAddAdmin)).Methods(http.MethodPost)
	f.HandleFunc("/admins/{addr}", s.wrap(s.handleRemoveAdmin)).Methods(http.MethodDelete)
	f.HandleFunc("/fees", s.wrap(s.handleUpdateFees)).Methods(http.MethodPut)
	f.HandleFunc("/platform-owner", s.wrap(s.handleSetPlatformOwner)).Methods(http.MethodPut)
	f.HandleFunc("/owner", s.wrap(s.handleTransferOwnership)).Methods(http.MethodPut)
	f.HandleFunc("/withdraw", s.wrap(s.handleWithdrawTreasury)).Methods(http.MethodPost)
	f.HandleFunc("/events", s.wrap(s.handleFactoryEvents)).Methods(http.MethodGet)

	r.HandleFunc("/events", s.wrap(s.handleEventsBetween)).Methods(http.MethodGet)
	r.HandleFunc("/verify", s.wrap(s.handleVerifyAll)).Methods(http.MethodGet)

	p := r.PathPrefix("/pools").Subrouter()
	p.HandleFunc("", s.wrap(s.handleListPools)).Methods(http.MethodGet)
	p.HandleFunc("/{addr}", s.wrap(s.handleGetPool)).Methods(http.MethodGet)
	p.HandleFunc("/{addr}/positions", s.wrap(s.handlePoolPositions)).Methods(http.MethodGet)
	p.HandleFunc("/{addr}/positions/{user}", s.wrap(s.handleGetPosition)).Methods(http.MethodGet)
	p.HandleFunc("/{addr}/events", s.wrap(s.handlePoolEvents)).Methods(http.MethodGet)
	p.HandleFunc("/{addr}/activity", s.wrap(s.handlePoolActivity)).Methods(http.MethodGet)
	p.HandleFunc("/{addr}/verify", s.wrap(s.handleVerifyPool)).Methods(http.MethodGet)
	for action, h := range s.poolActions() {
		p.HandleFunc("/{addr}/"+action, s.wrap(h)).Methods(http.MethodPost)
	}

	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info().Msg("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	now, err := s.svc.Now(r.Context())
	if err != nil {
		return err
	}
	seq := s.svc.Env().Seq()
	persisted := s.svc.PersistedSeq()
	resp := HealthResponse{
		Status:       "OK",
		Time:         now,
		Seq:          seq,
		PersistedSeq: persisted,
	}
	if seq > persisted {
		resp.Lag = seq - persisted
	}
	if s.feed != nil {
		resp.FeedClients = s.feed.ClientCount()
	}
	status := http.StatusOK
	if resp.Lag > s.maxLag {
		resp.Status = "DEGRADED"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
	return nil
}
