// Package api exposes the worker's operational HTTP surface: health,
// dependency status, recent sync runs and manual alert simulation.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/rolecache"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunSource reads recorded sync run attempts
type RunSource interface {
	RecentByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.SyncRun, error)
}

// AlertSimulator evaluates one rule against one wallet on demand
type AlertSimulator interface {
	Simulate(ctx context.Context, ruleID, walletID uuid.UUID) (bool, string, error)
}

// RoleSource resolves on-chain roles through the role cache
type RoleSource interface {
	Lookup(ctx context.Context, walletID uuid.UUID) (*rolecache.Result, error)
	Refresh(ctx context.Context, walletID uuid.UUID) (*rolecache.Result, error)
}

// BacktestRunner runs a stored strategy against a symbol
type BacktestRunner interface {
	Run(ctx context.Context, strategyID uuid.UUID, symbol string, prices []models.PricePoint, days int) (*models.BacktestResult, error)
}

// Server is the worker's operational HTTP server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	deps       map[string]Pinger
	runs       RunSource
	simulator  AlertSimulator
	roles      RoleSource
	backtests  BacktestRunner
	logger     *logging.Logger
	startedAt  time.Time
}

// NewServer creates the operational server. simulator may be nil when the
// alert worker is disabled.
func NewServer(addr string, deps map[string]Pinger, runs RunSource, simulator AlertSimulator, roles RoleSource, backtests BacktestRunner) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		deps:      deps,
		runs:      runs,
		simulator: simulator,
		roles:     roles,
		backtests: backtests,
		logger:    logging.WithField("component", "api_server"),
		startedAt: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")

	ops := s.router.PathPrefix("/ops").Subrouter()
	ops.HandleFunc("/wallets/{id}/runs", s.handleWalletRuns).Methods("GET")
	ops.HandleFunc("/wallets/{id}/role", s.handleWalletRole).Methods("GET")
	ops.HandleFunc("/alerts/{ruleId}/simulate/{walletId}", s.handleSimulate).Methods("POST")
	ops.HandleFunc("/strategies/{id}/backtest", s.handleBacktest).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-sentinel",
	})
}

// handleStatus pings every backing store. Any failure degrades the
// overall status and the response code.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overall := "ok"
	components := make(map[string]string, len(s.deps))
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			components[name] = err.Error()
			overall = "degraded"
		} else {
			components[name] = "ok"
		}
	}

	status := http.StatusOK
	if overall != "ok" {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, map[string]interface{}{
		"status":     overall,
		"components": components,
		"uptime":     time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleWalletRuns(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	runs, err := s.runs.RecentByWallet(r.Context(), walletID, limit)
	if err != nil {
		s.logger.WithError(err).Error("failed to load sync runs")
		respondError(w, http.StatusInternalServerError, "failed to load sync runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"walletId": walletID.String(),
		"runs":     runs,
	})
}

// handleWalletRole serves the cached role; refresh=true forces a chain
// resolution through the cache.
func (s *Server) handleWalletRole(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}

	lookup := s.roles.Lookup
	if r.URL.Query().Get("refresh") == "true" {
		lookup = s.roles.Refresh
	}

	result, err := lookup(r.Context(), walletID)
	if err != nil {
		s.logger.WithError(err).Error("role lookup failed")
		respondError(w, http.StatusInternalServerError, "role lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"walletId": walletID.String(),
		"role":     result.Role.String(),
		"cachedAt": result.CachedAt,
		"stale":    result.Stale,
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if s.simulator == nil {
		respondError(w, http.StatusServiceUnavailable, "alert worker is disabled")
		return
	}

	vars := mux.Vars(r)
	ruleID, err := uuid.Parse(vars["ruleId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	walletID, err := uuid.Parse(vars["walletId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}

	fired, message, err := s.simulator.Simulate(r.Context(), ruleID, walletID)
	if err != nil {
		s.logger.WithError(err).Error("simulation failed")
		respondError(w, http.StatusInternalServerError, "simulation failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fired":   fired,
		"message": message,
	})
}

// handleBacktest runs a stored strategy on demand. The series is resolved
// from recorded history, falling back to a synthetic one.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	strategyID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			respondError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	result, err := s.backtests.Run(r.Context(), strategyID, symbol, nil, days)
	if err != nil {
		s.logger.WithError(err).Error("backtest failed")
		respondError(w, http.StatusInternalServerError, "backtest failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Start starts the HTTP server and blocks until it exits
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting operational server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down operational server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}
