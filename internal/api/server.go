// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/market-tracker/internal/backup"
	"github.com/market-tracker/internal/circuitbreaker"
	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/poller"
	"github.com/market-tracker/internal/portfolio"
	"github.com/market-tracker/internal/service"
	"github.com/market-tracker/internal/types"
)

// Store interfaces for dependency injection and testing

// AlertRuleStore defines the alert rule persistence operations the API uses.
type AlertRuleStore interface {
	Create(ctx context.Context, rule *types.AlertRule) error
	ListAll(ctx context.Context) ([]*types.AlertRule, error)
	Delete(ctx context.Context, id string) (bool, error)
	Rearm(ctx context.Context, id string) (bool, error)
	Activate(ctx context.Context, id string) (bool, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// AlertHistoryStore defines the fired-alert listing the API uses.
type AlertHistoryStore interface {
	List(ctx context.Context, limit int) ([]*types.AlertEvent, error)
	Clear(ctx context.Context) error
}

// OrderStore defines the order log listing the API uses.
type OrderStore interface {
	List(ctx context.Context, assetKey string, limit int) ([]*types.Order, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// NewsSource supplies market headlines.
type NewsSource interface {
	Fetch(ctx context.Context) []types.NewsArticle
}

// PollerControl exposes the scheduling surface of the poller.
type PollerControl interface {
	SetVisible(visible bool)
	GetStatus() *poller.Status
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	tracker      *service.TrackerService
	analytics    *service.AnalyticsService
	settings     *service.SettingsService
	ledger       *portfolio.Ledger
	backup       *backup.Service
	alertRules   AlertRuleStore
	alertHistory AlertHistoryStore
	orders       OrderStore
	news         NewsSource
	poller       PollerControl
	breaker      *circuitbreaker.CircuitBreaker
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
}

// Deps bundles the server's collaborators.
type Deps struct {
	Tracker      *service.TrackerService
	Analytics    *service.AnalyticsService
	Settings     *service.SettingsService
	Ledger       *portfolio.Ledger
	Backup       *backup.Service
	AlertRules   AlertRuleStore
	AlertHistory AlertHistoryStore
	Orders       OrderStore
	News         NewsSource
	Poller       PollerControl
	Breaker      *circuitbreaker.CircuitBreaker
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps *Deps) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		tracker:      deps.Tracker,
		analytics:    deps.Analytics,
		settings:     deps.Settings,
		ledger:       deps.Ledger,
		backup:       deps.Backup,
		alertRules:   deps.AlertRules,
		alertHistory: deps.AlertHistory,
		orders:       deps.Orders,
		news:         deps.News,
		poller:       deps.Poller,
		breaker:      deps.Breaker,
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS)

	// Middleware order matters
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Asset and price endpoints
	api.HandleFunc("/assets", s.handleListAssets).Methods("GET")
	api.HandleFunc("/prices", s.handleListPrices).Methods("GET")
	api.HandleFunc("/prices/{key}", s.handleGetPrice).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/history/{key}", s.handleGetHistory).Methods("GET")

	// Analytics endpoints
	api.HandleFunc("/analytics/{key}", s.handleGetIndicators).Methods("GET")
	api.HandleFunc("/analytics/{key}/prediction", s.handleGetPrediction).Methods("GET")
	api.HandleFunc("/analytics/{key}/sentiment", s.handleGetSentiment).Methods("GET")

	// Alert endpoints
	api.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	api.HandleFunc("/alerts", s.handleCreateAlert).Methods("POST")
	api.HandleFunc("/alerts", s.handleResetAlerts).Methods("DELETE")
	api.HandleFunc("/alerts/history", s.handleAlertHistory).Methods("GET")
	api.HandleFunc("/alerts/{id}", s.handleUpdateAlert).Methods("PUT")
	api.HandleFunc("/alerts/{id}", s.handleDeleteAlert).Methods("DELETE")
	api.HandleFunc("/alerts/{id}/rearm", s.handleRearmAlert).Methods("POST")

	// Portfolio endpoints
	api.HandleFunc("/portfolio", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/buy", s.handleBuy).Methods("POST")
	api.HandleFunc("/portfolio/sell", s.handleSell).Methods("POST")
	api.HandleFunc("/portfolio/reset", s.handleResetPortfolio).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")

	// Settings endpoints
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handlePutSettings).Methods("PUT")
	api.HandleFunc("/settings/assets", s.handleGetSelectedAssets).Methods("GET")
	api.HandleFunc("/settings/assets", s.handlePutSelectedAssets).Methods("PUT")
	api.HandleFunc("/settings/currency", s.handleGetCurrency).Methods("GET")
	api.HandleFunc("/settings/currency", s.handlePutCurrency).Methods("PUT")
	api.HandleFunc("/settings/theme", s.handleGetTheme).Methods("GET")
	api.HandleFunc("/settings/theme", s.handlePutTheme).Methods("PUT")

	// Backup endpoints
	api.HandleFunc("/export", s.handleExport).Methods("GET")
	api.HandleFunc("/import", s.handleImport).Methods("POST")

	// News and status endpoints
	api.HandleFunc("/news", s.handleNews).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/visibility", s.handleVisibility).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "market-tracker",
	})
}

// Router exposes the configured router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
