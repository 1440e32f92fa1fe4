// Package main provides the API server entry point for the market tracker service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/market-tracker/internal/alerts"
	"github.com/market-tracker/internal/api"
	"github.com/market-tracker/internal/backup"
	"github.com/market-tracker/internal/catalog"
	"github.com/market-tracker/internal/config"
	"github.com/market-tracker/internal/history"
	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/poller"
	"github.com/market-tracker/internal/portfolio"
	"github.com/market-tracker/internal/quotes"
	"github.com/market-tracker/internal/ratelimit"
	"github.com/market-tracker/internal/service"
	"github.com/market-tracker/internal/storage"
)

func main() {
	fmt.Println("Market Tracker API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// The ClickHouse archive is optional; the tracker runs without it.
	var archive service.ArchiveSink
	if cfg.Database.ClickHouse.Host != "" {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, price archive disabled")
		} else {
			defer clickhouse.Close()
			archive = storage.NewPriceArchiveRepository(clickhouse)
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories
	kv := storage.NewKVStore(redis)
	snapshotRepo := storage.NewSnapshotRepository(kv)
	alertRepo := storage.NewAlertRepository(postgres)
	alertHistoryRepo := storage.NewAlertHistoryRepository(postgres, cfg.Alerts.HistoryLimit)
	orderRepo := storage.NewOrderRepository(postgres)

	// Initialize the quote pipeline
	cat := catalog.NewDefault()
	quoteClient := quotes.NewClient(&cfg.Quotes, redis)
	fetcher := quotes.NewFetcher(quoteClient, cat, cfg.Quotes.FinanceHost)
	news := quotes.NewNewsProvider(quoteClient, &cfg.News)

	// Shared upstream budget coordinates the provider quota across processes
	if cfg.Quotes.SharedBudgetTotal > 0 {
		budget, err := ratelimit.NewBudget(&ratelimit.BudgetConfig{
			Redis:          redis.Client(),
			TotalBudget:    cfg.Quotes.SharedBudgetTotal,
			ReservedBudget: cfg.Quotes.SharedBudgetReserved,
		})
		if err != nil {
			logger.WithError(err).Warn("Shared request budget disabled")
		} else {
			quoteClient.SetBudget(budget)
		}
	}

	// Initialize services
	logger.Info("Initializing services...")

	notifiers := []alerts.Notifier{alerts.LogNotifier{}}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(cfg.Alerts.WebhookURL))
	}
	alertEngine := alerts.NewEngine(alertRepo, alertHistoryRepo, notifiers...)

	hist := history.NewStore(kv, cfg.History.MaxPoints)
	tracker := service.NewTrackerService(cat, fetcher, kv, snapshotRepo, hist, archive, alertEngine)
	analyticsService := service.NewAnalyticsService(cat, hist)
	settingsService := service.NewSettingsService(cat, kv)
	ledger := portfolio.NewLedger(kv, orderRepo, cfg.Trading.StartingCash, cfg.Trading.FeeRate)
	backupService := backup.NewService(cat, kv, settingsService, tracker, ledger, hist, alertRepo, orderRepo)

	// Start the background poller
	p, err := poller.New(&poller.Config{
		Tracker:         tracker,
		Backup:          backupService,
		Interval:        cfg.Poller.Interval,
		TradingInterval: cfg.Poller.TradingInterval,
		AutoBackup:      cfg.Poller.AutoBackup,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create poller")
	}
	if err := p.Start(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to start poller")
	}

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
	}

	server := api.NewServer(serverConfig, &api.Deps{
		Tracker:      tracker,
		Analytics:    analyticsService,
		Settings:     settingsService,
		Ledger:       ledger,
		Backup:       backupService,
		AlertRules:   alertRepo,
		AlertHistory: alertHistoryRepo,
		Orders:       orderRepo,
		News:         news,
		Poller:       p,
		Breaker:      quoteClient.Breaker(),
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := p.Stop(ctx); err != nil {
		logger.WithError(err).Error("Poller shutdown error")
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
