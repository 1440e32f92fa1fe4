// Package main provides the standalone fetch worker entry point for the
// market tracker service. It runs the poll loop without the HTTP API,
// for deployments that split serving from fetching.
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
	fmt.Println("Market Tracker Fetch Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	// Initialize database connections
	log.Println("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	var archive service.ArchiveSink
	if cfg.Database.ClickHouse.Host != "" {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			log.Printf("WARNING: ClickHouse unavailable: %v. Continuing without price archive.", err)
		} else {
			defer clickhouse.Close()
			archive = storage.NewPriceArchiveRepository(clickhouse)
		}
	}

	log.Println("Database connections established")

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

	// Shared upstream budget coordinates the provider quota across processes
	if cfg.Quotes.SharedBudgetTotal > 0 {
		budget, err := ratelimit.NewBudget(&ratelimit.BudgetConfig{
			Redis:          redis.Client(),
			TotalBudget:    cfg.Quotes.SharedBudgetTotal,
			ReservedBudget: cfg.Quotes.SharedBudgetReserved,
		})
		if err != nil {
			log.Printf("WARNING: Shared request budget disabled: %v", err)
		} else {
			quoteClient.SetBudget(budget)
		}
	}

	notifiers := []alerts.Notifier{alerts.LogNotifier{}}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(cfg.Alerts.WebhookURL))
	}
	alertEngine := alerts.NewEngine(alertRepo, alertHistoryRepo, notifiers...)

	hist := history.NewStore(kv, cfg.History.MaxPoints)
	tracker := service.NewTrackerService(cat, fetcher, kv, snapshotRepo, hist, archive, alertEngine)
	settingsService := service.NewSettingsService(cat, kv)
	ledger := portfolio.NewLedger(kv, orderRepo, cfg.Trading.StartingCash, cfg.Trading.FeeRate)
	backupService := backup.NewService(cat, kv, settingsService, tracker, ledger, hist, alertRepo, orderRepo)

	p, err := poller.New(&poller.Config{
		Tracker:         tracker,
		Backup:          backupService,
		Interval:        cfg.Poller.Interval,
		TradingInterval: cfg.Poller.TradingInterval,
		AutoBackup:      cfg.Poller.AutoBackup,
	})
	if err != nil {
		log.Fatalf("Failed to create poller: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start poller: %v", err)
	}

	log.Printf("Worker started (interval: %s, trading interval: %s)",
		cfg.Poller.Interval, cfg.Poller.TradingInterval)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		log.Printf("Poller shutdown error: %v", err)
	}
	log.Println("Worker exited")
}
