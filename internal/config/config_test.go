package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("POLL_INTERVAL", "45s"); err != nil {
		t.Fatalf("Failed to set POLL_INTERVAL: %v", err)
	}
	if err := os.Setenv("TRADING_FEE_RATE", "0.002"); err != nil {
		t.Fatalf("Failed to set TRADING_FEE_RATE: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("POLL_INTERVAL")
		_ = os.Unsetenv("TRADING_FEE_RATE")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Poller.Interval != 45*time.Second {
		t.Errorf("Poller.Interval = %v, want %v", cfg.Poller.Interval, 45*time.Second)
	}

	if cfg.Trading.FeeRate != 0.002 {
		t.Errorf("Trading.FeeRate = %v, want %v", cfg.Trading.FeeRate, 0.002)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Quotes.RequestTimeout != 8*time.Second {
		t.Errorf("Quotes.RequestTimeout = %v, want %v", cfg.Quotes.RequestTimeout, 8*time.Second)
	}
	if cfg.Quotes.BreakerFailures != 5 {
		t.Errorf("Quotes.BreakerFailures = %v, want 5", cfg.Quotes.BreakerFailures)
	}
	if cfg.Quotes.BreakerTimeout != 30*time.Second {
		t.Errorf("Quotes.BreakerTimeout = %v, want %v", cfg.Quotes.BreakerTimeout, 30*time.Second)
	}
	if cfg.History.MaxPoints != 1000 {
		t.Errorf("History.MaxPoints = %v, want 1000", cfg.History.MaxPoints)
	}
	if cfg.Alerts.HistoryLimit != 100 {
		t.Errorf("Alerts.HistoryLimit = %v, want 100", cfg.Alerts.HistoryLimit)
	}
	if cfg.Trading.FeeRate != 0.001 {
		t.Errorf("Trading.FeeRate = %v, want 0.001", cfg.Trading.FeeRate)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty finance host",
			mutate:  func(c *Config) { c.Quotes.FinanceHost = "" },
			wantErr: true,
		},
		{
			name:    "non-http finance host",
			mutate:  func(c *Config) { c.Quotes.FinanceHost = "ftp://example.com" },
			wantErr: true,
		},
		{
			name:    "zero history cap",
			mutate:  func(c *Config) { c.History.MaxPoints = 0 },
			wantErr: true,
		},
		{
			name:    "fee rate at one",
			mutate:  func(c *Config) { c.Trading.FeeRate = 1 },
			wantErr: true,
		},
		{
			name:    "negative poll interval",
			mutate:  func(c *Config) { c.Poller.Interval = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	if err := os.Setenv("TEST_FLOAT", "3.5"); err != nil {
		t.Fatalf("Failed to set TEST_FLOAT: %v", err)
	}
	defer func() { _ = os.Unsetenv("TEST_FLOAT") }()

	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 3.5 {
		t.Errorf("getEnvAsFloat() = %v, want 3.5", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT_MISSING", 1.5); got != 1.5 {
		t.Errorf("getEnvAsFloat() default = %v, want 1.5", got)
	}
}
