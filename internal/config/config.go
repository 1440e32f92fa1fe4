// Package config provides configuration management for the market tracker application.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Quotes   QuotesConfig
	News     NewsConfig
	Poller   PollerConfig
	History  HistoryConfig
	Alerts   AlertsConfig
	Trading  TradingConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
	// Requests per second allowed per client IP
	RateLimitRPS int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration for the price archive.
// The archive is optional; leave Host empty to disable it.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// QuotesConfig holds upstream quote endpoint configuration
type QuotesConfig struct {
	FinanceHost     string
	RequestTimeout  time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RequestsPerSec  float64
	CacheTTL        time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
	// SharedBudgetTotal caps combined upstream requests per second across
	// processes via Redis. Zero disables the shared budget.
	SharedBudgetTotal    int
	SharedBudgetReserved int
}

// NewsConfig holds news provider configuration
type NewsConfig struct {
	Endpoint string
	APIKey   string
}

// PollerConfig holds fetch cycle scheduling configuration
type PollerConfig struct {
	Interval        time.Duration
	TradingInterval time.Duration
	AutoBackup      bool
}

// HistoryConfig holds price history retention configuration
type HistoryConfig struct {
	MaxPoints int
}

// AlertsConfig holds alert engine configuration
type AlertsConfig struct {
	HistoryLimit int
	WebhookURL   string
}

// TradingConfig holds paper trading configuration
type TradingConfig struct {
	StartingCash float64
	FeeRate      float64
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			RateLimitRPS: getEnvAsInt("SERVER_RATE_LIMIT_RPS", 20),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "market_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "market_tracker"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Quotes: QuotesConfig{
			FinanceHost:     getEnv("QUOTES_FINANCE_HOST", "https://query1.finance.yahoo.com"),
			RequestTimeout:  getEnvAsDuration("QUOTES_REQUEST_TIMEOUT", 8*time.Second),
			RetryAttempts:   getEnvAsInt("QUOTES_RETRY_ATTEMPTS", 3),
			RetryBaseDelay:  getEnvAsDuration("QUOTES_RETRY_BASE_DELAY", 500*time.Millisecond),
			RequestsPerSec:  getEnvAsFloat("QUOTES_REQUESTS_PER_SEC", 4),
			CacheTTL:        getEnvAsDuration("QUOTES_CACHE_TTL", time.Hour),
			BreakerFailures: getEnvAsInt("QUOTES_BREAKER_FAILURES", 5),
			BreakerTimeout:  getEnvAsDuration("QUOTES_BREAKER_TIMEOUT", 30*time.Second),

			SharedBudgetTotal:    getEnvAsInt("QUOTES_SHARED_BUDGET_TOTAL", 0),
			SharedBudgetReserved: getEnvAsInt("QUOTES_SHARED_BUDGET_RESERVED", 0),
		},
		News: NewsConfig{
			Endpoint: getEnv("NEWS_ENDPOINT", ""),
			APIKey:   getEnv("NEWS_API_KEY", ""),
		},
		Poller: PollerConfig{
			Interval:        getEnvAsDuration("POLL_INTERVAL", 300*time.Second),
			TradingInterval: getEnvAsDuration("POLL_TRADING_INTERVAL", 30*time.Second),
			AutoBackup:      getEnvAsBool("POLL_AUTO_BACKUP", true),
		},
		History: HistoryConfig{
			MaxPoints: getEnvAsInt("HISTORY_MAX_POINTS", 1000),
		},
		Alerts: AlertsConfig{
			HistoryLimit: getEnvAsInt("ALERTS_HISTORY_LIMIT", 100),
			WebhookURL:   getEnv("ALERTS_WEBHOOK_URL", ""),
		},
		Trading: TradingConfig{
			StartingCash: getEnvAsFloat("TRADING_STARTING_CASH", 50000),
			FeeRate:      getEnvAsFloat("TRADING_FEE_RATE", 0.001),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration values that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.Quotes.FinanceHost == "" {
		return fmt.Errorf("QUOTES_FINANCE_HOST cannot be empty")
	}
	if !strings.HasPrefix(c.Quotes.FinanceHost, "http") {
		return fmt.Errorf("QUOTES_FINANCE_HOST must be an http(s) URL, got %q", c.Quotes.FinanceHost)
	}
	if c.History.MaxPoints <= 0 {
		return fmt.Errorf("HISTORY_MAX_POINTS must be positive, got %d", c.History.MaxPoints)
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 1 {
		return fmt.Errorf("TRADING_FEE_RATE must be in [0, 1), got %f", c.Trading.FeeRate)
	}
	if c.Quotes.BreakerFailures <= 0 {
		return fmt.Errorf("QUOTES_BREAKER_FAILURES must be positive, got %d", c.Quotes.BreakerFailures)
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.Poller.Interval)
	}
	return nil
}

// PostgresURL returns the database URL used by golang-migrate
func (c *PostgresConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
