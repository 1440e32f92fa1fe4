// Package storage provides database connections and repository implementations.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/market-tracker/internal/config"
	"github.com/redis/go-redis/v9"
)

// Key prefixes and names for the Redis keyspace.
const (
	KeySettings       = "settings"
	KeySelectedAssets = "assets:selected"
	KeyBaseCurrency   = "currency:base"
	KeyTheme          = "theme"
	KeyPortfolioState = "portfolio:state"
	KeyAutoBackup     = "backup:auto"
	KeySnapshotCur    = "snapshot:current"
	KeySnapshotPrev   = "snapshot:previous"

	historyKeyPrefix  = "history:"
	urlCacheKeyPrefix = "cache:url:"
)

// HistoryKey returns the Redis key holding an asset's price history blob.
func HistoryKey(assetKey string) string {
	return historyKeyPrefix + assetKey
}

// URLCacheKey returns the Redis key mirroring a successful upstream response.
func URLCacheKey(url string) string {
	return urlCacheKeyPrefix + url
}

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing Redis client. Used by tests
// running against miniredis.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set sets a key-value pair with TTL. A zero TTL persists the key.
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value by key. Returns redis.Nil when the key is absent.
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Del deletes one or more keys
func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Exists checks if a key exists
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	return count > 0, err
}

// IsNotFound reports whether the error signals an absent key.
func IsNotFound(err error) bool {
	return err == redis.Nil
}
