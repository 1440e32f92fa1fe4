// Package ratelimit provides a Redis-coordinated request budget for the
// upstream quote provider. When the API server and a standalone fetch worker
// run side by side they share one provider quota; local token buckets cannot
// see each other, so the budget is tracked in Redis with a sliding window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultTotalBudget    = 8               // Total requests per window
	DefaultReservedBudget = 3               // Reserved for interactive refreshes
	DefaultWindowSize     = time.Second     // 1 second sliding window
	DefaultKeyTTL         = 2 * time.Second // TTL for Redis keys (window + buffer)
)

// Redis key prefixes for quota tracking.
const (
	keyPrefixTotal    = "quota:total:"
	keyPrefixReserved = "quota:reserved:"
	keyPrefixShared   = "quota:shared:"
)

// Priority selects which budget pool a request draws from.
type Priority int

const (
	// PriorityHigh is for interactive requests (uses the reserved pool).
	PriorityHigh Priority = iota
	// PriorityLow is for background poll cycles (uses the shared pool).
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

type priorityKey struct{}

// WithPriority tags a context with a budget priority. Requests without a tag
// default to PriorityHigh.
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFromContext returns the tagged priority, defaulting to PriorityHigh.
func PriorityFromContext(ctx context.Context) Priority {
	if p, ok := ctx.Value(priorityKey{}).(Priority); ok {
		return p
	}
	return PriorityHigh
}

// Budget coordinates upstream request consumption across processes. Misses
// suggest a wait until the next window rather than failing hard.
type Budget struct {
	redis          redis.Cmdable
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
}

// BudgetConfig holds configuration for the shared budget.
type BudgetConfig struct {
	// Redis is required; the budget cannot coordinate without it.
	Redis redis.Cmdable

	// TotalBudget is the total requests per window. Default: 8.
	TotalBudget int

	// ReservedBudget is reserved for interactive requests. Default: 3.
	ReservedBudget int

	// WindowSize is the sliding window duration. Default: 1s.
	WindowSize time.Duration

	// KeyTTL is the TTL for Redis keys. Should be at least WindowSize.
	KeyTTL time.Duration
}

// Validate checks if the configuration is valid.
func (c *BudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	total := c.TotalBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	reserved := c.ReservedBudget
	if reserved == 0 {
		reserved = DefaultReservedBudget
	}
	if reserved > total {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", reserved, total)
	}

	return nil
}

// NewBudget creates a shared request budget.
func NewBudget(cfg *BudgetConfig) (*Budget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	total := cfg.TotalBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	reserved := cfg.ReservedBudget
	if reserved == 0 {
		reserved = DefaultReservedBudget
	}
	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}
	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = DefaultKeyTTL
	}

	return &Budget{
		redis:          cfg.Redis,
		totalBudget:    total,
		reservedBudget: reserved,
		sharedBudget:   total - reserved,
		windowSize:     windowSize,
		keyTTL:         keyTTL,
	}, nil
}

func (b *Budget) windowTimestamp() int64 {
	return time.Now().Truncate(b.windowSize).UnixMilli()
}

func (b *Budget) keys(windowTS int64) (totalKey, reservedKey, sharedKey string) {
	ts := strconv.FormatInt(windowTS, 10)
	return keyPrefixTotal + ts, keyPrefixReserved + ts, keyPrefixShared + ts
}

// consumeScript atomically checks and increments both the total and the pool
// counter so concurrent processes cannot overshoot the budget.
var consumeScript = redis.NewScript(`
	local totalKey = KEYS[1]
	local poolKey = KEYS[2]
	local n = tonumber(ARGV[1])
	local totalBudget = tonumber(ARGV[2])
	local poolBudget = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
	local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

	if totalUsed + n > totalBudget then
		return 0
	end
	if poolUsed + n > poolBudget then
		return 0
	end

	redis.call('INCRBY', totalKey, n)
	redis.call('EXPIRE', totalKey, ttl)
	redis.call('INCRBY', poolKey, n)
	redis.call('EXPIRE', poolKey, ttl)

	return 1
`)

// TryConsume attempts to take n requests from the pool selected by priority.
// Returns whether the take was allowed, and a suggested wait until the next
// window when it was not.
func (b *Budget) TryConsume(ctx context.Context, n int, priority Priority) (bool, time.Duration, error) {
	if n <= 0 {
		return true, 0, nil
	}

	windowTS := b.windowTimestamp()
	totalKey, reservedKey, sharedKey := b.keys(windowTS)

	poolKey, poolBudget := sharedKey, b.sharedBudget
	if priority == PriorityHigh {
		poolKey, poolBudget = reservedKey, b.reservedBudget
	}

	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	allowed, err := consumeScript.Run(ctx, b.redis,
		[]string{totalKey, poolKey},
		n, b.totalBudget, poolBudget, ttlSeconds,
	).Int()
	if err != nil {
		return false, 0, fmt.Errorf("budget consume failed: %w", err)
	}

	if allowed == 1 {
		return true, 0, nil
	}

	windowEnd := time.UnixMilli(windowTS).Add(b.windowSize)
	wait := time.Until(windowEnd)
	if wait < 0 {
		wait = 0
	}
	return false, wait, nil
}

// Wait blocks until n requests can be consumed or the context expires.
func (b *Budget) Wait(ctx context.Context, n int, priority Priority) error {
	for {
		allowed, wait, err := b.TryConsume(ctx, n, priority)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Usage reports consumption in the current window.
type Usage struct {
	TotalUsed      int       `json:"totalUsed"`
	ReservedUsed   int       `json:"reservedUsed"`
	SharedUsed     int       `json:"sharedUsed"`
	TotalBudget    int       `json:"totalBudget"`
	ReservedBudget int       `json:"reservedBudget"`
	SharedBudget   int       `json:"sharedBudget"`
	WindowStart    time.Time `json:"windowStart"`
}

// GetUsage returns consumption counters for the current window.
func (b *Budget) GetUsage(ctx context.Context) (*Usage, error) {
	windowTS := b.windowTimestamp()
	totalKey, reservedKey, sharedKey := b.keys(windowTS)

	vals, err := b.redis.MGet(ctx, totalKey, reservedKey, sharedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("budget usage read failed: %w", err)
	}

	parse := func(v interface{}) int {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		n, _ := strconv.Atoi(s)
		return n
	}

	return &Usage{
		TotalUsed:      parse(vals[0]),
		ReservedUsed:   parse(vals[1]),
		SharedUsed:     parse(vals[2]),
		TotalBudget:    b.totalBudget,
		ReservedBudget: b.reservedBudget,
		SharedBudget:   b.sharedBudget,
		WindowStart:    time.UnixMilli(windowTS),
	}, nil
}
