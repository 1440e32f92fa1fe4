package storage

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/logging"
)

// KVStore persists small JSON documents (settings, selected assets,
// portfolio state, backups) in Redis. Corrupt blobs are logged and treated
// as absent rather than propagated; this keeps the fetch and trading paths
// alive across a damaged key.
type KVStore struct {
	cache *RedisCache
}

// NewKVStore creates a KV store over the given Redis connection.
func NewKVStore(cache *RedisCache) *KVStore {
	return &KVStore{cache: cache}
}

// PutJSON marshals v and stores it under key. A zero TTL persists the key.
func (s *KVStore) PutJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewSerializationError(key, err)
	}
	if err := s.cache.Set(ctx, key, string(data), ttl); err != nil {
		return apperrors.NewDatabaseError("kv set "+key, err)
	}
	return nil
}

// GetJSON loads the document at key into out. Returns false when the key is
// absent or its contents cannot be decoded.
func (s *KVStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, apperrors.NewDatabaseError("kv get "+key, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		// Corrupt blob: fall back to the zero value instead of failing the
		// caller.
		logging.WithFields(map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		}).Warn("Discarding corrupt persisted value")
		return false, nil
	}

	return true, nil
}

// Delete removes the document at key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.cache.Del(ctx, key); err != nil {
		return apperrors.NewDatabaseError("kv del "+key, err)
	}
	return nil
}
