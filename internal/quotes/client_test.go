package quotes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/market-tracker/internal/config"
	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/storage"
)

func testCache(t *testing.T) *storage.RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return storage.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": 42}`)
	}))
	defer server.Close()

	client := NewClient(testQuotesConfig(server.URL), nil)

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, client.GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, 42, out.Value)
}

func TestClient_ServesCachedBodyAfterUpstreamFailure(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"value": 7}`)
	}))
	defer server.Close()

	cfg := testQuotesConfig(server.URL)
	cfg.CacheTTL = time.Hour
	client := NewClient(cfg, testCache(t))

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, client.GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, 7, out.Value)

	// Upstream dies: the cached body still serves
	healthy.Store(false)
	out.Value = 0
	require.NoError(t, client.GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, 7, out.Value)
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := testQuotesConfig(server.URL)
	cfg.RetryAttempts = 3
	client := NewClient(cfg, nil)

	_, err := client.GetBody(context.Background(), server.URL)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testQuotesConfig(server.URL)
	cfg.RetryAttempts = 3
	client := NewClient(cfg, nil)

	_, err := client.GetBody(context.Background(), server.URL)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_CircuitOpenErrorCategory(t *testing.T) {
	client := NewClient(testQuotesConfig(""), nil)
	client.breaker.ForceOpen()

	_, err := client.GetBody(context.Background(), "http://127.0.0.1:0/never")
	require.Error(t, err)

	catErr, ok := err.(*apperrors.CategorizedError)
	require.True(t, ok)
	assert.Equal(t, "CIRCUIT_OPEN", catErr.Code)
}

func TestNewsProvider_StaticDigestWithoutEndpoint(t *testing.T) {
	provider := NewNewsProvider(nil, &config.NewsConfig{})

	articles := provider.Fetch(context.Background())
	require.Len(t, articles, 5)
	for _, a := range articles {
		assert.NotEmpty(t, a.Title)
		assert.NotEmpty(t, a.Source)
	}
}

func TestNewsProvider_FallsBackOnUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(testQuotesConfig(server.URL), nil)
	provider := NewNewsProvider(client, &config.NewsConfig{Endpoint: server.URL})

	articles := provider.Fetch(context.Background())
	assert.Len(t, articles, 5)
}
