package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCacheMiss is returned by the tiers when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// localEntry is one local-tier cache entry. Expiry is checked lazily on
// read; there is no background sweep.
type localEntry struct {
	payload   []byte
	expiresAt time.Time
}

// localCache is the in-process fallback tier.
type localCache struct {
	mu   sync.RWMutex
	data map[string]localEntry
	now  func() time.Time
}

func newLocalCache() *localCache {
	return &localCache{
		data: make(map[string]localEntry),
		now:  time.Now,
	}
}

func (lc *localCache) get(key string) ([]byte, error) {
	lc.mu.RLock()
	entry, ok := lc.data[key]
	lc.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if lc.now().After(entry.expiresAt) {
		lc.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed.
		if cur, ok := lc.data[key]; ok && lc.now().After(cur.expiresAt) {
			delete(lc.data, key)
		}
		lc.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return entry.payload, nil
}

func (lc *localCache) set(key string, payload []byte, ttl time.Duration) {
	lc.mu.Lock()
	lc.data[key] = localEntry{payload: payload, expiresAt: lc.now().Add(ttl)}
	lc.mu.Unlock()
}

// Fetcher wraps blocking upstream calls with a circuit breaker and a hybrid
// TTL cache: a shared redis tier fronted by a local in-process tier. Redis
// being down never fails a call; the layer degrades to local-only and logs
// the degradation once per transition, not per call.
type Fetcher struct {
	redis   *redis.Client
	local   *localCache
	breaker *CircuitBreaker
	logger  zerolog.Logger

	mu      sync.Mutex
	healthy bool
}

// NewFetcher creates a fetch layer. redisClient may be nil, in which case
// only the local tier is used.
func NewFetcher(redisClient *redis.Client, breaker *CircuitBreaker, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		redis:   redisClient,
		local:   newLocalCache(),
		breaker: breaker,
		logger:  logger.With().Str("component", "fetch").Logger(),
		healthy: redisClient != nil,
	}
}

// Call looks up key in the shared then local cache tier; on a miss it runs
// fn through the circuit breaker, stores the JSON-encoded result in both
// tiers with the caller-supplied ttl, and decodes it into dest.
func (f *Fetcher) Call(ctx context.Context, key string, ttl time.Duration, dest interface{}, fn func(ctx context.Context) (interface{}, error)) error {
	if payload, err := f.sharedGet(ctx, key); err == nil {
		return json.Unmarshal(payload, dest)
	}
	if payload, err := f.local.get(key); err == nil {
		return json.Unmarshal(payload, dest)
	}

	var value interface{}
	err := f.breaker.Do(func() error {
		v, callErr := fn(ctx)
		if callErr != nil {
			return callErr
		}
		value = v
		return nil
	})
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	f.local.set(key, payload, ttl)
	f.sharedSet(ctx, key, payload, ttl)
	return json.Unmarshal(payload, dest)
}

func (f *Fetcher) sharedGet(ctx context.Context, key string) ([]byte, error) {
	if f.redis == nil {
		return nil, ErrCacheMiss
	}
	payload, err := f.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		f.markHealthy()
		return nil, ErrCacheMiss
	}
	if err != nil {
		f.markDegraded(err)
		return nil, ErrCacheMiss
	}
	f.markHealthy()
	return payload, nil
}

func (f *Fetcher) sharedSet(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if f.redis == nil {
		return
	}
	if err := f.redis.Set(ctx, key, payload, ttl).Err(); err != nil {
		f.markDegraded(err)
		return
	}
	f.markHealthy()
}

func (f *Fetcher) markDegraded(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthy {
		f.healthy = false
		f.logger.Warn().Err(err).Msg("shared cache tier unavailable, degrading to local tier")
	}
}

func (f *Fetcher) markHealthy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		f.healthy = true
		f.logger.Info().Msg("shared cache tier recovered")
	}
}
