// Package ttl implements an expiring cache over the durable key-value store.
//
// The cache is an optimization, never a source of truth: store failures are
// logged and degrade to misses instead of reaching the caller.
package ttl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"goflare.io/punchclock/internal/config"
	"goflare.io/punchclock/internal/kv"
	"goflare.io/punchclock/internal/models"
	"goflare.io/punchclock/pkg/serialization"
)

// ErrEncode is returned by Set when the value cannot be serialized.
var ErrEncode = errors.New("failed to encode cache value")

// Option customizes a Cache built from the shared config.
type Option func(*Cache)

// WithNamespace stores entries under ns+key instead of the configured namespace.
func WithNamespace(ns string) Option {
	return func(c *Cache) {
		c.namespace = ns
	}
}

// WithDefaultTTL overrides the configured default expiration.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithMaxEntries overrides the configured size bound.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// Cache is a namespaced expiring cache. Safe for concurrent use.
type Cache struct {
	store      kv.Store
	codec      serialization.Codec
	namespace  string
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	// mu is held shared by writers between the store write and the filter
	// add, and exclusively from a key listing until the filter is rebuilt.
	mu sync.RWMutex

	hot     *hotLayer
	filter  *bloomFilter
	metrics *models.Metrics
	tracer  trace.Tracer
	logger  *zap.Logger
}

// New creates a Cache over store. The bloom filter is seeded from the keys
// already persisted under the namespace.
func New(ctx context.Context, store kv.Store, cfg *config.Config, metrics *models.Metrics, opts ...Option) (*Cache, error) {
	if metrics == nil {
		metrics = models.NewMetrics()
	}

	c := &Cache{
		store:      store,
		codec:      cfg.Serialization,
		namespace:  cfg.CacheConfig.Namespace,
		defaultTTL: cfg.CacheConfig.DefaultExpiration,
		maxEntries: cfg.CacheConfig.MaxEntries,
		now:        cfg.Now,
		metrics:    metrics,
		tracer:     otel.Tracer("punchclock/cache"),
		logger:     cfg.Logger.Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("namespace", c.namespace))

	if cfg.CacheConfig.EnableHotCache {
		size := cfg.CacheConfig.HotCacheSize
		if size < int64(c.maxEntries) {
			size = int64(c.maxEntries)
		}
		hot, err := newHotLayer(size, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize hot cache: %w", err)
		}
		c.hot = hot
	}

	if bf := cfg.CacheConfig.BloomFilter; bf.Enabled {
		c.filter = newBloomFilter(bf.ExpectedItems, bf.FalsePositiveRate)
		keys, err := c.namespacedKeys(ctx)
		if err != nil {
			// a filter missing persisted keys would hide them; run without it
			c.logger.Warn("Bloom filter disabled, failed to list stored keys", zap.Error(err))
			c.filter = nil
		} else {
			c.filter.rebuild(keys)
		}
	}

	return c, nil
}

// Set stores value under key for ttl (default expiration when omitted or
// non-positive) and then drops expired and excess entries.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl ...time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "Cache.Set", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	expiration := c.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		expiration = ttl[0]
	}

	data, err := c.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	entry := models.NewEntry(data, c.now(), expiration)
	raw, err := c.codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	c.mu.RLock()
	if err := c.store.Set(ctx, c.namespace+key, string(raw)); err != nil {
		c.mu.RUnlock()
		c.storeFailed("set", key, err)
		return nil
	}
	if c.hot != nil {
		c.hot.set(key, entry)
	}
	if c.filter != nil {
		c.filter.add(key)
	}
	c.mu.RUnlock()

	c.cleanup(ctx)
	return nil
}

// Get decodes the value stored under key into dst. It reports false when the
// key is absent, expired, unreadable or the store failed.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	ctx, span := c.tracer.Start(ctx, "Cache.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	entry, ok := c.lookup(ctx, key)
	if !ok {
		c.metrics.Misses.Inc()
		span.SetAttributes(attribute.Bool("hit", false))
		return false
	}

	if err := c.codec.Unmarshal(entry.Data, dst); err != nil {
		c.logger.Warn("Dropping undecodable cache value", zap.String("key", key), zap.Error(err))
		c.drop(ctx, key)
		c.metrics.Misses.Inc()
		return false
	}

	c.metrics.Hits.Inc()
	span.SetAttributes(attribute.Bool("hit", true))
	return true
}

// Has reports whether a valid entry exists for key.
func (c *Cache) Has(ctx context.Context, key string) bool {
	_, ok := c.lookup(ctx, key)
	return ok
}

// GetOrSet returns the cached value for key or, on a miss, calls compute once,
// caches its result and returns it. Concurrent callers are not coalesced.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error), ttl ...time.Duration) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := c.Set(ctx, key, value, ttl...); err != nil {
		c.logger.Warn("Failed to cache computed value", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// Remove deletes key.
func (c *Cache) Remove(ctx context.Context, key string) {
	ctx, span := c.tracer.Start(ctx, "Cache.Remove", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	c.drop(ctx, key)
}

// Clear deletes every entry of this cache's namespace.
func (c *Cache) Clear(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "Cache.Clear")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.namespacedKeys(ctx)
	if err != nil {
		c.storeFailed("keys", "", err)
		return
	}
	if err := c.store.RemoveMany(ctx, c.storeKeys(keys)); err != nil {
		c.storeFailed("remove many", "", err)
	}

	if c.hot != nil {
		c.hot.clear()
	}
	if c.filter != nil {
		c.filter.rebuild(nil)
	}
}

// InvalidatePattern deletes every entry whose key contains substr and
// returns how many keys were removed.
func (c *Cache) InvalidatePattern(ctx context.Context, substr string) int {
	ctx, span := c.tracer.Start(ctx, "Cache.InvalidatePattern", trace.WithAttributes(attribute.String("pattern", substr)))
	defer span.End()

	keys, err := c.namespacedKeys(ctx)
	if err != nil {
		c.storeFailed("keys", "", err)
		return 0
	}

	var matched []string
	for _, key := range keys {
		if strings.Contains(key, substr) {
			matched = append(matched, key)
		}
	}
	if len(matched) == 0 {
		return 0
	}

	if err := c.store.RemoveMany(ctx, c.storeKeys(matched)); err != nil {
		c.storeFailed("remove many", substr, err)
		return 0
	}
	if c.hot != nil {
		c.hot.delete(matched...)
	}

	c.logger.Debug("Invalidated cache entries", zap.String("pattern", substr), zap.Int("count", len(matched)))
	span.SetAttributes(attribute.Int("count", len(matched)))
	return len(matched)
}

// Len returns the number of entries persisted under the namespace.
func (c *Cache) Len(ctx context.Context) int {
	keys, err := c.namespacedKeys(ctx)
	if err != nil {
		c.storeFailed("keys", "", err)
		return 0
	}
	return len(keys)
}

// Close releases the hot layer.
func (c *Cache) Close() {
	if c.hot != nil {
		c.hot.close()
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (*models.Entry, bool) {
	if c.filter != nil && !c.filter.test(key) {
		return nil, false
	}

	now := c.now()

	if c.hot != nil {
		if entry, ok := c.hot.get(key); ok {
			if !entry.IsExpired(now) {
				return entry, true
			}
			c.expire(ctx, key)
			return nil, false
		}
	}

	entry, err := c.read(ctx, key)
	if err != nil {
		return nil, false
	}

	if entry.IsExpired(now) {
		c.expire(ctx, key)
		return nil, false
	}

	if c.hot != nil {
		c.hot.set(key, entry)
	}
	return entry, true
}

// read loads and decodes the envelope of key. Corrupted envelopes are deleted.
func (c *Cache) read(ctx context.Context, key string) (*models.Entry, error) {
	raw, err := c.store.Get(ctx, c.namespace+key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.storeFailed("get", key, err)
		}
		return nil, err
	}

	var entry models.Entry
	if err := c.codec.Unmarshal([]byte(raw), &entry); err != nil || !entry.Valid() {
		c.logger.Warn("Dropping corrupted cache entry", zap.String("key", key), zap.Error(err))
		c.drop(ctx, key)
		if err == nil {
			err = errors.New("invalid cache entry")
		}
		return nil, err
	}
	return &entry, nil
}

func (c *Cache) expire(ctx context.Context, key string) {
	c.metrics.Expirations.Inc()
	c.drop(ctx, key)
}

func (c *Cache) drop(ctx context.Context, key string) {
	if c.hot != nil {
		c.hot.delete(key)
	}
	if err := c.store.Remove(ctx, c.namespace+key); err != nil {
		c.storeFailed("remove", key, err)
	}
}

type survivor struct {
	key      string
	storedAt int64
}

// cleanup deletes expired and unreadable entries, then evicts the oldest
// entries beyond maxEntries. Eviction order is insertion time, not access.
func (c *Cache) cleanup(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.namespacedKeys(ctx)
	if err != nil {
		c.storeFailed("keys", "", err)
		return
	}

	now := c.now()
	var (
		stale     []string
		survivors []survivor
	)
	for _, key := range keys {
		raw, err := c.store.Get(ctx, c.namespace+key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			c.storeFailed("get", key, err)
			continue
		}
		var entry models.Entry
		if err := c.codec.Unmarshal([]byte(raw), &entry); err != nil || !entry.Valid() || entry.IsExpired(now) {
			stale = append(stale, key)
			continue
		}
		survivors = append(survivors, survivor{key: key, storedAt: entry.StoredAt})
	}

	var evicted []string
	if excess := len(survivors) - c.maxEntries; excess > 0 {
		sort.SliceStable(survivors, func(i, j int) bool {
			return survivors[i].storedAt < survivors[j].storedAt
		})
		for _, s := range survivors[:excess] {
			evicted = append(evicted, s.key)
		}
		survivors = survivors[excess:]
	}

	removed := append(stale, evicted...)
	if len(removed) == 0 {
		return
	}

	if err := c.store.RemoveMany(ctx, c.storeKeys(removed)); err != nil {
		c.storeFailed("remove many", "", err)
		return
	}

	c.metrics.Expirations.Add(int64(len(stale)))
	c.metrics.Evictions.Add(int64(len(evicted)))

	if c.hot != nil {
		c.hot.delete(removed...)
	}
	if c.filter != nil {
		live := make([]string, len(survivors))
		for i, s := range survivors {
			live[i] = s.key
		}
		c.filter.rebuild(live)
	}

	c.logger.Debug("Cache cleanup",
		zap.Int("expired", len(stale)),
		zap.Int("evicted", len(evicted)),
		zap.Int("remaining", len(survivors)),
	)
}

// namespacedKeys lists stored keys of this namespace with the prefix stripped.
func (c *Cache) namespacedKeys(ctx context.Context) ([]string, error) {
	all, err := c.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, c.namespace) {
			keys = append(keys, strings.TrimPrefix(k, c.namespace))
		}
	}
	return keys, nil
}

func (c *Cache) storeKeys(keys []string) []string {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.namespace + k
	}
	return full
}

func (c *Cache) storeFailed(op, key string, err error) {
	c.metrics.StoreErrors.Inc()
	c.logger.Warn("Cache store operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
