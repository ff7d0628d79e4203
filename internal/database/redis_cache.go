package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reading-platform/internal/interfaces"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ interfaces.Cache = (*TieredCache)(nil)

// Локальная копия живет не дольше maxLocalTTL: инвалидация из другой реплики видна с этой задержкой.
const maxLocalTTL = 30 * time.Second

const scanBatchSize = 200

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reading_platform_cache_requests_total",
	Help: "Cache lookups by tier and result.",
}, []string{"tier", "result"})

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// TieredCache - двухуровневый кэш: LRU в памяти процесса и Redis.
// Значения хранятся в JSON. При client == nil работает только локальный уровень.
type TieredCache struct {
	local  *lru.Cache
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewTieredCache(client *redis.Client, localSize int, logger *zap.Logger) (*TieredCache, error) {
	if localSize <= 0 {
		localSize = 1024
	}
	local, err := lru.New(localSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}
	return &TieredCache{
		local:  local,
		client: client,
		logger: logger.Named("TieredCache"),
		now:    time.Now,
	}, nil
}

func (c *TieredCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if raw, ok := c.local.Get(key); ok {
		entry := raw.(localEntry)
		if c.now().Before(entry.expiresAt) {
			cacheRequests.WithLabelValues("local", "hit").Inc()
			return true, json.Unmarshal(entry.data, dest)
		}
		c.local.Remove(key)
	}
	cacheRequests.WithLabelValues("local", "miss").Inc()

	if c.client == nil {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheRequests.WithLabelValues("redis", "miss").Inc()
		return false, nil
	}
	if err != nil {
		cacheRequests.WithLabelValues("redis", "error").Inc()
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	cacheRequests.WithLabelValues("redis", "hit").Inc()

	if ttl, err := c.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		c.storeLocal(key, data, ttl)
	}
	return true, json.Unmarshal(data, dest)
}

func (c *TieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	c.storeLocal(key, data, ttl)

	if c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (c *TieredCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		c.local.Remove(key)
	}
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// DeleteByPrefix удаляет все ключи с префиксом. В Redis ключи ищутся через SCAN, без KEYS.
func (c *TieredCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, k := range c.local.Keys() {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			c.local.Remove(key)
		}
	}
	if c.client == nil {
		return nil
	}

	pattern := globEscaper.Replace(prefix) + "*"
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys %q: %w", pattern, err)
			}
			deleted += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	c.logger.Debug("Cache keys dropped by prefix", zap.String("prefix", prefix), zap.Int("count", deleted))
	return nil
}

func (c *TieredCache) storeLocal(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > maxLocalTTL {
		ttl = maxLocalTTL
	}
	c.local.Add(key, localEntry{data: data, expiresAt: c.now().Add(ttl)})
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
