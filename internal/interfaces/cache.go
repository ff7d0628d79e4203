package interfaces

import (
	"context"
	"time"
)

// Cache - кэш JSON-значений с TTL.
type Cache interface {
	// Get декодирует значение в dest. found=false, если ключа нет.
	Get(ctx context.Context, key string, dest interface{}) (found bool, err error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}
