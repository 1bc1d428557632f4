package cache

import (
	"context"
	"time"
)

// BytesCache is the minimal cache surface the read services need; the redis
// implementation lives in rediscache. Best effort everywhere: a cache miss
// or a cache error never fails a request.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
