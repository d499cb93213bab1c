package entitycache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FetchFunc is the remote miss path: fetch one entity payload by kind and id.
type FetchFunc func(ctx context.Context, kind, id string) ([]byte, error)

// Cache is a read-through mirror of platform entities. Each kind lives in one
// Redis hash keyed by entity id; values are the raw JSON payloads. Snapshots
// replace a kind's hash wholesale, never partially.
type Cache struct {
	rdb    *redis.Client
	fetch  FetchFunc
	group  singleflight.Group
	logger *zap.Logger
}

func New(rdb *redis.Client, fetch FetchFunc, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{rdb: rdb, fetch: fetch, logger: logger}
}

// GetOrFetch returns the cached entity or fetches, stores, and returns it.
// Concurrent callers for the same uncached id share a single remote fetch.
func (c *Cache) GetOrFetch(ctx context.Context, kind, id string) ([]byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("empty entity id")
	}
	raw, err := c.rdb.HGet(ctx, kind, id).Bytes()
	if err == nil {
		return raw, nil
	}
	if err != redis.Nil {
		return nil, err
	}

	v, err, _ := c.group.Do(kind+":"+id, func() (any, error) {
		// A coalesced peer may have stored it while we queued.
		if raw, err := c.rdb.HGet(ctx, kind, id).Bytes(); err == nil {
			return raw, nil
		}
		raw, err := c.fetch(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		// Write-through before returning so later readers see it.
		if err := c.rdb.HSet(ctx, kind, id, raw).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Peek is a cache-only lookup; it never triggers a remote call.
func (c *Cache) Peek(ctx context.Context, kind, id string) ([]byte, bool, error) {
	raw, err := c.rdb.HGet(ctx, kind, id).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// BulkLoad replaces the entire mapping for a kind with the snapshot contents.
func (c *Cache) BulkLoad(ctx context.Context, kind string, entities map[string][]byte) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, kind)
	if len(entities) > 0 {
		pairs := make([]any, 0, len(entities)*2)
		for id, raw := range entities {
			pairs = append(pairs, id, raw)
		}
		pipe.HSet(ctx, kind, pairs...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bulk load %s: %w", kind, err)
	}
	c.logger.Debug("cache_bulk_load", zap.String("kind", kind), zap.Int("count", len(entities)))
	return nil
}

// Count returns the number of cached entities of a kind.
func (c *Cache) Count(ctx context.Context, kind string) (int64, error) {
	return c.rdb.HLen(ctx, kind).Result()
}
