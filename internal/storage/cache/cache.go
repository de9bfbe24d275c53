// Package cache adds a Redis read-through layer in front of a storage.Store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"todotracker/internal/filter"
	"todotracker/internal/models"
	"todotracker/internal/storage"
)

const generationKey = "todo:gen"

// Store caches query results in Redis. Every successful write bumps a
// generation counter that is part of each cache key, so writes invalidate all
// cached reads at once.
type Store struct {
	base   storage.Store
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New wraps base with a Redis cache. A nil client or non-positive ttl disables caching.
func New(base storage.Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	if base == nil {
		panic("cache.New: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{base: base, redis: client, ttl: ttl, logger: logger}
}

func (c *Store) enabled() bool {
	return c.redis != nil && c.ttl > 0
}

func (c *Store) UpsertTask(ctx context.Context, update models.TaskUpdate) (string, error) {
	id, err := c.base.UpsertTask(ctx, update)
	if err != nil {
		return "", err
	}
	c.invalidate(ctx)
	return id, nil
}

func (c *Store) UpsertTodo(ctx context.Context, update models.TodoUpdate) (string, error) {
	id, err := c.base.UpsertTodo(ctx, update)
	if err != nil {
		return "", err
	}
	c.invalidate(ctx)
	return id, nil
}

func (c *Store) DeleteTasks(ctx context.Context, f filter.Filter) (int64, error) {
	n, err := c.base.DeleteTasks(ctx, f)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx)
	return n, nil
}

func (c *Store) DeleteTodos(ctx context.Context, f filter.Filter) (int64, error) {
	n, err := c.base.DeleteTodos(ctx, f)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx)
	return n, nil
}

func (c *Store) QueryTasks(ctx context.Context, f filter.Filter) ([]models.Task, error) {
	return cached(ctx, c, f.Key(), func() ([]models.Task, error) {
		return c.base.QueryTasks(ctx, f)
	})
}

func (c *Store) QueryTodos(ctx context.Context, f filter.Filter) ([]models.Todo, error) {
	return cached(ctx, c, f.Key(), func() ([]models.Todo, error) {
		return c.base.QueryTodos(ctx, f)
	})
}

// ExpiringTasks is only cached when the caller pins the start of the window;
// an implicit "now" start would never hit.
func (c *Store) ExpiringTasks(ctx context.Context, assignee string, start time.Time, end *time.Time) ([]models.Task, error) {
	if start.IsZero() {
		return c.base.ExpiringTasks(ctx, assignee, start, end)
	}
	key := filter.Expiring(assignee, start, end).Key()
	return cached(ctx, c, key, func() ([]models.Task, error) {
		return c.base.ExpiringTasks(ctx, assignee, start, end)
	})
}

func (c *Store) Close() error {
	err := c.base.Close()
	if c.redis != nil {
		if cerr := c.redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func cached[T any](ctx context.Context, c *Store, key string, load func() ([]T, error)) ([]T, error) {
	if !c.enabled() {
		return load()
	}

	gen, err := c.redis.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		c.logger.Warn("cache unavailable", slog.String("error", err.Error()))
		return load()
	}
	cacheKey := queryKey(gen, key)

	if data, err := c.redis.Get(ctx, cacheKey).Bytes(); err == nil {
		var out []T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		_ = c.redis.Del(ctx, cacheKey).Err()
	}

	out, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(out); err == nil {
		_ = c.redis.Set(ctx, cacheKey, data, c.ttl).Err()
	}
	return out, nil
}

func (c *Store) invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Incr(ctx, generationKey).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", slog.String("error", err.Error()))
	}
}

func queryKey(gen int64, filterKey string) string {
	return fmt.Sprintf("todo:q:%d:%s", gen, filterKey)
}
