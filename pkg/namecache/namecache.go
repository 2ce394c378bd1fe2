// Package namecache caches user display names in Redis. Embedded documents
// persist only author ids; the read path resolves ids to names through this
// cache before falling back to the users collection, so a rename only has
// to wait out the TTL instead of rewriting documents.
package namecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/gomodule/redigo/redis"
)

// Cache is a TTL'd id-to-name map backed by Redis.
type Cache struct {
	pool *redis.Pool
	ttl  time.Duration
}

// New builds a cache over a Redis connection pool. Redis rejects
// non-positive EX values, so the TTL never drops below one second.
func New(addr, password string, ttl time.Duration) *Cache {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &Cache{
		pool: &redis.Pool{
			MaxIdle:     3,
			IdleTimeout: 4 * time.Minute,
			Dial: func() (redis.Conn, error) {
				var opts []redis.DialOption
				if password != "" {
					opts = append(opts, redis.DialPassword(password))
				}
				return redis.Dial("tcp", addr, opts...)
			},
		},
		ttl: ttl,
	}
}

func key(userID string) string {
	return "name:" + userID
}

// Get returns the cached name and whether it was present.
func (c *Cache) Get(ctx context.Context, userID string) (string, bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return "", false, fmt.Errorf("get redis conn: %w", err)
	}
	defer conn.Close()

	name, err := redis.String(conn.Do("GET", key(userID)))
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get name: %w", err)
	}
	return name, true, nil
}

// Put stores the name under the cache TTL.
func (c *Cache) Put(ctx context.Context, userID, name string) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SET", key(userID), name, "EX", int64(c.ttl.Seconds())); err != nil {
		return fmt.Errorf("put name: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.pool.Close()
}
