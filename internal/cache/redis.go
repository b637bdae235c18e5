package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache implementa Client sobre el cliente compartido de los stores.
// Close no lo cierra: es de quien lo abrió.
type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis usa c con prefix antepuesto a cada key.
func NewRedis(c *redis.Client, prefix string) *redisCache {
	return &redisCache{rdb: c, prefix: prefix}
}

func (c *redisCache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNoTTL
	}
	return c.rdb.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Touch usa GETEX: lectura y renovación son atómicas, así que una key
// borrada por Delete no vuelve a aparecer. GETEX con 0 haría PERSIST, por
// eso sin ttl es un GET simple.
func (c *redisCache) Touch(ctx context.Context, key string, ttl time.Duration) (string, error) {
	var cmd *redis.StringCmd
	if ttl > 0 {
		cmd = c.rdb.GetEx(ctx, c.prefix+key, ttl)
	} else {
		cmd = c.rdb.Get(ctx, c.prefix+key)
	}
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.prefix+key).Err()
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisCache) Close() error { return nil }
