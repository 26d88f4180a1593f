package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOption func(*redis.Options)

func WithRedisAddr(addr string) RedisOption {
	return func(o *redis.Options) {
		if addr != "" {
			o.Addr = addr
		}
	}
}

func WithRedisAuth(password string, db int) RedisOption {
	return func(o *redis.Options) {
		o.Password = password
		o.DB = db
	}
}

// WithRedisPool sets the pool size and how long a caller waits for a connection.
func WithRedisPool(size, minIdle int, wait time.Duration) RedisOption {
	return func(o *redis.Options) {
		o.PoolSize = size
		o.MinIdleConns = minIdle
		o.PoolTimeout = wait
	}
}

// ConnectRedis opens a client and pings it. The client is shared by the
// cache and the Redis job queue.
func ConnectRedis(ctx context.Context, opts ...RedisOption) (*redis.Client, error) {
	o := &redis.Options{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	client := redis.NewClient(o)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}
	return client, nil
}
