package cache

import (
	"context"
	"time"

	"chronos-server/core/logger"

	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Client() *redis.Client
}

type redisCache struct {
	client *redis.Client
}

type CacheConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewCache(config CacheConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	logger.Info("Cache initialized", "addr", config.Addr, "db", config.DB)
	return &redisCache{client: client}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("Cache:Get:Error", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Warn("Cache:Set:Error", "key", key, "error", err)
	}
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.Warn("Cache:Delete:Error", "key", key, "error", err)
	}
}

func (c *redisCache) Client() *redis.Client {
	return c.client
}
