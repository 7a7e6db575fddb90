// Package cache provides Redis-backed caching, including the session
// history cache layered over the conversation store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/infrastructure/config"
	"github.com/cookwise/v1/internal/ports/outbound"
)

// RedisRepository implements the CacheRepository interface over go-redis.
type RedisRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisClient builds a configured Redis client.
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	})
}

// NewRedisRepository creates a cache repository backed by Redis.
func NewRedisRepository(client *redis.Client, logger *zap.Logger) outbound.CacheRepository {
	return &RedisRepository{
		client: client,
		logger: logger.Named("redis-cache"),
	}
}

// Get retrieves a value. A missing key returns nil bytes without error.
func (r *RedisRepository) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.Debug("Cache get failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return data, nil
}

// Set stores a value with a TTL.
func (r *RedisRepository) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if err := r.client.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		r.logger.Debug("Cache set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Delete removes a value.
func (r *RedisRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Debug("Cache delete failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
