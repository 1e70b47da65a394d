package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voyagr/internal/config"
	"voyagr/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisBookingCache keeps booking snapshots for the read path. A cache miss
// is not an error; callers fall through to the store.
type RedisBookingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisBookingCache(client *redis.Client, ttl time.Duration) *RedisBookingCache {
	return &RedisBookingCache{
		client: client,
		ttl:    ttl,
	}
}

func cacheKey(id string) string {
	return "booking:" + id
}

func (r *RedisBookingCache) Get(ctx context.Context, id string) (*models.Booking, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, cacheKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking from redis: %w", err)
	}

	var booking models.Booking
	if err := json.Unmarshal([]byte(val), &booking); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking: %w", err)
	}

	return &booking, nil
}

func (r *RedisBookingCache) Set(ctx context.Context, booking *models.Booking) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(booking.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set booking in redis: %w", err)
	}
	return nil
}

func (r *RedisBookingCache) Invalidate(ctx context.Context, id string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate booking in redis: %w", err)
	}
	return nil
}
