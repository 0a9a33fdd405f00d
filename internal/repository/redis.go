package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"urbanharvest/internal/config"
	"urbanharvest/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	cartKeyPrefix      = "cart:"
	chatStateKeyPrefix = "chat_state:"
	rateLimitKeyPrefix = "rate_limit:"
)

// RedisRepository keeps carts and bot chat state in Redis as JSON documents.
type RedisRepository struct {
	client   *redis.Client
	cartTTL  time.Duration
	stateTTL time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisRepository(client *redis.Client, cartTTL, stateTTL time.Duration) *RedisRepository {
	return &RedisRepository{
		client:   client,
		cartTTL:  cartTTL,
		stateTTL: stateTTL,
	}
}

func (r *RedisRepository) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisRepository) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (r *RedisRepository) del(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}
	return nil
}

// GetCart returns the stored cart or an empty one when the key is unknown.
func (r *RedisRepository) GetCart(ctx context.Context, key string) (*models.Cart, error) {
	var cart models.Cart
	if _, err := r.getJSON(ctx, cartKeyPrefix+key, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *RedisRepository) SaveCart(ctx context.Context, key string, cart *models.Cart) error {
	return r.setJSON(ctx, cartKeyPrefix+key, cart, r.cartTTL)
}

func (r *RedisRepository) DeleteCart(ctx context.Context, key string) error {
	return r.del(ctx, cartKeyPrefix+key)
}

func (r *RedisRepository) GetState(ctx context.Context, chatID int64) (*models.ChatState, error) {
	var state models.ChatState
	found, err := r.getJSON(ctx, fmt.Sprintf("%s%d", chatStateKeyPrefix, chatID), &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

func (r *RedisRepository) SetState(ctx context.Context, state *models.ChatState) error {
	return r.setJSON(ctx, fmt.Sprintf("%s%d", chatStateKeyPrefix, state.ChatID), state, r.stateTTL)
}

func (r *RedisRepository) ClearState(ctx context.Context, chatID int64) error {
	return r.del(ctx, fmt.Sprintf("%s%d", chatStateKeyPrefix, chatID))
}

func (r *RedisRepository) CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("%s%d", rateLimitKeyPrefix, chatID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
