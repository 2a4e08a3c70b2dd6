package lastorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chowfast/internal/domain"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Save(ctx context.Context, key string, order domain.LastOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal last order: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set last order: %w", err)
	}
	return nil
}

// Consume reads and deletes the key in one GETDEL so two readers cannot both see it.
func (r *Redis) Consume(ctx context.Context, key string) (*domain.LastOrder, error) {
	data, err := r.client.GetDel(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel last order: %w", err)
	}
	var order domain.LastOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("unmarshal last order: %w", err)
	}
	return &order, nil
}

func redisKey(key string) string {
	return fmt.Sprintf("lastorder:%s", key)
}
