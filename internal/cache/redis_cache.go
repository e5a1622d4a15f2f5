package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aFirmae/Scribe/internal/config"
	"github.com/aFirmae/Scribe/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type RedisRoomCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRoomCache(cfg config.RedisConfig) (*RedisRoomCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRoomCache{
		client: client,
		prefix: cfg.CachePrefix,
	}, nil
}

func (c *RedisRoomCache) key(code string) string {
	return fmt.Sprintf("%s:code:%s", c.prefix, code)
}

func (c *RedisRoomCache) Get(ctx context.Context, code string) (*domain.Room, error) {
	data, err := c.client.Get(ctx, c.key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached room: %w", err)
	}
	return &room, nil
}

func (c *RedisRoomCache) Set(ctx context.Context, code string, room *domain.Room, ttl time.Duration) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	if err := c.client.Set(ctx, c.key(code), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisRoomCache) Delete(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, c.key(code))
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (c *RedisRoomCache) Close() error {
	return c.client.Close()
}
