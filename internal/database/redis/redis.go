package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"docstack/internal/config"
)

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to Redis: %w", err)
	}
	return rdb, nil
}
