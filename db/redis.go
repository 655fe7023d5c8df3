package db

import (
	"context"
	"fmt"
	"time"

	"soundvault/config"
	"soundvault/logger"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a Redis connection and verifies it with a ping.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis",
		logger.String("addr", fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort)),
		logger.Int("db", cfg.RedisDB),
	)
	return client, nil
}
