// Package redis builds the shared go-redis connection used by the alert
// fan-out publisher.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ClientConfig holds Redis connection configuration.
type ClientConfig struct {
	Addr       string
	DB         int
	Password   string
	PoolSize   int
	MaxRetries int
}

// NewClient dials Redis and verifies the connection with a Ping before
// returning, so a misconfigured address fails at startup rather than on
// the first publish.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		DB:         cfg.DB,
		Password:   cfg.Password,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("redis client connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return rdb, nil
}
