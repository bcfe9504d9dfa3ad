package infra

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of Redis used for failed-index bookkeeping.
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...any) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Close() error
}

type RedisWrapper struct {
	client *redis.Client
}

// NewRedisClient connects using a redis:// or rediss:// URL. TLS follows
// the URL scheme.
func NewRedisClient(cfg config.RedisConfig) (RedisClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	cpus := runtime.GOMAXPROCS(0)
	opts.PoolSize = cpus * 10
	opts.MinIdleConns = cpus * 2
	opts.ConnMaxLifetime = 30 * time.Minute
	opts.ConnMaxIdleTime = 5 * time.Minute
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 500 * time.Millisecond

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to Redis", "pong", pong)

	return &RedisWrapper{client: client}, nil
}

func (rw *RedisWrapper) LPush(ctx context.Context, key string, values ...any) error {
	return rw.client.LPush(ctx, key, values...).Err()
}

func (rw *RedisWrapper) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return rw.client.LRange(ctx, key, start, stop).Result()
}

func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}
