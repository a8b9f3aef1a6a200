package database

import (
	"context"
	"fmt"
	"time"

	"turing_arena/internal/config"
	"turing_arena/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisPingTimeout = 3 * time.Second

// NewRedisClient 只创建客户端，不做连通性检查
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  redisPingTimeout,
	})
}

// InitRedis 连接失败时关闭客户端并返回错误，由调用方决定是否退出
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := NewRedisClient(cfg)
	addr := rdb.Options().Addr

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	logger.Log.Info("Redis connection established",
		zap.String("addr", addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", rdb.Options().PoolSize))
	return rdb, nil
}
