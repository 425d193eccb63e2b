package db

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
)

var (
	// RedisClient 全局Redis客户端实例
	RedisClient *redis.Client
)

// InitRedis 初始化Redis连接（排行榜与统计缓存）
func InitRedis(cfg *config.RedisConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return fmt.Errorf("Redis连接失败: %w", err)
	}

	RedisClient = client
	log.GetLogger().Info("成功连接到Redis服务器", "addr", cfg.GetRedisAddr())
	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() {
	if RedisClient == nil {
		return
	}
	if err := RedisClient.Close(); err != nil {
		log.GetLogger().Error("关闭Redis连接时发生错误", err)
		return
	}
	log.GetLogger().Info("Redis连接已关闭")
}
