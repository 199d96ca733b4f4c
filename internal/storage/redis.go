package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"resume-pipeline-go/internal/config"
)

// ErrNotFound 键不存在。包装底层redis.Nil以隔离依赖。
var ErrNotFound = redis.Nil

// Redis 键值存储适配器，当前承载队列自身的任务状态
type Redis struct {
	client *redis.Client
}

// NewRedis 创建Redis客户端并挂载追踪钩子
func NewRedis(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("Redis配置不能为空")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("挂载Redis追踪钩子失败: %w", err)
	}

	return &Redis{client: client}, nil
}

// Client 返回底层客户端
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Close 关闭连接
func (r *Redis) Close() error {
	return r.client.Close()
}
