package storage

import (
	"context"
	"fmt"

	"resume-pipeline-go/internal/config"
	"resume-pipeline-go/internal/logger"
)

// Storage 聚合流水线依赖的全部存储设施。
// 任一组件初始化失败则整体失败，进程不应带病启动。
type Storage struct {
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
	MySQL    *MySQL
	Redis    *Redis
	Queue    *ResumeJobQueue
}

// NewStorage 按配置初始化所有存储组件
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	log := logger.Logger

	minioClient, err := NewMinIO(&cfg.MinIO, log)
	if err != nil {
		return nil, fmt.Errorf("初始化MinIO失败: %w", err)
	}

	mq, err := NewRabbitMQ(&cfg.RabbitMQ, log)
	if err != nil {
		return nil, fmt.Errorf("初始化RabbitMQ失败: %w", err)
	}

	db, err := NewMySQL(&cfg.MySQL)
	if err != nil {
		mq.Close()
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	if err := db.AutoMigrate(); err != nil {
		mq.Close()
		db.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	rdb, err := NewRedis(&cfg.Redis)
	if err != nil {
		mq.Close()
		db.Close()
		return nil, fmt.Errorf("初始化Redis失败: %w", err)
	}

	queue, err := NewResumeJobQueue(mq, rdb, cfg, log)
	if err != nil {
		mq.Close()
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("初始化任务队列失败: %w", err)
	}

	log.Info().Msg("存储层初始化完成")
	return &Storage{
		MinIO:    minioClient,
		RabbitMQ: mq,
		MySQL:    db,
		Redis:    rdb,
		Queue:    queue,
	}, nil
}

// Close 依次关闭各组件连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	logger.Logger.Info().Msg("存储层已关闭")
}
