package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"

	"resume-pipeline-go/internal/config"
)

// ObjectStorage 对象存储网关。上传返回持久URL和对象路径，
// 后续下载/删除均以路径为准。
type ObjectStorage interface {
	UploadResumeFile(ctx context.Context, candidateID, ext string, reader io.Reader, fileSize int64, contentType string) (url string, path string, err error)
	GetResumeFile(ctx context.Context, objectPath string) ([]byte, error)
	DeleteResumeFile(ctx context.Context, objectPath string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger zerolog.Logger
}

// NewMinIO 创建MinIO客户端并确保存储桶就绪
func NewMinIO(cfg *config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.ResumeBucket
	if bucket == "" {
		bucket = "resumes"
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		bucket: bucket,
		logger: logger,
	}

	if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保存储桶 %s 存在失败: %w", bucket, err)
	}

	if cfg.FileExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), bucket, "expire-resumes", cfg.FileExpireDays); err != nil {
			logger.Warn().Err(err).Str("bucket", bucket).Msg("设置生命周期规则失败")
		}
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", bucket).Msg("MinIO客户端初始化成功")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		if err := m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Info().Str("bucket", bucketName).Msg("存储桶已创建")
	}
	return nil
}

// setupBucketLifecycle 为存储桶设置对象过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// UploadResumeFile 上传简历文件，返回持久URL和对象路径
func (m *MinIO) UploadResumeFile(ctx context.Context, candidateID, ext string, reader io.Reader, fileSize int64, contentType string) (string, string, error) {
	if !strings.HasPrefix(ext, ".") && ext != "" {
		ext = "." + ext
	}
	objectPath := fmt.Sprintf("resumes/%s/%s%s", candidateID, uuid.NewString(), ext)

	_, err := m.client.PutObject(ctx, m.bucket, objectPath, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("上传简历文件失败: %w", err)
	}

	m.logger.Debug().
		Str("object_path", objectPath).
		Int64("size", fileSize).
		Str("content_type", contentType).
		Msg("简历文件上传成功")

	return m.objectURL(objectPath), objectPath, nil
}

// GetResumeFile 按对象路径下载简历文件内容
func (m *MinIO) GetResumeFile(ctx context.Context, objectPath string) ([]byte, error) {
	object, err := m.client.GetObject(ctx, m.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取简历对象失败: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("读取简历对象内容失败: %w", err)
	}
	return data, nil
}

// DeleteResumeFile 删除对象
func (m *MinIO) DeleteResumeFile(ctx context.Context, objectPath string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除简历对象失败: %w", err)
	}
	return nil
}

// objectURL 拼接对象的持久访问地址
func (m *MinIO) objectURL(objectPath string) string {
	scheme := "http"
	if m.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, m.cfg.Endpoint, m.bucket, objectPath)
}
