package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"

	"resume-pipeline-go/internal/constants"
	"resume-pipeline-go/internal/extract"
	"resume-pipeline-go/internal/processor"
	"resume-pipeline-go/internal/storage"
	"resume-pipeline-go/internal/storage/models"
)

// ObjectStore 上传与回滚所需的对象存储能力
type ObjectStore interface {
	UploadResumeFile(ctx context.Context, candidateID, ext string, reader io.Reader, fileSize int64, contentType string) (url string, path string, err error)
	DeleteResumeFile(ctx context.Context, objectPath string) error
}

// CandidateStore 候选人查找与登记能力
type CandidateStore interface {
	GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error)
	FindCandidateByEmail(ctx context.Context, email string) (*models.Candidate, error)
	CreateCandidate(ctx context.Context, candidate *models.Candidate) error
	UpdateCandidateResumeURL(ctx context.Context, candidateID, resumeURL string) error
}

// JobEnqueuer 处理任务的入队能力
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job storage.ResumeJobMessage) (string, error)
}

// StatusInitializer 状态追踪的登记入口
type StatusInitializer interface {
	Initialize(jobID, candidateID string)
}

// UploadRequest 一次简历上传请求。CandidateID与Email二选一：
// 前者要求候选人已存在，后者按邮箱查找或新建。
type UploadRequest struct {
	CandidateID  string
	Email        string
	FirstName    string
	LastName     string
	ConsentGiven bool
	FileName     string
	MimeType     string
	FileSize     int64
	File         io.Reader
}

// UploadResult 上传受理结果，任务此刻已入队
type UploadResult struct {
	JobID       string `json:"jobId"`
	CandidateID string `json:"candidateId"`
	FileURL     string `json:"fileUrl"`
	Status      string `json:"status"`
}

// Service 简历接收服务：校验、存储、入队、登记状态
type Service struct {
	objects     ObjectStore
	candidates  CandidateStore
	queue       JobEnqueuer
	tracker     StatusInitializer
	maxFileSize int64
	logger      zerolog.Logger
}

// NewService 创建接收服务
func NewService(objects ObjectStore, candidates CandidateStore, queue JobEnqueuer, tracker StatusInitializer, maxFileSize int64, logger zerolog.Logger) *Service {
	if maxFileSize <= 0 {
		maxFileSize = constants.DefaultMaxFileSize
	}
	return &Service{
		objects:     objects,
		candidates:  candidates,
		queue:       queue,
		tracker:     tracker,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// HandleUpload 受理一次简历上传。入队失败时回滚已上传的对象，
// 避免留下没有任务指向的孤儿文件。
func (s *Service) HandleUpload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	jobID, err := newUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("生成任务ID失败: %w", err)
	}

	if err := s.validate(jobID, req); err != nil {
		return nil, err
	}

	candidateID, err := s.resolveCandidate(ctx, jobID, req)
	if err != nil {
		return nil, err
	}

	ext := extract.ExtForMime(req.MimeType)
	fileURL, objectPath, err := s.objects.UploadResumeFile(ctx, candidateID, ext, req.File, req.FileSize, req.MimeType)
	if err != nil {
		return nil, fmt.Errorf("上传简历文件失败: %w", err)
	}

	if err := s.candidates.UpdateCandidateResumeURL(ctx, candidateID, fileURL); err != nil {
		s.logger.Warn().Err(err).Str("candidate_id", candidateID).Msg("更新候选人简历地址失败")
	}

	job := storage.ResumeJobMessage{
		JobID:        jobID,
		CandidateID:  candidateID,
		FileURL:      fileURL,
		FilePath:     objectPath,
		OriginalName: req.FileName,
		MimeType:     req.MimeType,
	}
	if _, err := s.queue.Enqueue(ctx, job); err != nil {
		// 回滚已上传的对象
		if delErr := s.objects.DeleteResumeFile(ctx, objectPath); delErr != nil {
			s.logger.Error().Err(delErr).Str("object_path", objectPath).Msg("回滚简历文件失败")
		}
		return nil, fmt.Errorf("任务入队失败: %w", err)
	}

	s.tracker.Initialize(jobID, candidateID)
	s.logger.Info().
		Str("job_id", jobID).
		Str("candidate_id", candidateID).
		Str("file_name", req.FileName).
		Msg("简历上传已受理")

	return &UploadResult{
		JobID:       jobID,
		CandidateID: candidateID,
		FileURL:     fileURL,
		Status:      string(constants.JobStatusQueued),
	}, nil
}

// validate 入参校验，全部失败均不可重试
func (s *Service) validate(jobID string, req *UploadRequest) error {
	if req == nil || req.File == nil {
		return processor.NewValidationError(jobID, constants.StageUpload, "Resume file is required")
	}
	if req.CandidateID == "" && req.Email == "" {
		return processor.NewValidationError(jobID, constants.StageUpload, "Either candidateId or email is required")
	}
	if !extract.SupportedMime(req.MimeType) {
		return processor.NewValidationError(jobID, constants.StageUpload,
			fmt.Sprintf("Unsupported file type: %s", req.MimeType))
	}
	if req.FileSize <= 0 {
		return processor.NewValidationError(jobID, constants.StageUpload, "Resume file is empty")
	}
	if req.FileSize > s.maxFileSize {
		return processor.NewValidationError(jobID, constants.StageUpload,
			fmt.Sprintf("File size %d exceeds limit of %d bytes", req.FileSize, s.maxFileSize))
	}
	return nil
}

// resolveCandidate 确定任务归属的候选人：显式ID必须已存在，
// 仅给出邮箱时按邮箱查找，查不到则新建候选人
func (s *Service) resolveCandidate(ctx context.Context, jobID string, req *UploadRequest) (string, error) {
	if req.CandidateID != "" {
		candidate, err := s.candidates.GetCandidateByID(ctx, req.CandidateID)
		if err != nil {
			if errors.Is(err, storage.ErrCandidateNotFound) {
				return "", processor.NewNotFoundError(jobID, constants.StageUpload, "Candidate", req.CandidateID)
			}
			return "", fmt.Errorf("查询候选人失败: %w", err)
		}
		return candidate.CandidateID, nil
	}

	existing, err := s.candidates.FindCandidateByEmail(ctx, req.Email)
	if err != nil {
		return "", fmt.Errorf("按邮箱查询候选人失败: %w", err)
	}
	if existing != nil {
		return existing.CandidateID, nil
	}

	candidateID, err := newUUIDv7()
	if err != nil {
		return "", fmt.Errorf("生成候选人ID失败: %w", err)
	}
	candidate := &models.Candidate{
		CandidateID:  candidateID,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		ConsentGiven: req.ConsentGiven,
	}
	if req.ConsentGiven {
		now := time.Now()
		candidate.ConsentAt = &now
	}
	if err := s.candidates.CreateCandidate(ctx, candidate); err != nil {
		return "", fmt.Errorf("创建候选人失败: %w", err)
	}

	s.logger.Info().Str("candidate_id", candidateID).Msg("新候选人已登记")
	return candidateID, nil
}

// newUUIDv7 生成时间有序的UUID，作为任务与候选人的主键
func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
