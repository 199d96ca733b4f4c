package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"resume-pipeline-go/internal/intake"
	"resume-pipeline-go/internal/processor"
	"resume-pipeline-go/internal/storage"
)

// PipelineHandler 流水线HTTP入口：上传受理与状态查询
type PipelineHandler struct {
	intake  *intake.Service
	tracker *processor.StatusTracker
	logger  zerolog.Logger
}

// NewPipelineHandler 创建流水线处理器
func NewPipelineHandler(intakeSvc *intake.Service, tracker *processor.StatusTracker, logger zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{
		intake:  intakeSvc,
		tracker: tracker,
		logger:  logger,
	}
}

// UploadResume 受理简历上传，multipart表单字段：
// file为简历文件，candidateId/email二选一，firstName/lastName/consentGiven可选
func (h *PipelineHandler) UploadResume(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "Resume file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error().Err(err).Msg("打开上传文件失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	req := &intake.UploadRequest{
		CandidateID:  string(c.FormValue("candidateId")),
		Email:        string(c.FormValue("email")),
		FirstName:    string(c.FormValue("firstName")),
		LastName:     string(c.FormValue("lastName")),
		ConsentGiven: string(c.FormValue("consentGiven")) == "true",
		FileName:     fileHeader.Filename,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		FileSize:     fileHeader.Size,
		File:         file,
	}

	result, err := h.intake.HandleUpload(ctx, req)
	if err != nil {
		h.writeIntakeError(c, err)
		return
	}
	c.JSON(consts.StatusAccepted, result)
}

// GetStatus 查询任务状态
func (h *PipelineHandler) GetStatus(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("jobId")
	status := h.tracker.Get(ctx, jobID)
	if status == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "Job not found: " + jobID})
		return
	}
	c.JSON(consts.StatusOK, status)
}

// RetryJob 手工重试失败任务
func (h *PipelineHandler) RetryJob(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("jobId")
	err := h.tracker.Retry(ctx, jobID)
	switch {
	case err == nil:
		c.JSON(consts.StatusOK, utils.H{"jobId": jobID, "status": "retrying"})
	case errors.Is(err, processor.ErrRetryExhausted):
		c.JSON(consts.StatusConflict, utils.H{"error": "Retry attempts exhausted for job: " + jobID})
	case errors.Is(err, storage.ErrJobNotFound):
		c.JSON(consts.StatusNotFound, utils.H{"error": "Job not found: " + jobID})
	default:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("手工重试失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "Failed to retry job"})
	}
}

// GetStatistics 返回各状态任务计数
func (h *PipelineHandler) GetStatistics(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, h.tracker.Statistics())
}

// GetHealth 返回流水线健康评估，unhealthy时响应503
func (h *PipelineHandler) GetHealth(ctx context.Context, c *app.RequestContext) {
	report := h.tracker.Health()
	code := consts.StatusOK
	if report.Status == "unhealthy" {
		code = consts.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// writeIntakeError 把接收服务的错误映射为HTTP状态码
func (h *PipelineHandler) writeIntakeError(c *app.RequestContext, err error) {
	switch {
	case errors.Is(err, processor.ErrValidation):
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
	case errors.Is(err, processor.ErrNotFound):
		c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Msg("简历上传受理失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "Failed to process upload"})
	}
}
