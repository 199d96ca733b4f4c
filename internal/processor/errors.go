package processor

import (
	"errors"
	"fmt"

	"resume-pipeline-go/internal/constants"
)

// 流水线错误类别哨兵，errors.Is据此判断错误种类
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRetryExhausted    = errors.New("retry attempts exhausted")
)

// PipelineError 携带任务与阶段上下文的流水线错误
type PipelineError struct {
	JobID  string
	Stage  constants.Stage
	Kind   error
	Detail string
}

func (e *PipelineError) Error() string {
	return e.Detail
}

func (e *PipelineError) Unwrap() error {
	return e.Kind
}

// NewValidationError 入参校验失败，不可重试
func NewValidationError(jobID string, stage constants.Stage, detail string) *PipelineError {
	return &PipelineError{JobID: jobID, Stage: stage, Kind: ErrValidation, Detail: detail}
}

// NewNotFoundError 引用的记录不存在，不可重试
func NewNotFoundError(jobID string, stage constants.Stage, what, id string) *PipelineError {
	return &PipelineError{
		JobID:  jobID,
		Stage:  stage,
		Kind:   ErrNotFound,
		Detail: fmt.Sprintf("%s not found: %s", what, id),
	}
}

// NewUnsupportedFormatError 文件类型不受支持，不可重试
func NewUnsupportedFormatError(jobID string, mimeType string) *PipelineError {
	return &PipelineError{
		JobID:  jobID,
		Stage:  constants.StageValidation,
		Kind:   ErrUnsupportedFormat,
		Detail: fmt.Sprintf("Unsupported file type: %s", mimeType),
	}
}

// NewMalformedResponseError 解析服务返回了无法使用的内容，不可重试
func NewMalformedResponseError(jobID string, detail string) *PipelineError {
	return &PipelineError{
		JobID:  jobID,
		Stage:  constants.StageParsing,
		Kind:   ErrMalformedResponse,
		Detail: detail,
	}
}
