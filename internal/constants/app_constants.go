package constants

import "time"

// JobStatus 流水线任务的生命周期状态
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal 判断状态是否为终态，终态条目不再变更
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Stage 流水线处理阶段
type Stage string

const (
	StageUpload     Stage = "upload"
	StageValidation Stage = "validation"
	StageParsing    Stage = "parsing"
	StageStorage    Stage = "storage"
	StageCompleted  Stage = "completed"
)

// NotificationType 状态通知级别
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationSuccess NotificationType = "success"
)

// 各阶段完成时上报的进度检查点
const (
	ProgressDownloaded = 20
	ProgressExtracted  = 40
	ProgressParsed     = 60
	ProgressPersisted  = 80
	ProgressDone       = 100
)

// 流水线默认配置值
const (
	DefaultMaxAttempts     = 3                // 队列投递次数上限
	DefaultBackoffInitial  = 2 * time.Second  // 指数退避起始间隔
	DefaultBackoffMax      = 60 * time.Second // 单次退避间隔上限
	DefaultMaxFileSize     = 10 << 20         // 上传文件大小上限 (10MB)
	DefaultStatusRetention = 24 * time.Hour   // 终态状态条目的保留窗口
)
