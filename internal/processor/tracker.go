package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"resume-pipeline-go/internal/constants"
	"resume-pipeline-go/internal/storage"
	"resume-pipeline-go/internal/types"
)

// Notification 状态变更通知，追加到任务状态的时间线上
type Notification struct {
	ID        string                     `json:"id"`
	Type      constants.NotificationType `json:"type"`
	Message   string                     `json:"message"`
	Timestamp time.Time                  `json:"timestamp"`
	Stage     constants.Stage            `json:"stage"`
}

// PipelineStatus 一个任务的完整状态视图
type PipelineStatus struct {
	JobID         string              `json:"jobId"`
	CandidateID   string              `json:"candidateId"`
	Status        constants.JobStatus `json:"status"`
	Progress      int                 `json:"progress"`
	Stage         constants.Stage     `json:"stage"`
	Attempts      int                 `json:"attempts"`
	MaxAttempts   int                 `json:"maxAttempts"`
	Error         string              `json:"error,omitempty"`
	StartedAt     time.Time           `json:"startedAt"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
	ParsedData    *types.ParsedResume `json:"parsedData,omitempty"`
	Notifications []Notification      `json:"notifications"`
}

// Statistics 各状态的任务计数
type Statistics struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// HealthReport 基于失败占比的流水线健康评估
type HealthReport struct {
	Status      string     `json:"status"`
	FailureRate float64    `json:"failureRate"`
	Statistics  Statistics `json:"statistics"`
}

// jobStateSource 队列侧任务状态的只读与重投入口，
// 内存条目缺失时兜底查询，手工重试时重新投递。
type jobStateSource interface {
	GetState(ctx context.Context, jobID string) (*storage.JobState, error)
	Retry(ctx context.Context, jobID string) error
}

// StatusTracker 进程内任务状态追踪器。所有方法并发安全；
// 终态条目在保留窗口过后被回收。
type StatusTracker struct {
	mu         sync.RWMutex
	jobs       map[string]*PipelineStatus
	classifier *ErrorClassifier
	queue      jobStateSource
	retention  time.Duration
	logger     zerolog.Logger
}

// NewStatusTracker 创建状态追踪器
func NewStatusTracker(classifier *ErrorClassifier, queue jobStateSource, retention time.Duration, logger zerolog.Logger) *StatusTracker {
	if retention <= 0 {
		retention = constants.DefaultStatusRetention
	}
	return &StatusTracker{
		jobs:       make(map[string]*PipelineStatus),
		classifier: classifier,
		queue:      queue,
		retention:  retention,
		logger:     logger,
	}
}

// Initialize 登记一个新任务，初始状态为queued/upload阶段
func (t *StatusTracker) Initialize(jobID, candidateID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := &PipelineStatus{
		JobID:         jobID,
		CandidateID:   candidateID,
		Status:        constants.JobStatusQueued,
		Progress:      0,
		Stage:         constants.StageUpload,
		Attempts:      0,
		MaxAttempts:   t.classifier.MaxAttempts(),
		StartedAt:     time.Now(),
		Notifications: []Notification{},
	}
	t.appendNotification(status, constants.NotificationInfo, constants.StageUpload, "Resume uploaded, processing queued")
	t.jobs[jobID] = status
}

// UpdateProgress 推进任务进度。终态条目不再变更。
func (t *StatusTracker) UpdateProgress(jobID string, progress int, stage constants.Stage, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.jobs[jobID]
	if !ok || status.Status.IsTerminal() {
		return
	}

	status.Status = constants.JobStatusProcessing
	status.Progress = progress
	status.Stage = stage
	if message != "" {
		t.appendNotification(status, constants.NotificationInfo, stage, message)
	}
}

// RecordError 记录第attempt次尝试的失败，返回是否会重试。
// 可重试时任务进入retrying等待下一次投递，否则进入终态failed。
func (t *StatusTracker) RecordError(jobID string, stage constants.Stage, err error, attempt int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.jobs[jobID]
	if !ok || status.Status.IsTerminal() {
		return false
	}

	retryable := t.classifier.Classify(err, attempt)
	status.Attempts = attempt
	status.Stage = stage
	status.Error = err.Error()

	if retryable {
		status.Status = constants.JobStatusRetrying
		t.appendNotification(status, constants.NotificationWarning, stage,
			fmt.Sprintf("Attempt %d failed: %s. Retrying (attempt %d of %d)", attempt, err.Error(), attempt+1, status.MaxAttempts))
	} else {
		now := time.Now()
		status.Status = constants.JobStatusFailed
		status.CompletedAt = &now
		t.appendNotification(status, constants.NotificationError, stage,
			fmt.Sprintf("Processing failed: %s", err.Error()))
		t.gcLocked(now)
	}
	return retryable
}

// Complete 以处理结果收尾任务。成功时进度到100、阶段为completed；
// 失败结果进入终态failed但不改动已记录的进度。
func (t *StatusTracker) Complete(jobID string, result *ProcessResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.jobs[jobID]
	if !ok || status.Status.IsTerminal() {
		return
	}

	now := time.Now()
	status.CompletedAt = &now

	if result != nil && result.Success {
		status.Status = constants.JobStatusCompleted
		status.Progress = constants.ProgressDone
		status.Stage = constants.StageCompleted
		status.Error = ""
		status.ParsedData = result.ParsedData
		t.appendNotification(status, constants.NotificationSuccess, constants.StageCompleted,
			"Resume processed successfully")
	} else {
		status.Status = constants.JobStatusFailed
		if result != nil && result.Error != "" {
			status.Error = result.Error
			t.appendNotification(status, constants.NotificationError, status.Stage,
				fmt.Sprintf("Processing failed: %s", result.Error))
		}
	}
	t.gcLocked(now)
}

// Get 返回任务状态快照。内存中没有条目时回退到队列侧状态，
// 合成一个粗粒度视图；两边都没有则返回nil。
func (t *StatusTracker) Get(ctx context.Context, jobID string) *PipelineStatus {
	t.mu.RLock()
	status, ok := t.jobs[jobID]
	if ok {
		snapshot := t.snapshotLocked(status)
		t.mu.RUnlock()
		return snapshot
	}
	t.mu.RUnlock()

	if t.queue == nil {
		return nil
	}
	state, err := t.queue.GetState(ctx, jobID)
	if err != nil {
		if !errors.Is(err, storage.ErrJobNotFound) {
			t.logger.Warn().Err(err).Str("job_id", jobID).Msg("查询队列侧任务状态失败")
		}
		return nil
	}
	return synthesizeStatus(state)
}

// Retry 手工重试一个失败任务。尝试次数已达上限时返回ErrRetryExhausted。
func (t *StatusTracker) Retry(ctx context.Context, jobID string) error {
	t.mu.Lock()
	status, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		if t.queue == nil {
			return storage.ErrJobNotFound
		}
		// 内存无条目时队列侧状态仍可支撑重投
		state, err := t.queue.GetState(ctx, jobID)
		if err != nil {
			return err
		}
		if state.Attempts >= state.MaxAttempts {
			return ErrRetryExhausted
		}
		return t.queue.Retry(ctx, jobID)
	}

	if status.Attempts >= status.MaxAttempts {
		t.mu.Unlock()
		return ErrRetryExhausted
	}

	status.Status = constants.JobStatusRetrying
	status.Error = ""
	status.CompletedAt = nil
	t.appendNotification(status, constants.NotificationInfo, status.Stage,
		fmt.Sprintf("Manual retry requested (attempt %d of %d)", status.Attempts+1, status.MaxAttempts))
	t.mu.Unlock()

	if t.queue == nil {
		return nil
	}
	return t.queue.Retry(ctx, jobID)
}

// Statistics 汇总各状态的任务计数
func (t *StatusTracker) Statistics() Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Statistics{Total: len(t.jobs)}
	for _, status := range t.jobs {
		switch status.Status {
		case constants.JobStatusQueued:
			stats.Queued++
		case constants.JobStatusProcessing:
			stats.Processing++
		case constants.JobStatusRetrying:
			stats.Retrying++
		case constants.JobStatusCompleted:
			stats.Completed++
		case constants.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Health 按失败占比评估健康度：超过50%为unhealthy，
// 超过20%为degraded，无任务时视为healthy。
func (t *StatusTracker) Health() HealthReport {
	stats := t.Statistics()

	report := HealthReport{Status: "healthy", Statistics: stats}
	if stats.Total == 0 {
		return report
	}

	report.FailureRate = float64(stats.Failed) / float64(stats.Total)
	switch {
	case report.FailureRate > 0.5:
		report.Status = "unhealthy"
	case report.FailureRate > 0.2:
		report.Status = "degraded"
	}
	return report
}

// appendNotification 追加一条通知，调用方需持有写锁
func (t *StatusTracker) appendNotification(status *PipelineStatus, typ constants.NotificationType, stage constants.Stage, message string) {
	status.Notifications = append(status.Notifications, Notification{
		ID:        uuid.NewString(),
		Type:      typ,
		Message:   message,
		Timestamp: time.Now(),
		Stage:     stage,
	})
}

// gcLocked 回收保留窗口外的终态条目，调用方需持有写锁
func (t *StatusTracker) gcLocked(now time.Time) {
	for jobID, status := range t.jobs {
		if !status.Status.IsTerminal() || status.CompletedAt == nil {
			continue
		}
		if now.Sub(*status.CompletedAt) > t.retention {
			delete(t.jobs, jobID)
		}
	}
}

// snapshotLocked 复制状态条目，调用方需持有读锁
func (t *StatusTracker) snapshotLocked(status *PipelineStatus) *PipelineStatus {
	snapshot := *status
	snapshot.Notifications = make([]Notification, len(status.Notifications))
	copy(snapshot.Notifications, status.Notifications)
	if status.CompletedAt != nil {
		completedAt := *status.CompletedAt
		snapshot.CompletedAt = &completedAt
	}
	return &snapshot
}

// synthesizeStatus 由队列侧状态合成粗粒度视图
func synthesizeStatus(state *storage.JobState) *PipelineStatus {
	status := &PipelineStatus{
		JobID:         state.JobID,
		CandidateID:   state.CandidateID,
		Status:        state.State,
		Attempts:      state.Attempts,
		MaxAttempts:   state.MaxAttempts,
		Error:         state.Error,
		StartedAt:     state.EnqueuedAt,
		Stage:         constants.StageUpload,
		Notifications: []Notification{},
	}
	switch state.State {
	case constants.JobStatusCompleted:
		status.Progress = constants.ProgressDone
		status.Stage = constants.StageCompleted
		completedAt := state.UpdatedAt
		status.CompletedAt = &completedAt
	case constants.JobStatusFailed:
		completedAt := state.UpdatedAt
		status.CompletedAt = &completedAt
	case constants.JobStatusProcessing, constants.JobStatusRetrying:
		status.Stage = constants.StageParsing
	}
	return status
}
