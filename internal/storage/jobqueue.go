package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"resume-pipeline-go/internal/config"
	"resume-pipeline-go/internal/constants"
)

// ErrJobNotFound 队列中不存在该任务的状态记录
var ErrJobNotFound = errors.New("job not found")

// attemptHeader 消息头中携带的投递次数（1起始）
const attemptHeader = "x-attempt"

// JobState 队列自身维护的任务状态，存于Redis Hash。
// 这是进程外的粗粒度视图，状态追踪器在内存条目缺失时以它兜底。
type JobState struct {
	JobID       string              `json:"job_id"`
	CandidateID string              `json:"candidate_id"`
	State       constants.JobStatus `json:"state"`
	Attempts    int                 `json:"attempts"`
	MaxAttempts int                 `json:"max_attempts"`
	Error       string              `json:"error,omitempty"`
	EnqueuedAt  time.Time           `json:"enqueued_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Payload     ResumeJobMessage    `json:"payload"`
}

// ConsumeResult 一次处理尝试的结论。重试与否由Retryable字段
// 显式决定，队列适配器不再根据错误是否抛出来推断。
type ConsumeResult struct {
	OK        bool
	Retryable bool
	ErrMsg    string
}

// ResumeJobQueue 简历处理任务队列：RabbitMQ承载投递，
// Redis Hash承载任务状态；退避重试经由带TTL的重试队列，
// 消息到期后死信回工作队列。
type ResumeJobQueue struct {
	mq       *RabbitMQ
	redis    *Redis
	cfg      *config.RabbitMQConfig
	pipeline config.PipelineConfig
	logger   zerolog.Logger
}

// NewResumeJobQueue 创建任务队列并声明拓扑
func NewResumeJobQueue(mq *RabbitMQ, rdb *Redis, cfg *config.Config, logger zerolog.Logger) (*ResumeJobQueue, error) {
	if mq == nil || rdb == nil {
		return nil, fmt.Errorf("任务队列依赖RabbitMQ与Redis")
	}

	q := &ResumeJobQueue{
		mq:       mq,
		redis:    rdb,
		cfg:      &cfg.RabbitMQ,
		pipeline: cfg.Pipeline,
		logger:   logger,
	}

	if err := mq.EnsureExchange(q.cfg.ResumeExchange, "direct", true); err != nil {
		return nil, err
	}
	if err := mq.EnsureQueue(q.cfg.ProcessQueue, true, nil); err != nil {
		return nil, err
	}
	if err := mq.BindQueue(q.cfg.ProcessQueue, q.cfg.ResumeExchange, q.cfg.ProcessRoutingKey); err != nil {
		return nil, err
	}
	// 重试队列不绑定交换机：直接按队列名投递，TTL到期后死信回工作队列
	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    q.cfg.ResumeExchange,
		"x-dead-letter-routing-key": q.cfg.ProcessRoutingKey,
	}
	if err := mq.EnsureQueue(q.cfg.RetryQueue, true, retryArgs); err != nil {
		return nil, err
	}

	return q, nil
}

// Enqueue 入队一个处理任务并记录初始状态
func (q *ResumeJobQueue) Enqueue(ctx context.Context, job ResumeJobMessage) (string, error) {
	if job.JobID == "" {
		return "", fmt.Errorf("任务缺少JobID")
	}

	now := time.Now()
	state := &JobState{
		JobID:       job.JobID,
		CandidateID: job.CandidateID,
		State:       constants.JobStatusQueued,
		Attempts:    0,
		MaxAttempts: q.pipeline.MaxAttempts,
		EnqueuedAt:  now,
		UpdatedAt:   now,
		Payload:     job,
	}
	if err := q.writeState(ctx, state); err != nil {
		return "", fmt.Errorf("记录任务状态失败: %w", err)
	}

	headers := amqp.Table{attemptHeader: int32(1)}
	if err := q.mq.PublishJSON(ctx, q.cfg.ResumeExchange, q.cfg.ProcessRoutingKey, job, headers, 0); err != nil {
		return "", fmt.Errorf("发布任务消息失败: %w", err)
	}

	q.logger.Info().
		Str("job_id", job.JobID).
		Str("candidate_id", job.CandidateID).
		Msg("处理任务已入队")
	return job.JobID, nil
}

// GetState 查询队列侧任务状态
func (q *ResumeJobQueue) GetState(ctx context.Context, jobID string) (*JobState, error) {
	fields, err := q.redis.Client().HGetAll(ctx, constants.JobStateKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("查询任务状态失败: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	state := &JobState{
		JobID:       jobID,
		CandidateID: fields["candidate_id"],
		State:       constants.JobStatus(fields["state"]),
		Error:       fields["error"],
	}
	state.Attempts, _ = strconv.Atoi(fields["attempts"])
	state.MaxAttempts, _ = strconv.Atoi(fields["max_attempts"])
	if ts := fields["enqueued_at"]; ts != "" {
		state.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if ts := fields["updated_at"]; ts != "" {
		state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if payload := fields["payload"]; payload != "" {
		_ = json.Unmarshal([]byte(payload), &state.Payload)
	}
	return state, nil
}

// Retry 手工重投：从状态记录中取出原始载荷，按下一次尝试号重新投递
func (q *ResumeJobQueue) Retry(ctx context.Context, jobID string) error {
	state, err := q.GetState(ctx, jobID)
	if err != nil {
		return err
	}
	if state.Payload.JobID == "" {
		return fmt.Errorf("任务 %s 的载荷缺失，无法重投", jobID)
	}

	nextAttempt := state.Attempts + 1
	headers := amqp.Table{attemptHeader: int32(nextAttempt)}
	if err := q.mq.PublishJSON(ctx, q.cfg.ResumeExchange, q.cfg.ProcessRoutingKey, state.Payload, headers, 0); err != nil {
		return fmt.Errorf("重投任务消息失败: %w", err)
	}

	q.markState(ctx, jobID, constants.JobStatusRetrying, state.Attempts, state.Error)
	q.logger.Info().Str("job_id", jobID).Int("next_attempt", nextAttempt).Msg("任务已手工重投")
	return nil
}

// scheduleRetry 投递到退避队列，TTL到期后消息死信回工作队列
func (q *ResumeJobQueue) scheduleRetry(ctx context.Context, job ResumeJobMessage, failedAttempt int, errMsg string) error {
	delay := BackoffDelay(q.pipeline.BackoffInitial(), q.pipeline.BackoffMax(), failedAttempt)
	headers := amqp.Table{attemptHeader: int32(failedAttempt + 1)}
	if err := q.mq.PublishJSON(ctx, "", q.cfg.RetryQueue, job, headers, delay); err != nil {
		return fmt.Errorf("投递退避重试消息失败: %w", err)
	}

	q.markState(ctx, job.JobID, constants.JobStatusRetrying, failedAttempt, errMsg)
	q.logger.Warn().
		Str("job_id", job.JobID).
		Int("failed_attempt", failedAttempt).
		Dur("delay", delay).
		Msg("任务将退避重试")
	return nil
}

// StartConsumers 启动n个消费协程驱动处理函数。
// 结论完全由ConsumeResult决定：成功确认、可重试且未到上限则
// 安排退避重投，其余记为终态失败。
func (q *ResumeJobQueue) StartConsumers(ctx context.Context, n int, handler func(context.Context, ResumeJobMessage, int) ConsumeResult) error {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		_, err := q.mq.StartConsumer(ctx, q.cfg.ProcessQueue, q.cfg.PrefetchCount, func(ctx context.Context, d amqp.Delivery) error {
			var job ResumeJobMessage
			if err := json.Unmarshal(d.Body, &job); err != nil {
				return fmt.Errorf("解析任务消息失败: %w", err)
			}
			attempt := attemptFromHeaders(d.Headers)

			q.markState(ctx, job.JobID, constants.JobStatusProcessing, attempt, "")
			res := handler(ctx, job, attempt)

			switch {
			case res.OK:
				q.markState(ctx, job.JobID, constants.JobStatusCompleted, attempt, "")
			case res.Retryable && attempt < q.pipeline.MaxAttempts:
				if err := q.scheduleRetry(ctx, job, attempt, res.ErrMsg); err != nil {
					q.logger.Error().Err(err).Str("job_id", job.JobID).Msg("安排退避重试失败")
					q.markState(ctx, job.JobID, constants.JobStatusFailed, attempt, res.ErrMsg)
				}
			default:
				q.markState(ctx, job.JobID, constants.JobStatusFailed, attempt, res.ErrMsg)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeState 整体写入任务状态Hash
func (q *ResumeJobQueue) writeState(ctx context.Context, state *JobState) error {
	payloadJSON, err := json.Marshal(state.Payload)
	if err != nil {
		return err
	}
	key := constants.JobStateKey(state.JobID)
	fields := map[string]interface{}{
		"candidate_id": state.CandidateID,
		"state":        string(state.State),
		"attempts":     state.Attempts,
		"max_attempts": state.MaxAttempts,
		"error":        state.Error,
		"enqueued_at":  state.EnqueuedAt.Format(time.RFC3339Nano),
		"updated_at":   state.UpdatedAt.Format(time.RFC3339Nano),
		"payload":      string(payloadJSON),
	}
	pipe := q.redis.Client().TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, constants.JobStateExpireDays*24*time.Hour)
	_, err = pipe.Exec(ctx)
	return err
}

// markState 更新任务状态的可变字段。状态记录是尽力而为的
// 观测数据，写入失败只记日志，不阻塞流水线。
func (q *ResumeJobQueue) markState(ctx context.Context, jobID string, state constants.JobStatus, attempts int, errMsg string) {
	fields := map[string]interface{}{
		"state":      string(state),
		"attempts":   attempts,
		"updated_at": time.Now().Format(time.RFC3339Nano),
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	if err := q.redis.Client().HSet(ctx, constants.JobStateKey(jobID), fields).Err(); err != nil {
		q.logger.Warn().Err(err).Str("job_id", jobID).Msg("更新任务状态记录失败")
	}
}

// attemptFromHeaders 从消息头解析投递次数，缺失时视为第1次
func attemptFromHeaders(headers amqp.Table) int {
	if headers == nil {
		return 1
	}
	switch v := headers[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

// BackoffDelay 指数退避：initial * 2^(failedAttempt-1)，上限max
func BackoffDelay(initial, max time.Duration, failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	delay := initial
	for i := 1; i < failedAttempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
