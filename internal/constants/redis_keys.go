package constants

// Redis键约定：队列自身的任务状态存储
const (
	// JobStateKeyPrefix 任务状态Hash的键前缀，完整键为 pipeline:job:{jobId}
	JobStateKeyPrefix = "pipeline:job:"

	// JobStateExpireDays 任务状态记录的过期天数
	JobStateExpireDays = 7
)

// JobStateKey 拼接任务状态的Redis键
func JobStateKey(jobID string) string {
	return JobStateKeyPrefix + jobID
}
