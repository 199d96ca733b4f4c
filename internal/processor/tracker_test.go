package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline-go/internal/constants"
	"resume-pipeline-go/internal/storage"
)

// fakeJobStateSource 测试用的队列侧状态桩
type fakeJobStateSource struct {
	state      *storage.JobState
	stateErr   error
	retryErr   error
	retriedIDs []string
}

func (f *fakeJobStateSource) GetState(ctx context.Context, jobID string) (*storage.JobState, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.state, nil
}

func (f *fakeJobStateSource) Retry(ctx context.Context, jobID string) error {
	f.retriedIDs = append(f.retriedIDs, jobID)
	return f.retryErr
}

func newTestTracker(queue jobStateSource) *StatusTracker {
	return NewStatusTracker(NewErrorClassifier(3), queue, time.Hour, zerolog.Nop())
}

func TestTrackerInitialize(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Initialize("job-1", "cand-1")

	status := tracker.Get(context.Background(), "job-1")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusQueued, status.Status)
	assert.Equal(t, constants.StageUpload, status.Stage)
	assert.Equal(t, 0, status.Progress)
	assert.Equal(t, "cand-1", status.CandidateID)
	assert.Equal(t, 3, status.MaxAttempts)
	require.Len(t, status.Notifications, 1)
	assert.Equal(t, constants.NotificationInfo, status.Notifications[0].Type)
}

func TestTrackerUpdateProgress(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Initialize("job-1", "cand-1")

	tracker.UpdateProgress("job-1", constants.ProgressDownloaded, constants.StageValidation, "Resume file downloaded")

	status := tracker.Get(context.Background(), "job-1")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusProcessing, status.Status)
	assert.Equal(t, constants.ProgressDownloaded, status.Progress)
	assert.Equal(t, constants.StageValidation, status.Stage)
	assert.Len(t, status.Notifications, 2)
}

func TestTrackerTerminalStatusIsImmutable(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Initialize("job-1", "cand-1")
	tracker.Complete("job-1", &ProcessResult{JobID: "job-1", Success: true})

	tracker.UpdateProgress("job-1", constants.ProgressDownloaded, constants.StageValidation, "late update")

	status := tracker.Get(context.Background(), "job-1")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusCompleted, status.Status)
	assert.Equal(t, constants.ProgressDone, status.Progress)
	assert.Equal(t, constants.StageCompleted, status.Stage)
}

func TestTrackerRecordErrorRetryable(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Initialize("job-1", "cand-1")

	retryable := tracker.RecordError("job-1", constants.StageParsing, errors.New("timeout: context deadline exceeded"), 1)
	assert.True(t, retryable)

	status := tracker.Get(context.Background(), "job-1")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusRetrying, status.Status)
	assert.Equal(t, 1, status.Attempts)
	assert.Nil(t, status.CompletedAt)

	last := status.Notifications[len(status.Notifications)-1]
	assert.Equal(t, constants.NotificationWarning, last.Type)
	assert.Contains(t, last.Message, "attempt 2 of 3")
}

func TestTrackerRecordErrorFatal(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Initialize("job-1", "cand-1")

	retryable := tracker.RecordError("job-1", constants.StageValidation, errors.New("Unsupported file type: text/plain"), 1)
	assert.False(t, retryable)

	status := tracker.Get(context.Background(), "job-1")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusFailed, status.Status)
	assert.NotNil(t, status.CompletedAt)
	assert.Contains(t, status.Error, "Unsupported file type")

	last := status.Notifications[len(status.Notifications)-1]
	assert.Equal(t, constants.NotificationError, last.Type)
}

func TestTrackerRecordErrorExhaustsAttempts(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Initialize("job-1", "cand-1")

	// 瞬态错误在最后一次尝试后也进入终态
	retryable := tracker.RecordError("job-1", constants.StageParsing, errors.New("timeout: deadline"), 3)
	assert.False(t, retryable)

	status := tracker.Get(context.Background(), "job-1")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusFailed, status.Status)
}

func TestTrackerCompleteSuccess(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Initialize("job-1", "cand-1")

	tracker.Complete("job-1", &ProcessResult{
		JobID:       "job-1",
		CandidateID: "cand-1",
		Success:     true,
	})

	status := tracker.Get(context.Background(), "job-1")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusCompleted, status.Status)
	assert.Equal(t, constants.ProgressDone, status.Progress)
	assert.Equal(t, constants.StageCompleted, status.Stage)
	assert.NotNil(t, status.CompletedAt)
	assert.Empty(t, status.Error)

	last := status.Notifications[len(status.Notifications)-1]
	assert.Equal(t, constants.NotificationSuccess, last.Type)
}

func TestTrackerRetryExhausted(t *testing.T) {
	tracker := newTestTracker(&fakeJobStateSource{})
	tracker.Initialize("job-1", "cand-1")
	tracker.RecordError("job-1", constants.StageParsing, errors.New("timeout"), 3)

	err := tracker.Retry(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrRetryExhausted)
}

func TestTrackerRetrySucceeds(t *testing.T) {
	queue := &fakeJobStateSource{}
	tracker := newTestTracker(queue)
	tracker.Initialize("job-1", "cand-1")
	tracker.RecordError("job-1", constants.StageParsing, errors.New("timeout"), 1)

	err := tracker.Retry(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, queue.retriedIDs)

	status := tracker.Get(context.Background(), "job-1")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusRetrying, status.Status)
	assert.Empty(t, status.Error)
}

func TestTrackerRetryWithoutQueue(t *testing.T) {
	tracker := newTestTracker(nil)

	assert.ErrorIs(t, tracker.Retry(context.Background(), "missing"), storage.ErrJobNotFound)

	tracker.Initialize("job-1", "cand-1")
	tracker.RecordError("job-1", constants.StageParsing, errors.New("timeout"), 1)
	require.NoError(t, tracker.Retry(context.Background(), "job-1"))
}

func TestTrackerGetFallsBackToQueueState(t *testing.T) {
	queue := &fakeJobStateSource{
		state: &storage.JobState{
			JobID:       "job-x",
			CandidateID: "cand-x",
			State:       constants.JobStatusCompleted,
			Attempts:    1,
			MaxAttempts: 3,
			EnqueuedAt:  time.Now().Add(-time.Minute),
			UpdatedAt:   time.Now(),
		},
	}
	tracker := newTestTracker(queue)

	status := tracker.Get(context.Background(), "job-x")
	require.NotNil(t, status)
	assert.Equal(t, constants.JobStatusCompleted, status.Status)
	assert.Equal(t, constants.ProgressDone, status.Progress)
	assert.Equal(t, "cand-x", status.CandidateID)
	assert.NotNil(t, status.CompletedAt)
}

func TestTrackerGetUnknownJob(t *testing.T) {
	queue := &fakeJobStateSource{stateErr: storage.ErrJobNotFound}
	tracker := newTestTracker(queue)

	assert.Nil(t, tracker.Get(context.Background(), "missing"))
}

func TestTrackerStatistics(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Initialize("q1", "c1")
	tracker.Initialize("p1", "c2")
	tracker.UpdateProgress("p1", 20, constants.StageValidation, "")
	tracker.Initialize("f1", "c3")
	tracker.RecordError("f1", constants.StageValidation, errors.New("Unsupported file type: text/html"), 1)
	tracker.Initialize("d1", "c4")
	tracker.Complete("d1", &ProcessResult{Success: true})

	stats := tracker.Statistics()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.Processing)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, stats.Total, stats.Queued+stats.Processing+stats.Retrying+stats.Completed+stats.Failed)
}

func TestTrackerHealth(t *testing.T) {
	t.Run("无任务时healthy", func(t *testing.T) {
		tracker := newTestTracker(nil)
		assert.Equal(t, "healthy", tracker.Health().Status)
	})

	t.Run("失败过半时unhealthy", func(t *testing.T) {
		tracker := newTestTracker(nil)
		tracker.Initialize("a", "c")
		tracker.Initialize("b", "c")
		tracker.Initialize("c", "c")
		tracker.RecordError("a", constants.StageParsing, errors.New("fatal"), 1)
		tracker.RecordError("b", constants.StageParsing, errors.New("fatal"), 1)

		report := tracker.Health()
		assert.Equal(t, "unhealthy", report.Status)
		assert.InDelta(t, 2.0/3.0, report.FailureRate, 0.001)
	})

	t.Run("失败超过两成时degraded", func(t *testing.T) {
		tracker := newTestTracker(nil)
		for _, id := range []string{"a", "b", "c", "d"} {
			tracker.Initialize(id, "c")
		}
		tracker.RecordError("a", constants.StageParsing, errors.New("fatal"), 1)

		assert.Equal(t, "degraded", tracker.Health().Status)
	})
}

func TestTrackerRetentionGC(t *testing.T) {
	tracker := NewStatusTracker(NewErrorClassifier(3), nil, time.Nanosecond, zerolog.Nop())
	tracker.Initialize("old", "c1")
	tracker.Complete("old", &ProcessResult{Success: true})

	time.Sleep(time.Millisecond)

	// 下一次终态写入触发回收
	tracker.Initialize("new", "c2")
	tracker.Complete("new", &ProcessResult{Success: true})

	assert.Nil(t, tracker.Get(context.Background(), "old"))
	assert.NotNil(t, tracker.Get(context.Background(), "new"))
}
