package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-pipeline-go/internal/constants"
	"resume-pipeline-go/internal/extract"
	"resume-pipeline-go/internal/storage"
	"resume-pipeline-go/internal/tracing"
	"resume-pipeline-go/internal/types"
)

var workerTracer = otel.Tracer("resume-pipeline-go/processor")

// ProcessResult 一次处理尝试的结果。Retryable由错误分类器
// 显式给出，队列不再根据错误是否抛出来猜测。
type ProcessResult struct {
	JobID          string              `json:"jobId"`
	CandidateID    string              `json:"candidateId"`
	Success        bool                `json:"success"`
	ParsedData     *types.ParsedResume `json:"parsedData,omitempty"`
	Error          string              `json:"error,omitempty"`
	Retryable      bool                `json:"retryable"`
	ProcessingTime time.Duration       `json:"processingTime"`
}

// Worker 简历处理流水线的执行者：下载、提取、解析、持久化、收尾。
// 每个阶段完成后推进进度检查点。
type Worker struct {
	files      FileStore
	extractors ExtractorRegistry
	parser     StructuredParser
	candidates CandidateStore
	tracker    *StatusTracker
	classifier *ErrorClassifier
	logger     zerolog.Logger
}

// NewWorker 创建流水线执行者
func NewWorker(files FileStore, extractors ExtractorRegistry, parser StructuredParser, candidates CandidateStore, tracker *StatusTracker, classifier *ErrorClassifier, logger zerolog.Logger) *Worker {
	return &Worker{
		files:      files,
		extractors: extractors,
		parser:     parser,
		candidates: candidates,
		tracker:    tracker,
		classifier: classifier,
		logger:     logger,
	}
}

// Process 执行一次处理尝试。所有失败都折叠成结构化结果返回，
// 只有结果中Retryable为真且次数未达上限时队列才会重投。
func (w *Worker) Process(ctx context.Context, job storage.ResumeJobMessage, attempt int) *ProcessResult {
	ctx, span := workerTracer.Start(ctx, "Worker.ProcessResume",
		trace.WithAttributes(
			attribute.String("job.id", job.JobID),
			attribute.String("candidate.id", job.CandidateID),
			attribute.Int("job.attempt", attempt),
		))
	defer span.End()

	start := time.Now()
	log := w.logger.With().Str("job_id", job.JobID).Int("attempt", attempt).Logger()
	log.Info().Str("candidate_id", job.CandidateID).Msg("开始处理简历任务")

	// 候选人必须已存在，缺失是不可重试的引用错误
	if _, err := w.candidates.GetCandidateByID(ctx, job.CandidateID); err != nil {
		if errors.Is(err, storage.ErrCandidateNotFound) {
			err = NewNotFoundError(job.JobID, constants.StageValidation, "Candidate", job.CandidateID)
		}
		return w.fail(span, &log, job, constants.StageValidation, err, attempt, start)
	}

	extractor, ok := w.extractors.Lookup(job.MimeType)
	if !ok {
		err := NewUnsupportedFormatError(job.JobID, job.MimeType)
		return w.fail(span, &log, job, constants.StageValidation, err, attempt, start)
	}

	data, err := w.files.GetResumeFile(ctx, job.FilePath)
	if err != nil {
		return w.fail(span, &log, job, constants.StageValidation, err, attempt, start)
	}
	w.tracker.UpdateProgress(job.JobID, constants.ProgressDownloaded, constants.StageValidation, "Resume file downloaded")

	text, err := extractor.Extract(ctx, data)
	if err != nil {
		return w.fail(span, &log, job, constants.StageParsing, err, attempt, start)
	}
	w.tracker.UpdateProgress(job.JobID, constants.ProgressExtracted, constants.StageParsing, "Text extracted from resume")

	resume, err := w.parser.ParseStructured(ctx, text)
	if err != nil {
		if errors.Is(err, extract.ErrMalformedResponse) {
			err = NewMalformedResponseError(job.JobID, err.Error())
		}
		return w.fail(span, &log, job, constants.StageParsing, err, attempt, start)
	}
	w.tracker.UpdateProgress(job.JobID, constants.ProgressParsed, constants.StageParsing, "Resume parsed into structured data")

	if err := w.persist(ctx, job.CandidateID, resume); err != nil {
		return w.fail(span, &log, job, constants.StageStorage, err, attempt, start)
	}
	w.tracker.UpdateProgress(job.JobID, constants.ProgressPersisted, constants.StageStorage, "Parsed data persisted")

	result := &ProcessResult{
		JobID:          job.JobID,
		CandidateID:    job.CandidateID,
		Success:        true,
		ParsedData:     resume,
		ProcessingTime: time.Since(start),
	}
	w.tracker.Complete(job.JobID, result)

	log.Info().Dur("processing_time", result.ProcessingTime).Msg("简历任务处理完成")
	return result
}

// Handle 把处理结果适配为队列消费结论
func (w *Worker) Handle(ctx context.Context, job storage.ResumeJobMessage, attempt int) storage.ConsumeResult {
	result := w.Process(ctx, job, attempt)
	return storage.ConsumeResult{
		OK:        result.Success,
		Retryable: result.Retryable,
		ErrMsg:    result.Error,
	}
}

// persist 非破坏性落库：联系信息只补空位，结构化数据整体upsert
func (w *Worker) persist(ctx context.Context, candidateID string, resume *types.ParsedResume) error {
	if err := w.candidates.MergeCandidateContact(ctx, candidateID, resume.PersonalInfo); err != nil {
		return fmt.Errorf("合并候选人联系信息失败: %w", err)
	}
	if err := w.candidates.UpsertParsedResumeData(ctx, candidateID, resume); err != nil {
		return fmt.Errorf("保存结构化简历数据失败: %w", err)
	}
	return nil
}

// fail 统一的失败出口：记录状态与追踪，折叠为结构化结果。
// 可重试性直接来自分类器，进程重启后状态条目缺失也不影响重投。
func (w *Worker) fail(span trace.Span, log *zerolog.Logger, job storage.ResumeJobMessage, stage constants.Stage, err error, attempt int, start time.Time) *ProcessResult {
	tracing.RecordError(span, err, tracing.ErrorTypeInternal)
	retryable := w.classifier.Classify(err, attempt)
	w.tracker.RecordError(job.JobID, stage, err, attempt)

	result := &ProcessResult{
		JobID:          job.JobID,
		CandidateID:    job.CandidateID,
		Success:        false,
		Error:          err.Error(),
		Retryable:      retryable,
		ProcessingTime: time.Since(start),
	}

	log.Error().
		Err(err).
		Str("stage", string(stage)).
		Bool("retryable", retryable).
		Msg("简历任务处理失败")
	return result
}
