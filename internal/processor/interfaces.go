package processor

import (
	"context"

	"resume-pipeline-go/internal/extract"
	"resume-pipeline-go/internal/storage/models"
	"resume-pipeline-go/internal/types"
)

// FileStore 简历文件的读取入口
type FileStore interface {
	GetResumeFile(ctx context.Context, objectPath string) ([]byte, error)
}

// ExtractorRegistry 按MIME类型查找文本提取器
type ExtractorRegistry interface {
	Lookup(mimeType string) (extract.TextExtractor, bool)
}

// StructuredParser 把简历文本解析为结构化数据
type StructuredParser interface {
	ParseStructured(ctx context.Context, text string) (*types.ParsedResume, error)
}

// CandidateStore 候选人与解析数据的持久化入口
type CandidateStore interface {
	GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error)
	MergeCandidateContact(ctx context.Context, candidateID string, info *types.PersonalInfo) error
	UpsertParsedResumeData(ctx context.Context, candidateID string, resume *types.ParsedResume) error
}
