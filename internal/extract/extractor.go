package extract

import (
	"context"
	"strings"
)

// Format 简历文件的提取格式
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDocx  Format = "docx"
	FormatDoc   Format = "doc"
	FormatImage Format = "image"
)

// formatByMime MIME类型到提取格式的映射表。
// 新增格式只需在此注册，不改分发逻辑。
var formatByMime = map[string]Format{
	"application/pdf": FormatPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDocx,
	"application/msword": FormatDoc,
	"image/png":          FormatImage,
	"image/jpeg":         FormatImage,
	"image/jpg":          FormatImage,
	"image/gif":          FormatImage,
}

// extByMime 上传落盘时使用的扩展名
var extByMime = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/msword": ".doc",
	"image/png":          ".png",
	"image/jpeg":         ".jpg",
	"image/jpg":          ".jpg",
	"image/gif":          ".gif",
}

// normalizeMime 去掉参数部分并统一为小写，如 "application/pdf; charset=utf-8"
func normalizeMime(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// FormatForMime 按MIME类型查找提取格式
func FormatForMime(mimeType string) (Format, bool) {
	f, ok := formatByMime[normalizeMime(mimeType)]
	return f, ok
}

// SupportedMime 判断MIME类型是否受支持
func SupportedMime(mimeType string) bool {
	_, ok := FormatForMime(mimeType)
	return ok
}

// ExtForMime 返回MIME类型对应的文件扩展名，未知类型返回空串
func ExtForMime(mimeType string) string {
	return extByMime[normalizeMime(mimeType)]
}

// TextExtractor 从一种格式的文件内容中提取文本
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// clientExtractor 把格式绑定到AI客户端，实现单一格式的提取器
type clientExtractor struct {
	client *Client
	format Format
}

func (e *clientExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	return e.client.ExtractText(ctx, data, e.format)
}

// Registry MIME类型到提取器的查找表
type Registry struct {
	extractors map[string]TextExtractor
}

// NewRegistry 为所有受支持的MIME类型构建提取器注册表
func NewRegistry(client *Client) *Registry {
	extractors := make(map[string]TextExtractor, len(formatByMime))
	for mimeType, format := range formatByMime {
		extractors[mimeType] = &clientExtractor{client: client, format: format}
	}
	return &Registry{extractors: extractors}
}

// Lookup 按MIME类型查找提取器，不支持的类型返回(nil, false)
func (r *Registry) Lookup(mimeType string) (TextExtractor, bool) {
	e, ok := r.extractors[normalizeMime(mimeType)]
	return e, ok
}
