package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-pipeline-go/internal/config"
	"resume-pipeline-go/internal/tracing"
	"resume-pipeline-go/internal/types"
)

// ErrMalformedResponse 解析服务返回的内容不是合法JSON
var ErrMalformedResponse = errors.New("AI response is not valid JSON")

var clientTracer = otel.Tracer("resume-pipeline-go/extract")

// Client 调用外部AI服务完成文本提取与结构化解析。
// 服务本身是黑盒，这里只负责传输、超时与错误归类。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient 创建AI服务客户端
func NewClient(cfg *config.AIConfig, logger zerolog.Logger) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("AI服务BaseURL配置不能为空")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type extractRequest struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type extractResponse struct {
	Text string `json:"text"`
}

type parseRequest struct {
	Text string `json:"text"`
}

// ExtractText 提交文件内容，返回提取出的原始文本
func (c *Client) ExtractText(ctx context.Context, data []byte, format Format) (string, error) {
	ctx, span := clientTracer.Start(ctx, "AI.ExtractText",
		trace.WithAttributes(
			attribute.String("resume.format", string(format)),
			attribute.Int("resume.size_bytes", len(data)),
		))
	defer span.End()

	req := extractRequest{
		Data:   base64.StdEncoding.EncodeToString(data),
		Format: string(format),
	}
	body, err := c.post(ctx, "/v1/extract", req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return "", err
	}

	var resp extractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		tracing.RecordError(span, ErrMalformedResponse, tracing.ErrorTypeExternal)
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp.Text, nil
}

// ParseStructured 提交简历文本，返回结构化解析结果。
// 响应整体不是合法JSON时视为格式错误；单个字段类型不符时
// 丢弃该字段，由Normalize补齐缺省值。
func (c *Client) ParseStructured(ctx context.Context, text string) (*types.ParsedResume, error) {
	ctx, span := clientTracer.Start(ctx, "AI.ParseStructured",
		trace.WithAttributes(attribute.Int("resume.text_length", len(text))))
	defer span.End()

	body, err := c.post(ctx, "/v1/parse", parseRequest{Text: text})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, err
	}

	resume, err := parseResumePayload(body)
	if err != nil {
		tracing.RecordError(span, ErrMalformedResponse, tracing.ErrorTypeExternal)
		return nil, err
	}
	return resume, nil
}

// parseResumePayload 逐字段解码简历JSON
func parseResumePayload(body []byte) (*types.ParsedResume, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	resume := &types.ParsedResume{}
	decodeField(fields, "personalInfo", &resume.PersonalInfo)
	decodeField(fields, "summary", &resume.Summary)
	decodeField(fields, "skills", &resume.Skills)
	decodeField(fields, "experience", &resume.Experience)
	decodeField(fields, "education", &resume.Education)
	decodeField(fields, "certifications", &resume.Certifications)
	decodeField(fields, "totalExperience", &resume.TotalExperience)

	resume.Normalize()
	return resume, nil
}

// decodeField 解码单个字段，缺失或类型不符时目标保持零值
func decodeField[T any](fields map[string]json.RawMessage, key string, dst *T) {
	raw, ok := fields[key]
	if !ok || len(raw) == 0 {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = v
}

// post 发送JSON请求并归类传输层错误，调用方据此判断可重试性
func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("network error: read response: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limit exceeded: AI service returned 429")
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("service unavailable: AI service returned %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("AI service returned unexpected status %d: %s", resp.StatusCode, tracing.TruncateString(string(body), 200))
	}
}

// classifyTransportError 把传输错误映射为带可识别前缀的错误消息
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timeout: %v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %v", err)
	}
	return fmt.Errorf("network error: %v", err)
}
