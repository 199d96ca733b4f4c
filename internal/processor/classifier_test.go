package processor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	classifier := NewErrorClassifier(3)

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"限流可重试", errors.New("rate limit exceeded: AI service returned 429"), 1, true},
		{"超时可重试", errors.New("timeout: context deadline exceeded"), 1, true},
		{"网络错误可重试", errors.New("network error: connection refused"), 2, true},
		{"临时故障可重试", errors.New("temporary failure in name resolution"), 1, true},
		{"服务不可用可重试", errors.New("service unavailable: AI service returned 503"), 1, true},
		{"大小写不敏感", errors.New("Rate Limit hit on upstream"), 1, true},
		{"达到尝试上限不再重试", errors.New("timeout: context deadline exceeded"), 3, false},
		{"超过尝试上限不再重试", errors.New("network error: connection reset"), 5, false},
		{"格式错误不可重试", fmt.Errorf("Unsupported file type: text/plain"), 1, false},
		{"解析响应非法不可重试", errors.New("AI response is not valid JSON"), 1, false},
		{"候选人缺失不可重试", errors.New("Candidate not found: abc-123"), 1, false},
		{"nil错误不可重试", nil, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.Classify(tt.err, tt.attempt))
		})
	}
}

func TestClassifierMinAttempts(t *testing.T) {
	classifier := NewErrorClassifier(0)
	assert.Equal(t, 1, classifier.MaxAttempts())
	// 上限为1时第一次失败即终态
	assert.False(t, classifier.Classify(errors.New("timeout"), 1))
}
