package processor

import "strings"

// transientMarkers 错误消息中标记瞬态故障的子串，匹配不区分大小写
var transientMarkers = []string{
	"rate limit",
	"timeout",
	"network",
	"temporary",
	"service unavailable",
}

// ErrorClassifier 决定一次失败是否值得重试。
// 分类只看错误消息与已消耗的尝试次数，与错误来源无关。
type ErrorClassifier struct {
	maxAttempts int
}

// NewErrorClassifier 创建分类器，maxAttempts为投递次数上限
func NewErrorClassifier(maxAttempts int) *ErrorClassifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ErrorClassifier{maxAttempts: maxAttempts}
}

// Classify 返回该错误在第attempt次尝试失败后是否可重试：
// 消息含瞬态标记且尝试次数未达上限。
func (c *ErrorClassifier) Classify(err error, attempt int) bool {
	if err == nil || attempt >= c.maxAttempts {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// MaxAttempts 返回配置的尝试次数上限
func (c *ErrorClassifier) MaxAttempts() int {
	return c.maxAttempts
}
