package storage

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	initial := 2 * time.Second
	max := 60 * time.Second

	tests := []struct {
		name          string
		failedAttempt int
		want          time.Duration
	}{
		{"第1次失败", 1, 2 * time.Second},
		{"第2次失败", 2, 4 * time.Second},
		{"第3次失败", 3, 8 * time.Second},
		{"第5次失败", 5, 32 * time.Second},
		{"达到上限", 6, 60 * time.Second},
		{"远超上限", 20, 60 * time.Second},
		{"非法输入按1处理", 0, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BackoffDelay(initial, max, tt.failedAttempt))
		})
	}
}

func TestBackoffDelayCapEqualsInitial(t *testing.T) {
	// 上限小于首次延迟时直接取上限
	assert.Equal(t, time.Second, BackoffDelay(2*time.Second, time.Second, 1))
}

func TestAttemptFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"缺失头按第1次", nil, 1},
		{"空表按第1次", amqp.Table{}, 1},
		{"int32", amqp.Table{attemptHeader: int32(3)}, 3},
		{"int64", amqp.Table{attemptHeader: int64(2)}, 2},
		{"int", amqp.Table{attemptHeader: 4}, 4},
		{"非法类型按第1次", amqp.Table{attemptHeader: "2"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, attemptFromHeaders(tt.headers))
		})
	}
}
