package event

import (
	"testing"
	"time"

	"shorturl-core/pkg/broker"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newDisconnectedConn() *broker.Conn {
	return broker.New(broker.Config{
		URL:           "nats://127.0.0.1:1",
		StreamName:    "TEST",
		ReconnectBase: time.Millisecond,
		ReconnectCap:  5 * time.Millisecond,
		MaxReconnects: 1,
	}, zap.NewNop().Sugar())
}

// TestPublishWithoutConnectionReturnsFalse 连接缺失时发布不抛错
// 只返回 false 并计入失败，重定向路径不受影响
func TestPublishWithoutConnectionReturnsFalse(t *testing.T) {
	pub := NewPublisher(newDisconnectedConn(), zap.NewNop().Sugar())

	fact := NewRedirectFact("abc123", "https://example.com", "1.2.3.4", "Mozilla/5.0", "", "CN", nil)
	ok := pub.PublishRedirect(fact)

	assert.False(t, ok)
	assert.Equal(t, int64(1), pub.Failed())
	assert.Equal(t, int64(0), pub.Published())
}

// TestPublishFailureCountAccumulates 连续失败逐次累计
func TestPublishFailureCountAccumulates(t *testing.T) {
	pub := NewPublisher(newDisconnectedConn(), zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		fact := NewRedirectFact("abc123", "https://example.com", "1.2.3.4", "Mozilla/5.0", "", "", nil)
		assert.False(t, pub.PublishRedirect(fact))
	}
	assert.Equal(t, int64(3), pub.Failed())
}
