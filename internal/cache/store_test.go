package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestStore() *Store {
	logger, _ := zap.NewDevelopment()
	return NewStore(nil, time.Hour, 500*time.Millisecond, logger.Sugar())
}

// TestTierTTL 各层级 TTL 按标准基准缩放
func TestTierTTL(t *testing.T) {
	standard := time.Hour

	assert.Equal(t, time.Hour, TierStandard.TTL(standard))
	assert.Equal(t, 3*time.Hour, TierHigh.TTL(standard))
	assert.Equal(t, 30*time.Minute, TierLow.TTL(standard))
}

// TestTierFor 热度达到阈值即进入 high 层
func TestTierFor(t *testing.T) {
	assert.Equal(t, TierStandard, TierFor(0, 1000))
	assert.Equal(t, TierStandard, TierFor(999, 1000))
	assert.Equal(t, TierHigh, TierFor(1000, 1000))
	assert.Equal(t, TierHigh, TierFor(5000, 1000))
}

// TestKeyFormat 缓存键格式固定为 url:<shortCode>
func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "url:abc123", Key("abc123"))
}

// TestStoreWithoutClient 无客户端时所有操作按不可用降级，绝不报错
func TestStoreWithoutClient(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	val, ok := store.Get(ctx, "abc123")
	assert.False(t, ok)
	assert.Empty(t, val)

	assert.False(t, store.Set(ctx, "abc123", "https://example.com", TierStandard))
	assert.False(t, store.Delete(ctx, "abc123"))
	assert.False(t, store.IsAvailable())

	// ExtendIfNeeded 应为安全的空操作
	store.ExtendIfNeeded(ctx, "abc123")
}

// TestMetricsSnapshotAndReset 计数器快照与清零
func TestMetricsSnapshotAndReset(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	// 无客户端时 Get 按 miss 计数
	store.Get(ctx, "a")
	store.Get(ctx, "b")

	snap := store.Snapshot()
	assert.Equal(t, int64(2), snap.Misses)
	assert.Equal(t, int64(0), snap.Hits)

	store.ResetMetrics()
	snap = store.Snapshot()
	assert.Equal(t, int64(0), snap.Misses)
}
