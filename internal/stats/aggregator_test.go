package stats

import (
	"context"
	"testing"
	"time"

	"shorturl-core/internal/event"
	"shorturl-core/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAggregatorTest(t *testing.T) (*Aggregator, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ShortLink{}, &model.VisitorSeen{}, &model.ClickRecord{}, &model.LinkStats{}))

	logger, _ := zap.NewDevelopment()
	return New(db, logger.Sugar()), db
}

func newFact(shortCode, visitorHash string) event.RedirectFact {
	fact := event.NewRedirectFact(shortCode, "https://example.com", "203.0.113.7", "ua", "https://ref.example/page", "TW", nil)
	fact.VisitorHash = visitorHash
	return fact
}

// TestApplyCountsClicksAndUniqueVisitors 同一访客 N 次解析：
// 总点击 +N，唯一访客恰好 +1
func TestApplyCountsClicksAndUniqueVisitors(t *testing.T) {
	a, db := setupAggregatorTest(t)
	db.Create(&model.ShortLink{ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true})

	const n = 7
	for i := 0; i < n; i++ {
		require.NoError(t, a.Apply(context.Background(), newFact("abc123", "visitor-1")))
	}

	stats, err := a.Stats(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.TotalClicks)
	assert.Equal(t, int64(1), stats.UniqueVisitors)

	// 映射上的唯一访客计数同步 +1
	var link model.ShortLink
	require.NoError(t, db.Where("short_code = ?", "abc123").First(&link).Error)
	assert.Equal(t, int64(1), link.UniqueVisitors)

	// 原始记录逐条落库
	var records int64
	db.Model(&model.ClickRecord{}).Where("short_code = ?", "abc123").Count(&records)
	assert.Equal(t, int64(n), records)
}

// TestApplyDistinctVisitors 不同访客哈希各计一次唯一访客
func TestApplyDistinctVisitors(t *testing.T) {
	a, _ := setupAggregatorTest(t)

	require.NoError(t, a.Apply(context.Background(), newFact("abc123", "visitor-1")))
	require.NoError(t, a.Apply(context.Background(), newFact("abc123", "visitor-2")))
	require.NoError(t, a.Apply(context.Background(), newFact("abc123", "visitor-1")))

	stats, err := a.Stats(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalClicks)
	assert.Equal(t, int64(2), stats.UniqueVisitors)
}

// TestApplyTwiceOvercounts 模拟重投：同一事实应用两次计两次
// 至少一次投递下的既定行为，不是缺陷
func TestApplyTwiceOvercounts(t *testing.T) {
	a, _ := setupAggregatorTest(t)

	fact := newFact("abc123", "visitor-1")
	require.NoError(t, a.Apply(context.Background(), fact))
	require.NoError(t, a.Apply(context.Background(), fact))

	stats, err := a.Stats(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalClicks)
}

// TestApplyBreakdowns 维度计数与每日序列
func TestApplyBreakdowns(t *testing.T) {
	a, _ := setupAggregatorTest(t)

	fact := newFact("abc123", "visitor-1")
	fact.Timestamp = time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC) // 周一 15 时
	require.NoError(t, a.Apply(context.Background(), fact))

	stats, err := a.Stats(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.ByCountry["TW"])
	assert.Equal(t, int64(1), stats.ByReferrer["ref.example"])
	assert.Equal(t, int64(1), stats.ByHour["15"])
	assert.Equal(t, int64(1), stats.ByWeekday["Monday"])

	require.Len(t, stats.Daily, 1)
	assert.Equal(t, "2026-08-31", stats.Daily[0].Date)
	assert.Equal(t, int64(1), stats.Daily[0].Clicks)
	assert.Equal(t, int64(1), stats.Daily[0].UniqueVisitors)

	// 同日第二次点击更新既有条目
	fact2 := newFact("abc123", "visitor-2")
	fact2.Timestamp = time.Date(2026, 8, 31, 16, 0, 0, 0, time.UTC)
	require.NoError(t, a.Apply(context.Background(), fact2))

	stats, _ = a.Stats(context.Background(), "abc123")
	require.Len(t, stats.Daily, 1)
	assert.Equal(t, int64(2), stats.Daily[0].Clicks)
}

// TestDeviceClass UA 设备分类规则
func TestDeviceClass(t *testing.T) {
	cases := map[string]string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148":   "mobile",
		"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)":            "tablet",
		"Mozilla/5.0 (Linux; Android 14; Tablet) Mobile":           "tablet",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64)":                "desktop",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)":             "desktop",
		"Mozilla/5.0 (X11; Linux x86_64)":                          "desktop",
		"weird-client/1.0":                                         "unknown",
	}

	for ua, want := range cases {
		assert.Equal(t, want, DeviceClass(ua), "UA: %s", ua)
	}
}

// TestReferrerDomain 来源域名提取
func TestReferrerDomain(t *testing.T) {
	assert.Equal(t, "direct", ReferrerDomain(""))
	assert.Equal(t, "news.ycombinator.com", ReferrerDomain("https://news.ycombinator.com/item?id=1"))
	// 解析不出 host 时回退原始字符串
	assert.Equal(t, "not a url", ReferrerDomain("not a url"))
}
