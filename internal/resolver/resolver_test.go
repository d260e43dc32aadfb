package resolver

import (
	"context"
	"testing"
	"time"

	"shorturl-core/internal/cache"
	"shorturl-core/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// fakeCache 基于内存 map 的缓存替身
type fakeCache struct {
	entries   map[string]string
	tiers     map[string]cache.Tier
	available bool
	extended  []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries:   make(map[string]string),
		tiers:     make(map[string]cache.Tier),
		available: true,
	}
}

func (f *fakeCache) Get(_ context.Context, code string) (string, bool) {
	if !f.available {
		return "", false
	}
	val, ok := f.entries[code]
	return val, ok
}

func (f *fakeCache) Set(_ context.Context, code, url string, tier cache.Tier) bool {
	if !f.available {
		return false
	}
	f.entries[code] = url
	f.tiers[code] = tier
	return true
}

func (f *fakeCache) Delete(_ context.Context, code string) bool {
	delete(f.entries, code)
	delete(f.tiers, code)
	return true
}

func (f *fakeCache) ExtendIfNeeded(_ context.Context, code string) {
	f.extended = append(f.extended, code)
}

func (f *fakeCache) IsAvailable() bool { return f.available }

func setupTest(t *testing.T) (*Resolver, *fakeCache, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err, "无法连接到内存数据库")
	require.NoError(t, db.AutoMigrate(&model.ShortLink{}))

	fc := newFakeCache()
	logger, _ := zap.NewDevelopment()
	r := New(db, fc, 1000, 3*time.Second, logger.Sugar())
	return r, fc, db
}

// TestResolveColdCacheThenHit 冷缓存解析后回填，二次解析命中
func TestResolveColdCacheThenHit(t *testing.T) {
	r, fc, db := setupTest(t)

	db.Create(&model.ShortLink{ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true})

	url, outcome, err := r.Resolve(context.Background(), "abc123")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeMissResolved, outcome)
	assert.Equal(t, "https://example.com", url)

	// 缓存已回填，键值与记录源一致
	cached, ok := fc.entries["abc123"]
	assert.True(t, ok, "解析成功后应写入缓存")
	assert.Equal(t, "https://example.com", cached)
	assert.Equal(t, cache.TierStandard, fc.tiers["abc123"])

	// 第二次解析应命中缓存并触发机会性续期
	url, outcome, err = r.Resolve(context.Background(), "abc123")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, "https://example.com", url)
	assert.Contains(t, fc.extended, "abc123")
}

// TestResolveNotFound 不存在的短码
func TestResolveNotFound(t *testing.T) {
	r, fc, _ := setupTest(t)

	_, outcome, err := r.Resolve(context.Background(), "nosuch1")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, outcome)
	assert.Empty(t, fc.entries)
}

// TestResolveInactive 停用链接不回填缓存，重复调用结果一致
func TestResolveInactive(t *testing.T) {
	r, fc, db := setupTest(t)

	db.Create(&model.ShortLink{ShortCode: "off1234", OriginalURL: "https://example.com", IsActive: false})

	for i := 0; i < 3; i++ {
		_, outcome, err := r.Resolve(context.Background(), "off1234")
		assert.NoError(t, err)
		assert.Equal(t, OutcomeInactive, outcome)
	}
	assert.Empty(t, fc.entries, "停用链接绝不写入缓存")
}

// TestResolveExpired 过期链接视同不存在，不回填缓存
func TestResolveExpired(t *testing.T) {
	r, fc, db := setupTest(t)

	past := time.Now().Add(-time.Hour)
	db.Create(&model.ShortLink{ShortCode: "old1234", OriginalURL: "https://example.com", IsActive: true, ExpiresAt: &past})

	_, outcome, err := r.Resolve(context.Background(), "old1234")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
	assert.Empty(t, fc.entries)
}

// TestResolvePopularLinkGetsHighTier 热度达到阈值的链接回填 high 层
func TestResolvePopularLinkGetsHighTier(t *testing.T) {
	r, fc, db := setupTest(t)

	db.Create(&model.ShortLink{ShortCode: "hot1234", OriginalURL: "https://example.com", IsActive: true, ClickCount: 5000})

	_, outcome, err := r.Resolve(context.Background(), "hot1234")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeMissResolved, outcome)
	assert.Equal(t, cache.TierHigh, fc.tiers["hot1234"])
}

// TestResolveCacheUnavailableFallsBack 缓存不可用时静默降级为直查数据库
func TestResolveCacheUnavailableFallsBack(t *testing.T) {
	r, fc, db := setupTest(t)
	fc.available = false

	db.Create(&model.ShortLink{ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true})

	url, outcome, err := r.Resolve(context.Background(), "abc123")
	assert.NoError(t, err, "缓存故障绝不作为错误上浮")
	assert.Equal(t, OutcomeMissResolved, outcome)
	assert.Equal(t, "https://example.com", url)
}

// TestPrewarmUsesLowTier 预热条目进入 low 层
func TestPrewarmUsesLowTier(t *testing.T) {
	r, fc, _ := setupTest(t)

	r.Prewarm(context.Background(), "new1234", "https://example.com/new")
	assert.Equal(t, "https://example.com/new", fc.entries["new1234"])
	assert.Equal(t, cache.TierLow, fc.tiers["new1234"])
}

// TestInvalidateRemovesEntry 停用链接后显式删除缓存
func TestInvalidateRemovesEntry(t *testing.T) {
	r, fc, _ := setupTest(t)

	fc.entries["abc123"] = "https://example.com"
	r.Invalidate(context.Background(), "abc123")
	assert.Empty(t, fc.entries)
}
