package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shorturl-core/internal/cache"
	"shorturl-core/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome 解析结果枚举
type Outcome int

const (
	// OutcomeHit 缓存命中
	OutcomeHit Outcome = iota
	// OutcomeMissResolved 缓存未命中，经数据库解析并回填缓存
	OutcomeMissResolved
	// OutcomeNotFound 短码不存在
	OutcomeNotFound
	// OutcomeInactive 链接已停用
	OutcomeInactive
	// OutcomeExpired 链接已过期，对后续查找视同不存在
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "HIT"
	case OutcomeMissResolved:
		return "MISS_RESOLVED"
	case OutcomeNotFound:
		return "NOT_FOUND"
	case OutcomeInactive:
		return "INACTIVE"
	case OutcomeExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// ErrStoreFailure 系统记录源不可达
// 缓存故障可以静默降级，数据库是唯一没有安全回退的依赖。
var ErrStoreFailure = errors.New("系统记录源查询失败")

// Cache 解析器依赖的缓存行为
type Cache interface {
	Get(ctx context.Context, shortCode string) (string, bool)
	Set(ctx context.Context, shortCode, originalURL string, tier cache.Tier) bool
	Delete(ctx context.Context, shortCode string) bool
	ExtendIfNeeded(ctx context.Context, shortCode string)
	IsAvailable() bool
}

// Resolver 缓存旁路解析状态机
//
// 缓存只承载 URL 字符串，激活/过期状态永远以数据库为准，
// 因此停用与过期路径绝不回填缓存。
type Resolver struct {
	db                  *gorm.DB
	cache               Cache
	popularityThreshold int64
	dbTimeout           time.Duration
	logger              *zap.SugaredLogger
	now                 func() time.Time
}

// New 创建解析器
func New(db *gorm.DB, c Cache, popularityThreshold int64, dbTimeout time.Duration, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{
		db:                  db,
		cache:               c,
		popularityThreshold: popularityThreshold,
		dbTimeout:           dbTimeout,
		logger:              logger.Named("resolver"),
		now:                 time.Now,
	}
}

// Resolve 解析短码为目标 URL
//
// 流程：查缓存 → 命中则机会性续期并返回；未命中查数据库，
// 按存在性/激活/过期分流，活跃链接按热度分层回填缓存。
// 缓存故障静默降级为直查数据库；数据库故障返回 ErrStoreFailure。
func (r *Resolver) Resolve(ctx context.Context, shortCode string) (string, Outcome, error) {
	if url, ok := r.cache.Get(ctx, shortCode); ok {
		r.cache.ExtendIfNeeded(ctx, shortCode)
		return url, OutcomeHit, nil
	}

	link, err := r.lookup(ctx, shortCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", OutcomeNotFound, nil
		}
		r.logger.Errorf("查询短码 %s 失败: %v", shortCode, err)
		return "", OutcomeNotFound, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	if !link.IsActive {
		return "", OutcomeInactive, nil
	}
	if link.IsExpired(r.now()) {
		return "", OutcomeExpired, nil
	}

	tier := cache.TierFor(link.ClickCount, r.popularityThreshold)
	r.cache.Set(ctx, shortCode, link.OriginalURL, tier)

	return link.OriginalURL, OutcomeMissResolved, nil
}

// Prewarm 预热缓存（消费 url.created 事件时调用）
// 新建链接尚无访问热度，进入 low 层
func (r *Resolver) Prewarm(ctx context.Context, shortCode, originalURL string) {
	r.cache.Set(ctx, shortCode, originalURL, cache.TierLow)
}

// Invalidate 链接停用或更新时显式删除缓存条目
func (r *Resolver) Invalidate(ctx context.Context, shortCode string) {
	r.cache.Delete(ctx, shortCode)
}

func (r *Resolver) lookup(ctx context.Context, shortCode string) (*model.ShortLink, error) {
	ctx, cancel := context.WithTimeout(ctx, r.dbTimeout)
	defer cancel()

	var link model.ShortLink
	if err := r.db.WithContext(ctx).Where("short_code = ?", shortCode).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}
