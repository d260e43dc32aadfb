package stats

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"sync"
	"time"

	"shorturl-core/internal/event"
	"shorturl-core/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockShards = 64

// Aggregator 将重定向事实应用为增量统计
//
// 计数可交换，跨短码不要求顺序；但"首次访客"判定依赖
// 应用时刻的持久状态，同一短码的并发事实必须串行化，
// 这里按短码哈希分段加锁。
// 不做 event_id 去重：至少一次投递下重投会多计，
// 作为近似分析可接受的既定取舍。
type Aggregator struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
	locks  [lockShards]sync.Mutex
}

// New 创建聚合器
func New(db *gorm.DB, logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{
		db:     db,
		logger: logger.Named("aggregator"),
	}
}

// Apply 应用一条重定向事实
func (a *Aggregator) Apply(ctx context.Context, fact event.RedirectFact) error {
	lock := a.lockFor(fact.ShortCode)
	lock.Lock()
	defer lock.Unlock()

	db := a.db.WithContext(ctx)

	// 原始记录落库，供重放与审计
	record := model.ClickRecord{
		EventID:     fact.EventID,
		ShortCode:   fact.ShortCode,
		VisitorHash: fact.VisitorHash,
		IPHash:      fact.IPHash,
		UserAgent:   fact.UserAgent,
		Referer:     fact.Referer,
		Country:     fact.CountryCode,
		ClickedAt:   fact.Timestamp,
	}
	if err := db.Create(&record).Error; err != nil {
		return fmt.Errorf("原始记录写入失败: %w", err)
	}

	firstVisit, err := a.markVisitor(db, fact)
	if err != nil {
		return err
	}

	if firstVisit {
		if err := db.Model(&model.ShortLink{}).
			Where("short_code = ?", fact.ShortCode).
			Update("unique_visitors", gorm.Expr("unique_visitors + 1")).Error; err != nil {
			a.logger.Errorf("映射唯一访客计数更新失败: %v", err)
		}
	}

	return a.applyStats(db, fact, firstVisit)
}

// Stats 查询某短码的聚合统计
func (a *Aggregator) Stats(ctx context.Context, shortCode string) (*model.LinkStats, error) {
	var stats model.LinkStats
	err := a.db.WithContext(ctx).Where("short_code = ?", shortCode).First(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// markVisitor 标记访客出现，返回是否首次访问
// 依赖 (short_code, visitor_hash) 唯一约束，持锁期间查改安全。
func (a *Aggregator) markVisitor(db *gorm.DB, fact event.RedirectFact) (bool, error) {
	var seen model.VisitorSeen
	err := db.Where("short_code = ? AND visitor_hash = ?", fact.ShortCode, fact.VisitorHash).
		First(&seen).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		seen = model.VisitorSeen{
			ShortCode:   fact.ShortCode,
			VisitorHash: fact.VisitorHash,
			LastSeenAt:  fact.Timestamp,
		}
		if createErr := db.Create(&seen).Error; createErr != nil {
			return false, fmt.Errorf("访客记录写入失败: %w", createErr)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("访客记录查询失败: %w", err)
	}

	db.Model(&seen).Update("last_seen_at", fact.Timestamp)
	return false, nil
}

// applyStats 更新聚合统计行（首个事实到达时惰性创建）
func (a *Aggregator) applyStats(db *gorm.DB, fact event.RedirectFact, firstVisit bool) error {
	var stats model.LinkStats
	err := db.Where("short_code = ?", fact.ShortCode).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stats = model.LinkStats{
			ShortCode:  fact.ShortCode,
			ByCountry:  model.BreakdownMap{},
			ByDevice:   model.BreakdownMap{},
			ByReferrer: model.BreakdownMap{},
			ByHour:     model.BreakdownMap{},
			ByWeekday:  model.BreakdownMap{},
			Daily:      model.DailySeries{},
		}
	} else if err != nil {
		return fmt.Errorf("聚合行查询失败: %w", err)
	}

	stats.TotalClicks++
	if firstVisit {
		stats.UniqueVisitors++
	}

	ts := fact.Timestamp.UTC()
	stats.ByCountry[countryKey(fact.CountryCode)]++
	stats.ByDevice[DeviceClass(fact.UserAgent)]++
	stats.ByReferrer[ReferrerDomain(fact.Referer)]++
	stats.ByHour[fmt.Sprintf("%02d", ts.Hour())]++
	stats.ByWeekday[ts.Weekday().String()]++
	upsertDaily(&stats, ts, firstVisit)

	if err := db.Save(&stats).Error; err != nil {
		return fmt.Errorf("聚合行保存失败: %w", err)
	}
	return nil
}

// upsertDaily 更新当日时间序列条目，缺失则创建
func upsertDaily(stats *model.LinkStats, ts time.Time, firstVisit bool) {
	day := ts.Format("2006-01-02")
	for i := range stats.Daily {
		if stats.Daily[i].Date == day {
			stats.Daily[i].Clicks++
			if firstVisit {
				stats.Daily[i].UniqueVisitors++
			}
			return
		}
	}

	point := model.DailyPoint{Date: day, Clicks: 1}
	if firstVisit {
		point.UniqueVisitors = 1
	}
	stats.Daily = append(stats.Daily, point)
}

// DeviceClass 从 UA 推导设备类别
// 含 mobile 且不含 tablet/ipad 为移动端；含 tablet/ipad 为平板；
// 含桌面系统标记为桌面；其余未知。
func DeviceClass(userAgent string) string {
	ua := strings.ToLower(userAgent)

	isTablet := strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad")
	if strings.Contains(ua, "mobile") && !isTablet {
		return "mobile"
	}
	if isTablet {
		return "tablet"
	}

	for _, token := range []string{"windows", "macintosh", "x11", "linux", "cros"} {
		if strings.Contains(ua, token) {
			return "desktop"
		}
	}
	return "unknown"
}

// ReferrerDomain 提取来源域名
// 无 Referer 记为 direct；解析失败回退原始字符串。
func ReferrerDomain(referer string) string {
	if referer == "" {
		return "direct"
	}

	parsed, err := url.Parse(referer)
	if err != nil || parsed.Host == "" {
		return referer
	}
	return parsed.Host
}

func countryKey(code string) string {
	if code == "" {
		return "unknown"
	}
	return code
}

func (a *Aggregator) lockFor(shortCode string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(shortCode))
	return &a.locks[h.Sum32()%lockShards]
}
