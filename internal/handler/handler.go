package handler

import (
	"errors"
	"net/http"
	"time"

	"shorturl-core/internal/cache"
	"shorturl-core/internal/event"
	"shorturl-core/internal/model"
	"shorturl-core/internal/resolver"
	"shorturl-core/internal/stats"
	"shorturl-core/pkg/broker"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RedirectHandler 处理器
type RedirectHandler struct {
	db         *gorm.DB
	resolver   *resolver.Resolver
	pipeline   *event.Pipeline
	aggregator *stats.Aggregator
	cacheStore *cache.Store
	broker     *broker.Conn
}

// NewRedirectHandler 创建处理器实例
// broker 允许为 nil（代理不可用的部署形态）
func NewRedirectHandler(
	db *gorm.DB,
	r *resolver.Resolver,
	p *event.Pipeline,
	a *stats.Aggregator,
	store *cache.Store,
	conn *broker.Conn,
) *RedirectHandler {
	return &RedirectHandler{
		db:         db,
		resolver:   r,
		pipeline:   p,
		aggregator: a,
		cacheStore: store,
		broker:     conn,
	}
}

// HealthCheck 健康检查
// 缓存与消息代理作为独立布尔上报；仅缓存不可达时整体
// 降级为 degraded 而非 down（解析可直查数据库）。
func (h *RedirectHandler) HealthCheck(c *gin.Context) {
	cacheOK := h.cacheStore != nil && h.cacheStore.IsAvailable()
	brokerOK := h.broker != nil && h.broker.IsConnected()

	status := "healthy"
	if !cacheOK || !brokerOK {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"cache":     cacheOK,
		"broker":    brokerOK,
		"timestamp": time.Now(),
	})
}

// RedirectToOriginal 短码重定向入口
// 同步阶段只做解析与响应；计数自增与事实发布交给流水线，
// 其失败绝不改变已发出的响应。
func (h *RedirectHandler) RedirectToOriginal(c *gin.Context) {
	code := c.Param("code")

	url, outcome, err := h.resolver.Resolve(c.Request.Context(), code)
	if err != nil {
		// 记录源是唯一没有安全回退的依赖
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务暂时不可用"})
		return
	}

	switch outcome {
	case resolver.OutcomeHit, resolver.OutcomeMissResolved:
		c.Redirect(http.StatusFound, url)
		h.enqueueFact(c, code, url)
	case resolver.OutcomeInactive, resolver.OutcomeExpired:
		c.JSON(http.StatusGone, gin.H{"error": "链接已失效"})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "链接不存在"})
	}
}

// enqueueFact 构造重定向事实并交给异步流水线
func (h *RedirectHandler) enqueueFact(c *gin.Context, code, url string) {
	if h.pipeline == nil {
		return
	}

	country := c.GetHeader("CF-IPCountry")
	if country == "" {
		country = c.GetHeader("X-Country-Code")
	}

	fact := event.NewRedirectFact(
		code, url,
		c.ClientIP(),
		c.Request.UserAgent(),
		c.Request.Referer(),
		country,
		nil,
	)
	h.pipeline.Enqueue(fact)
}

// GetLinkStats 查询单个短码的聚合统计
func (h *RedirectHandler) GetLinkStats(c *gin.Context) {
	code := c.Param("code")

	linkStats, err := h.aggregator.Stats(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "暂无统计数据"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取统计失败"})
		return
	}

	c.JSON(http.StatusOK, linkStats)
}

// GetStats 全站概览统计
func (h *RedirectHandler) GetStats(c *gin.Context) {
	var overview struct {
		TotalLinks  int64 `json:"total_links"`
		TotalClicks int64 `json:"total_clicks"`
		ActiveLinks int64 `json:"active_links"`
	}
	h.db.Model(&model.ShortLink{}).Count(&overview.TotalLinks)
	h.db.Model(&model.ShortLink{}).Select("COALESCE(SUM(click_count), 0)").Scan(&overview.TotalClicks)
	h.db.Model(&model.ShortLink{}).Where("is_active = ?", true).Count(&overview.ActiveLinks)
	c.JSON(http.StatusOK, overview)
}
