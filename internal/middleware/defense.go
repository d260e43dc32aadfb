package middleware

import (
	"fmt"
	"net/http"
	"shorturl-core/internal/config"
	"shorturl-core/internal/defense"
	"strings"

	"github.com/gin-gonic/gin"
)

// Bot 概率超阈值时追加的信誉惩罚
const botPenalty = 10

// 超限追加的信誉惩罚，进一步收紧后续限额
const overLimitPenalty = 3

// Defense 前门防御中间件
// 信誉评分与 Bot 评分两级独立可组合，自适应限流按信誉分
// 缩放每个身份的限额。健康检查等路径豁免。
func Defense(
	tracker *defense.Tracker,
	scorer *defense.BotScorer,
	limiter *defense.AdaptiveLimiter,
	defCfg *config.Defense,
	limitCfg *config.Limit,
) gin.HandlerFunc {
	if !defCfg.Enabled || !limitCfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		// 跳过特定路径
		for _, path := range limitCfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		identity := c.ClientIP()
		userAgent := c.Request.UserAgent()
		referer := c.Request.Referer()

		// 第一级：信誉观察
		fingerprint := userAgent + "|" + referer
		score := tracker.Observe(identity, fingerprint)

		// 第二级：Bot 概率，超阈值追加惩罚
		botProb := scorer.Score(userAgent, referer, c.GetHeader("Cookie"), c.GetHeader("Accept"))
		if botProb >= defCfg.BotThreshold {
			score = tracker.Penalize(identity, botPenalty)
		}

		allowed, retryAfter := limiter.Allow(identity, score)
		if !allowed {
			// 超限本身再次扣分，后续限额进一步收紧
			tracker.Penalize(identity, overLimitPenalty)

			c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "请求过于频繁，请稍后再试",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
