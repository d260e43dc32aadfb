package defense

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// 任何身份的每分钟下限
	limitFloor = 3
	// 空闲身份清理周期
	cleanupInterval = 5 * time.Minute
	idleEvictAfter  = 10 * time.Minute
)

// AdaptiveLimiter 按信誉分缩放限流上限
//
// 高信誉（>=80）放宽到基础限额的 150%~200%，
// 中等信誉（30~79）使用基础限额，
// 低信誉（<30）压缩到 30%~90%，下限 3 次/分钟。
type AdaptiveLimiter struct {
	mu            sync.Mutex
	clients       map[string]*clientLimiter
	basePerMinute int64
	stopChan      chan struct{}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAdaptiveLimiter 创建自适应限流器
func NewAdaptiveLimiter(basePerMinute int64) *AdaptiveLimiter {
	l := &AdaptiveLimiter{
		clients:       make(map[string]*clientLimiter),
		basePerMinute: basePerMinute,
		stopChan:      make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop 停止后台清理任务
func (l *AdaptiveLimiter) Stop() {
	close(l.stopChan)
}

// EffectiveLimit 计算某信誉分对应的每分钟限额
// 信誉到限额的映射是单调函数。
func (l *AdaptiveLimiter) EffectiveLimit(score int) int64 {
	base := float64(l.basePerMinute)
	var effective float64

	switch {
	case score >= 80:
		// 80 -> 150%, 100 -> 200%
		effective = base * (1.5 + 0.5*float64(score-80)/20)
	case score >= 30:
		effective = base
	default:
		// 0 -> 30%, 29 -> 90%
		effective = base * (0.3 + 0.6*float64(score)/30)
	}

	limit := int64(effective)
	if limit < limitFloor {
		limit = limitFloor
	}
	return limit
}

// Allow 判断该身份是否放行
// 返回 (是否放行, 建议重试间隔)。每次调用按当前信誉分刷新令牌速率。
func (l *AdaptiveLimiter) Allow(identity string, score int) (bool, time.Duration) {
	perMinute := l.EffectiveLimit(score)
	perSecond := rate.Limit(float64(perMinute) / 60.0)
	burst := int(perMinute / 6)
	if burst < limitFloor {
		burst = limitFloor
	}

	l.mu.Lock()
	cl, ok := l.clients[identity]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(perSecond, burst)}
		l.clients[identity] = cl
	}
	cl.lastSeen = time.Now()
	l.mu.Unlock()

	// 信誉漂移时同步调整速率与突发额度
	if cl.limiter.Limit() != perSecond {
		cl.limiter.SetLimit(perSecond)
		cl.limiter.SetBurst(burst)
	}

	if cl.limiter.Allow() {
		return true, 0
	}

	retryAfter := time.Duration(float64(time.Second) / float64(perSecond))
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter
}

// cleanupLoop 定期清理久未出现的身份，避免表无界增长
func (l *AdaptiveLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-idleEvictAfter)
			l.mu.Lock()
			for identity, cl := range l.clients {
				if cl.lastSeen.Before(cutoff) {
					delete(l.clients, identity)
				}
			}
			l.mu.Unlock()
		case <-l.stopChan:
			return
		}
	}
}
