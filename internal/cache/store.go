package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "url:"

// pingInterval 可用性探测周期
const pingInterval = 15 * time.Second

// Metrics 缓存运行计数器快照
type Metrics struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Errors  int64 `json:"errors"`
}

// Store 封装 Redis 的缓存存储适配器
//
// 所有操作均为尽力而为：底层错误被记录、计数并转化为
// miss（Get）或失败返回值（Set/Delete），绝不向同步路径抛出。
// 可用性由后台 Ping 循环维护，而非单次调用失败。
type Store struct {
	client      *redis.Client
	standardTTL time.Duration
	timeout     time.Duration
	logger      *zap.SugaredLogger

	available atomic.Bool

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64

	stopChan chan struct{}
}

// NewStore 创建缓存存储适配器
// client 允许为 nil，此时所有操作直接按不可用降级。
func NewStore(client *redis.Client, standardTTL, timeout time.Duration, logger *zap.SugaredLogger) *Store {
	s := &Store{
		client:      client,
		standardTTL: standardTTL,
		timeout:     timeout,
		logger:      logger.Named("cache_store"),
		stopChan:    make(chan struct{}),
	}
	s.available.Store(client != nil)
	return s
}

// Start 启动可用性探测与计数器按日重置的后台任务
func (s *Store) Start() {
	go s.watchAvailability()
	go s.resetMetricsDaily()
}

// Stop 停止后台任务
func (s *Store) Stop() {
	close(s.stopChan)
}

// Key 缓存键格式：url:<shortCode>
func Key(shortCode string) string {
	return keyPrefix + shortCode
}

// Get 查询短码对应的目标 URL；任何错误都按 miss 处理
func (s *Store) Get(ctx context.Context, shortCode string) (string, bool) {
	if s.client == nil {
		s.misses.Add(1)
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, Key(shortCode)).Result()
	if err != nil {
		if err != redis.Nil {
			s.errors.Add(1)
			s.logger.Debugf("缓存读取失败: %v", err)
		}
		s.misses.Add(1)
		return "", false
	}

	s.hits.Add(1)
	return val, true
}

// Set 写入目标 URL，TTL 由层级决定
func (s *Store) Set(ctx context.Context, shortCode, originalURL string, tier Tier) bool {
	if s.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, Key(shortCode), originalURL, tier.TTL(s.standardTTL)).Err(); err != nil {
		s.errors.Add(1)
		s.logger.Debugf("缓存写入失败: %v", err)
		return false
	}

	s.sets.Add(1)
	return true
}

// Delete 显式删除缓存条目（链接停用或更新时调用）
func (s *Store) Delete(ctx context.Context, shortCode string) bool {
	if s.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, Key(shortCode)).Err(); err != nil {
		s.errors.Add(1)
		s.logger.Debugf("缓存删除失败: %v", err)
		return false
	}

	s.deletes.Add(1)
	return true
}

// ExtendIfNeeded 命中后机会性续期：
// 剩余 TTL 低于标准基准一半时，重置为标准基准。
//
// 条目不随值存储层级，这里统一按标准层级近似：
// 高热条目可能被提前缩短到标准 TTL，到期回源后
// 会按最新热度重新写入对应层级的 TTL，偏差是自愈的；
// 低热条目被延长属于可接受的多占缓存。
func (s *Store) ExtendIfNeeded(ctx context.Context, shortCode string) {
	if s.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	remaining, err := s.client.TTL(ctx, Key(shortCode)).Result()
	if err != nil {
		s.errors.Add(1)
		return
	}
	if remaining <= 0 || remaining >= s.standardTTL/2 {
		return
	}

	if err := s.client.Expire(ctx, Key(shortCode), s.standardTTL).Err(); err != nil {
		s.errors.Add(1)
	}
}

// IsAvailable 返回后台探测维护的连接可用状态
func (s *Store) IsAvailable() bool {
	return s.available.Load()
}

// Snapshot 返回当前计数器快照
func (s *Store) Snapshot() Metrics {
	return Metrics{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Sets:    s.sets.Load(),
		Deletes: s.deletes.Load(),
		Errors:  s.errors.Load(),
	}
}

// ResetMetrics 清零计数器
func (s *Store) ResetMetrics() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.errors.Store(0)
}

// watchAvailability 周期探测连接状态
func (s *Store) watchAvailability() {
	if s.client == nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			err := s.client.Ping(ctx).Err()
			cancel()

			wasAvailable := s.available.Load()
			s.available.Store(err == nil)
			if err != nil && wasAvailable {
				s.logger.Warnf("缓存连接不可用，已降级为直查数据库: %v", err)
			} else if err == nil && !wasAvailable {
				s.logger.Info("缓存连接恢复")
			}
		case <-s.stopChan:
			return
		}
	}
}

// resetMetricsDaily 每日清零运行计数器
func (s *Store) resetMetricsDaily() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := s.Snapshot()
			s.logger.Infof("缓存日报: hits=%d misses=%d sets=%d deletes=%d errors=%d",
				snap.Hits, snap.Misses, snap.Sets, snap.Deletes, snap.Errors)
			s.ResetMetrics()
		case <-s.stopChan:
			return
		}
	}
}
