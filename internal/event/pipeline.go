package event

import (
	"sync"
	"sync/atomic"
	"time"

	"shorturl-core/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pipeline 热路径之外的异步副作用队列
//
// 重定向响应写出后，事实被交给本队列：工作协程负责
// 映射计数自增与事实发布，其失败与重试策略同请求生命
// 周期完全解耦。队列满时丢弃并计数，绝不阻塞响应。
type Pipeline struct {
	db        *gorm.DB
	publisher *Publisher
	facts     chan RedirectFact
	workers   int
	logger    *zap.SugaredLogger

	dropped atomic.Int64
	applied atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  atomic.Bool
	closeMu  sync.RWMutex // 入队与 close(facts) 互斥，防止向已关闭通道发送
}

// NewPipeline 创建流水线
// publisher 允许为 nil（代理不可用的部署形态），此时只做计数自增。
func NewPipeline(db *gorm.DB, publisher *Publisher, bufferSize, workers int, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		db:        db,
		publisher: publisher,
		facts:     make(chan RedirectFact, bufferSize),
		workers:   workers,
		logger:    logger.Named("click_pipeline"),
	}
}

// Start 启动工作协程
func (p *Pipeline) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Infof("点击流水线已启动: workers=%d buffer=%d", p.workers, cap(p.facts))
}

// Stop 停止流水线，排空队列中剩余的事实
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.closeMu.Lock()
		p.stopped.Store(true)
		close(p.facts)
		p.closeMu.Unlock()
	})
	p.wg.Wait()
}

// Enqueue 非阻塞入队；队列满或已停止时丢弃并返回 false
// 与 Stop 并发调用安全：读锁保证停止标记检查与发送的原子性。
func (p *Pipeline) Enqueue(fact RedirectFact) bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.stopped.Load() {
		p.dropped.Add(1)
		return false
	}

	select {
	case p.facts <- fact:
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warnf("流水线队列已满，丢弃事实: short_code=%s", fact.ShortCode)
		return false
	}
}

// Dropped 累计丢弃数
func (p *Pipeline) Dropped() int64 { return p.dropped.Load() }

// Applied 累计处理数
func (p *Pipeline) Applied() int64 { return p.applied.Load() }

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for fact := range p.facts {
		p.process(fact)
	}
}

// process 对单个事实执行映射计数自增与发布
// 任一失败只记录，不影响已发出的响应。
func (p *Pipeline) process(fact RedirectFact) {
	err := p.db.Model(&model.ShortLink{}).
		Where("short_code = ?", fact.ShortCode).
		Updates(map[string]interface{}{
			"click_count":    gorm.Expr("click_count + 1"),
			"last_access_at": time.Now(),
		}).Error
	if err != nil {
		p.logger.Errorf("点击计数更新失败: short_code=%s err=%v", fact.ShortCode, err)
	}

	if p.publisher != nil {
		p.publisher.PublishRedirect(fact)
	}

	p.applied.Add(1)
}
