package broker

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// State 连接状态机
// DISCONNECTED → CONNECTING → CONNECTED → (ERROR|CLOSED) → CONNECTING
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	default:
		return "DISCONNECTED"
	}
}

// Config 连接与重连参数
type Config struct {
	URL           string
	StreamName    string
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	MaxReconnects int
}

// Conn 管理到 NATS 的单一共享连接
//
// 重连由本层接管而非依赖客户端内建机制：指数退避加抖动，
// 超过尝试上限后进入 ERROR 态，需外部介入（如进程重启）。
type Conn struct {
	cfg    Config
	logger *zap.SugaredLogger

	mu sync.RWMutex
	nc *nats.Conn
	js nats.JetStreamContext

	state    atomic.Int32
	stopChan chan struct{}
	stopOnce sync.Once
}

// BackoffDelay 计算第 attempt 次重连前的等待时间
// delay = min(cap, base * 1.5^(attempt-1)) * (1 ± 20%)
func BackoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= 1.5
		if delay >= float64(cap) {
			break
		}
	}
	if delay > float64(cap) {
		delay = float64(cap)
	}

	// ±20% 抖动，避免雪崩式同时重连
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(delay * jitter)
}

// New 创建连接管理器（不立即连接）
func New(cfg Config, logger *zap.SugaredLogger) *Conn {
	return &Conn{
		cfg:      cfg,
		logger:   logger.Named("broker"),
		stopChan: make(chan struct{}),
	}
}

// Connect 按退避策略尝试建立连接
// 达到尝试上限后置为 ERROR 并返回最后一次错误。
func (c *Conn) Connect() error {
	c.state.Store(int32(StateConnecting))
	return c.connectLoop()
}

// connectLoop 重试循环主体，调用方负责先置 CONNECTING
func (c *Conn) connectLoop() error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxReconnects; attempt++ {
		select {
		case <-c.stopChan:
			c.state.Store(int32(StateClosed))
			return nil
		default:
		}

		if err := c.dial(); err != nil {
			lastErr = err
			delay := BackoffDelay(c.cfg.ReconnectBase, c.cfg.ReconnectCap, attempt)
			c.logger.Warnf("连接消息代理失败 (第 %d/%d 次): %v，%v 后重试",
				attempt, c.cfg.MaxReconnects, err, delay)

			select {
			case <-time.After(delay):
			case <-c.stopChan:
				c.state.Store(int32(StateClosed))
				return nil
			}
			continue
		}

		c.state.Store(int32(StateConnected))
		c.logger.Infof("消息代理连接成功: %s", c.cfg.URL)
		return nil
	}

	c.state.Store(int32(StateError))
	c.logger.Errorf("重连 %d 次后放弃，需外部介入恢复", c.cfg.MaxReconnects)
	return lastErr
}

// dial 建立一次连接并声明持久化 Stream
func (c *Conn) dial() error {
	// 重连完全由本层管理，关闭客户端内建重连
	nc, err := nats.Connect(c.cfg.URL,
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if c.State() != StateClosed {
				c.logger.Warnf("消息代理连接断开: %v", err)
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.handleClosed()
		}),
	)
	if err != nil {
		return err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return err
	}

	if err := c.ensureStream(js); err != nil {
		nc.Close()
		return err
	}

	c.mu.Lock()
	c.nc = nc
	c.js = js
	c.mu.Unlock()
	return nil
}

// ensureStream 声明承载全部路由主题的持久化 Stream
// 已存在时是幂等空操作。
func (c *Conn) ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(c.cfg.StreamName)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     c.cfg.StreamName,
		Subjects: []string{"shorturl.>"},
		Storage:  nats.FileStorage,
	})
	return err
}

// handleClosed 底层连接关闭时的回调
// 仅已建立的连接意外断开（CONNECTED）才触发后台重连；
// 建连过程中的失败（如 Stream 声明出错后的 nc.Close）
// 由 Connect 自身的重试循环处理，这里必须保持沉默，
// 否则会与进行中的循环并发抢占状态。
func (c *Conn) handleClosed() {
	if c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		go c.reconnect()
	}
}

// reconnect 断线后的后台重连
// CAS DISCONNECTED→CONNECTING 保证任何时刻至多一个重连循环。
func (c *Conn) reconnect() {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return
	}
	if err := c.connectLoop(); err != nil {
		c.logger.Errorf("后台重连失败: %v", err)
	}
}

// TryReconnect 惰性触发一次后台重连
// 发布方发现连接缺失时调用；已在连接或已关闭时为空操作。
func (c *Conn) TryReconnect() {
	if c.State() == StateDisconnected {
		go c.reconnect()
	}
}

// JetStream 获取当前 JetStream 上下文
// 未连接时返回 false，调用方按发布失败处理。
func (c *Conn) JetStream() (nats.JetStreamContext, bool) {
	if c.State() != StateConnected {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, false
	}
	return c.js, true
}

// State 当前连接状态
func (c *Conn) State() State {
	return State(c.state.Load())
}

// IsConnected 健康检查用的布尔视图
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// Close 优雅关闭：Drain 等待在途消息确认完成后再断开
func (c *Conn) Close() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.state.Store(int32(StateClosed))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc != nil && !c.nc.IsClosed() {
		if err := c.nc.Drain(); err != nil {
			c.logger.Errorf("Drain 失败: %v", err)
			c.nc.Close()
		}
	}
	c.nc = nil
	c.js = nil
}
