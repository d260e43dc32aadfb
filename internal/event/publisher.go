package event

import (
	"encoding/json"
	"sync/atomic"

	"shorturl-core/pkg/broker"

	"go.uber.org/zap"
)

// Publisher 向持久化 Stream 发布事实
//
// 发布是"失败即关闭"的：没有活跃连接时尝试惰性重连，
// 本次发布记录失败并返回 false，绝不向调用方抛错。
type Publisher struct {
	conn   *broker.Conn
	logger *zap.SugaredLogger

	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher 创建发布器
func NewPublisher(conn *broker.Conn, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger.Named("publisher"),
	}
}

// PublishRedirect 发布重定向事实，返回是否成功
func (p *Publisher) PublishRedirect(fact RedirectFact) bool {
	return p.publish(SubjectRedirectOccurred, fact)
}

// PublishURLCreated 发布新链接信号（预热触发）
func (p *Publisher) PublishURLCreated(fact URLCreatedFact) bool {
	return p.publish(SubjectURLCreated, fact)
}

func (p *Publisher) publish(subject string, payload interface{}) bool {
	js, ok := p.conn.JetStream()
	if !ok {
		p.conn.TryReconnect()
		p.failed.Add(1)
		p.logger.Warnf("连接缺失，丢弃发布: subject=%s", subject)
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.failed.Add(1)
		p.logger.Errorf("序列化失败: %v", err)
		return false
	}

	// JetStream 发布即落盘持久化
	if _, err := js.Publish(subject, data); err != nil {
		p.failed.Add(1)
		p.logger.Warnf("发布失败: subject=%s err=%v", subject, err)
		return false
	}

	p.published.Add(1)
	return true
}

// Published 累计成功发布数
func (p *Publisher) Published() int64 { return p.published.Load() }

// Failed 累计失败（含连接缺失丢弃）数
func (p *Publisher) Failed() int64 { return p.failed.Load() }
