package event

import (
	"context"
	"encoding/json"
	"errors"

	"shorturl-core/pkg/broker"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// RedirectApplier 消费侧的事实应用方（聚合器实现）
type RedirectApplier interface {
	Apply(ctx context.Context, fact RedirectFact) error
}

// Prewarmer 缓存预热方（解析器实现）
type Prewarmer interface {
	Prewarm(ctx context.Context, shortCode, originalURL string)
}

// Consumer 绑定持久化消费组并驱动副作用
//
// 确认语义：副作用成功应用后才 Ack；应用失败时 Term
// 终止投递（不重新排队），避免毒消息循环，失败记入日志
// 供人工从 Stream 重放。
type Consumer struct {
	conn      *broker.Conn
	applier   RedirectApplier
	prewarmer Prewarmer
	logger    *zap.SugaredLogger
	subs      []*nats.Subscription
}

// NewConsumer 创建消费者
func NewConsumer(conn *broker.Conn, applier RedirectApplier, prewarmer Prewarmer, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{
		conn:      conn,
		applier:   applier,
		prewarmer: prewarmer,
		logger:    logger.Named("consumer"),
	}
}

// Start 为各路由主题绑定独立的持久化消费组
func (c *Consumer) Start() error {
	js, ok := c.conn.JetStream()
	if !ok {
		return errors.New("消息代理未连接，无法启动消费者")
	}

	redirectSub, err := js.QueueSubscribe(
		SubjectRedirectOccurred, "aggregator",
		c.handleRedirect,
		nats.Durable("aggregator"),
		nats.ManualAck(),
	)
	if err != nil {
		return err
	}
	c.subs = append(c.subs, redirectSub)

	createdSub, err := js.QueueSubscribe(
		SubjectURLCreated, "prewarm",
		c.handleURLCreated,
		nats.Durable("prewarm"),
		nats.ManualAck(),
	)
	if err != nil {
		return err
	}
	c.subs = append(c.subs, createdSub)

	c.logger.Info("消费者已绑定: redirect.occurred -> aggregator, url.created -> prewarm")
	return nil
}

// Stop 排空订阅，等待在途确认完成
func (c *Consumer) Stop() {
	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Errorf("订阅排空失败: %v", err)
		}
	}
	c.subs = nil
}

func (c *Consumer) handleRedirect(msg *nats.Msg) {
	var fact RedirectFact
	if err := json.Unmarshal(msg.Data, &fact); err != nil {
		// 无法解析的消息永远无法成功，直接终止投递
		c.logger.Errorf("事实解析失败，终止投递: %v", err)
		c.terminate(msg)
		return
	}

	if err := c.applier.Apply(context.Background(), fact); err != nil {
		c.logger.Errorf("事实应用失败，终止投递: event_id=%s err=%v", fact.EventID, err)
		c.terminate(msg)
		return
	}

	if err := msg.Ack(); err != nil {
		c.logger.Errorf("确认失败: event_id=%s err=%v", fact.EventID, err)
	}
}

func (c *Consumer) handleURLCreated(msg *nats.Msg) {
	var fact URLCreatedFact
	if err := json.Unmarshal(msg.Data, &fact); err != nil {
		c.logger.Errorf("预热信号解析失败，终止投递: %v", err)
		c.terminate(msg)
		return
	}

	// 预热本身是尽力而为，失败也确认
	c.prewarmer.Prewarm(context.Background(), fact.ShortCode, fact.OriginalURL)

	if err := msg.Ack(); err != nil {
		c.logger.Errorf("确认失败: %v", err)
	}
}

func (c *Consumer) terminate(msg *nats.Msg) {
	if err := msg.Term(); err != nil {
		c.logger.Errorf("终止投递失败: %v", err)
	}
}
