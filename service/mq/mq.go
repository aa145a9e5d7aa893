package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"workspace-agent-backend/config"
	"workspace-agent-backend/service/chat"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/apache/rocketmq-client-go/v2/rlog"
	"github.com/avast/retry-go/v4"
)

const (
	TagConfirmationResolved = "tag_confirmation_resolved"

	sendMessageAttempts = 3
	sendTimeout         = 5 * time.Second
	queueSize           = 256
)

// Sender rocketmq.Producer 中发布消息所需的部分
type Sender interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
}

type Message struct {
	Topic   string
	Tag     string
	Key     string
	Payload any
}

// Publisher 将确认结果异步发布到 MQ
type Publisher struct {
	sender   Sender
	topic    string
	queue    chan *Message
	shutdown func()
	wg       sync.WaitGroup
	once     sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ chat.Auditor = &Publisher{}

// NewPublisher 创建并启动 RocketMQ 生产者
func NewPublisher(cfg config.MQConfig) (*Publisher, error) {
	// 设置RocketMQ客户端（使用rlog）的日志级别
	rlog.SetLogLevel("warn")

	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{cfg.NameServer}),
		producer.WithRetry(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %v", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("failed to start producer: %v", err)
	}

	pub := NewPublisherWithSender(p, cfg.Topic)
	pub.shutdown = func() {
		if err := p.Shutdown(); err != nil {
			slog.Warn("Failed to shutdown producer", "err", err)
		}
	}
	return pub, nil
}

// NewPublisherWithSender 使用已有的 Sender 创建 Publisher
func NewPublisherWithSender(sender Sender, topic string) *Publisher {
	pub := &Publisher{
		sender: sender,
		topic:  topic,
		queue:  make(chan *Message, queueSize),
	}
	pub.wg.Add(1)
	go pub.loop()
	return pub
}

// ConfirmationResolved 加入发送队列，队列已满时丢弃
func (p *Publisher) ConfirmationResolved(_ context.Context, audit chat.ConfirmationAudit) {
	msg := &Message{
		Topic:   p.topic,
		Tag:     TagConfirmationResolved,
		Key:     audit.ToolCallID,
		Payload: audit,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		slog.Warn("Audit queue is full, dropping event",
			"conversation_id", audit.ConversationID,
			"tool_call_id", audit.ToolCallID)
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout*sendMessageAttempts)
		if err := p.SendMessage(ctx, msg); err != nil {
			slog.Error("Failed to publish audit event", "topic", msg.Topic, "err", err)
		}
		cancel()
	}
}

// SendMessage 向MQ发送消息
func (p *Publisher) SendMessage(ctx context.Context, message *Message) error {
	payloadJSON, err := json.Marshal(message.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	msg := primitive.NewMessage(message.Topic, payloadJSON)
	if message.Tag != "" {
		msg = msg.WithTag(message.Tag)
	}
	if message.Key != "" {
		msg = msg.WithKeys([]string{message.Key})
	}

	err = retry.Do(
		func() error {
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			_, err := p.sender.SendSync(sendCtx, msg)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(sendMessageAttempts),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying to send message",
				"attempt", n+1,
				"topic", msg.Topic,
				"err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s after retries: %v", msg.Topic, err)
	}

	return nil
}

// Shutdown 发送完队列中的消息后关闭生产者
func (p *Publisher) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		if p.shutdown != nil {
			p.shutdown()
		}
	})
}
