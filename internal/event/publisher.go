package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"turing_arena/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	SessionFinished  = "quiz.session.finished"
	SessionAbandoned = "quiz.session.abandoned"
)

// Publisher 发布答题领域事件，供排行榜等下游订阅
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
	Close()
}

type Envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

type SessionFinishedPayload struct {
	SessionID     uint `json:"sessionId"`
	UserID        uint `json:"userId"`
	ChoiceCount   int  `json:"choiceCount"`
	Total         int  `json:"total"`
	Phase1Correct int  `json:"phase1Correct"`
	Phase2Points  int  `json:"phase2Points"`
}

type SessionAbandonedPayload struct {
	SessionID uint  `json:"sessionId"`
	UserID    uint  `json:"userId"`
	Released  int64 `json:"released"`
}

type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	body, err := json.Marshal(Envelope{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return err
	}

	// amqp.Channel 不是并发安全的
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.Publish(
		p.exchange,
		eventType, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// NopPublisher 事件未启用时使用，只记录 debug 日志
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, eventType string, payload interface{}) error {
	logger.Log.Debug("event skipped", zap.String("type", eventType), zap.Any("payload", payload))
	return nil
}

func (NopPublisher) Close() {}

// Emit 发布事件，失败只记日志，不影响请求结果
func Emit(ctx context.Context, p Publisher, eventType string, payload interface{}) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := p.Publish(ctx, eventType, payload); err != nil {
		logger.Log.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}
