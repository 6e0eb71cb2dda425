package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// ErrPublisherNotInitialized: паблишер создан без producer.
var ErrPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// Заголовки записи, по которым потребители фильтруют события без разбора JSON.
const (
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderOutboxID      = "outbox_id"
)

// TopicRouter выбирает topic для outbox-сообщения.
type TopicRouter interface {
	Topic(msg domain.OutboxMessage) string
}

// StaticTopic отправляет все сообщения в один topic.
type StaticTopic string

// Topic возвращает t или TopicOutboxEvents для пустого значения.
func (t StaticTopic) Topic(domain.OutboxMessage) string {
	if t == "" {
		return TopicOutboxEvents
	}
	return string(t)
}

// Routes маршрутизирует сообщения по типу события.
type Routes struct {
	ByEventType map[string]string
	Fallback    string
}

// Topic возвращает topic для типа события или Fallback.
func (r Routes) Topic(msg domain.OutboxMessage) string {
	if topic, ok := r.ByEventType[msg.EventType]; ok && topic != "" {
		return topic
	}
	return StaticTopic(r.Fallback).Topic(msg)
}

// outboxEnvelope: значение записи. Ключ записи равен aggregate_id, поэтому
// события одного заказа попадают в одну партицию и читаются по порядку.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxPublisher публикует outbox-сообщения в topic, выбранный router.
type OutboxPublisher struct {
	producer *Producer
	router   TopicRouter
	now      func() time.Time
}

// NewOutboxPublisher создаёт паблишер. nil router означает TopicOutboxEvents.
func NewOutboxPublisher(producer *Producer, router TopicRouter) *OutboxPublisher {
	if router == nil {
		router = StaticTopic(TopicOutboxEvents)
	}
	return &OutboxPublisher{producer: producer, router: router, now: time.Now}
}

// Publish отправляет сообщение; пустой payload передаётся как null.
func (p *OutboxPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return ErrPublisherNotInitialized
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	value, err := json.Marshal(outboxEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox %s: %w", msg.ID, err)
	}

	return p.producer.Send(Record{
		Topic: p.router.Topic(msg),
		Key:   key,
		Value: value,
		Headers: map[string]string{
			HeaderEventType:     msg.EventType,
			HeaderAggregateType: msg.AggregateType,
			HeaderOutboxID:      msg.ID,
		},
	})
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
