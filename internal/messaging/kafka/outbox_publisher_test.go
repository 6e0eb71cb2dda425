package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

func newMockedProducer(t *testing.T) (*mocks.SyncProducer, *Producer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	return mockProducer, NewProducerFromSync(mockProducer, log.WithField("component", "kafka-outbox-publisher-test"))
}

func headerMap(msg *sarama.ProducerMessage) map[string]string {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	return headers
}

func TestRoutes_Topic(t *testing.T) {
	routes := Routes{
		ByEventType: map[string]string{
			"SaleStateChanged":     TopicSaleOutbox,
			"ShippingLineReplaced": TopicShippingEvents,
			"Blank":                "",
		},
		Fallback: "custom.fallback",
	}

	assert.Equal(t, TopicSaleOutbox, routes.Topic(domain.OutboxMessage{EventType: "SaleStateChanged"}))
	assert.Equal(t, TopicShippingEvents, routes.Topic(domain.OutboxMessage{EventType: "ShippingLineReplaced"}))
	assert.Equal(t, "custom.fallback", routes.Topic(domain.OutboxMessage{EventType: "Unknown"}))
	assert.Equal(t, "custom.fallback", routes.Topic(domain.OutboxMessage{EventType: "Blank"}))
	assert.Equal(t, TopicOutboxEvents, Routes{}.Topic(domain.OutboxMessage{EventType: "Unknown"}))
	assert.Equal(t, TopicDeadLetterQueue, StaticTopic(TopicDeadLetterQueue).Topic(domain.OutboxMessage{}))
}

func TestOutboxPublisher_RoutesAndKeysBySale(t *testing.T) {
	mockProducer, producer := newMockedProducer(t)
	publishedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicShippingEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "sale-123" {
			return fmt.Errorf("unexpected key %s", key)
		}
		headers := headerMap(msg)
		if headers[HeaderEventType] != "ShippingLineReplaced" || headers[HeaderAggregateType] != "sale" || headers[HeaderOutboxID] != "outbox-1" {
			return fmt.Errorf("unexpected headers %v", headers)
		}

		value, _ := msg.Value.Encode()
		var envelope outboxEnvelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if !envelope.PublishedAt.Equal(publishedAt) || string(envelope.Payload) != `{"amount":"20"}` {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer, Routes{
		ByEventType: map[string]string{"ShippingLineReplaced": TopicShippingEvents},
	})
	publisher.now = func() time.Time { return publishedAt }

	require.NoError(t, publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "sale",
		AggregateID:   "sale-123",
		EventType:     "ShippingLineReplaced",
		Payload:       []byte(`{"amount":"20"}`),
	}))
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_EmptyPayloadAndAggregate(t *testing.T) {
	mockProducer, producer := newMockedProducer(t)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "outbox-2" {
			return fmt.Errorf("expected outbox id as key, got %s", key)
		}
		value, _ := msg.Value.Encode()
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if string(envelope["payload"]) != "null" {
			return fmt.Errorf("expected null payload, got %s", envelope["payload"])
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer, nil)
	require.NoError(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-2", EventType: "SaleCreated"}))
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	mockProducer, producer := newMockedProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(producer, StaticTopic(TopicDeadLetterQueue))
	err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3", AggregateID: "sale-234", EventType: "SaleStateChanged"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_NilProducer(t *testing.T) {
	err := NewOutboxPublisher(nil, nil).Publish(domain.OutboxMessage{ID: "outbox-4"})
	require.ErrorIs(t, err, ErrPublisherNotInitialized)

	var publisher *OutboxPublisher
	require.ErrorIs(t, publisher.Publish(domain.OutboxMessage{}), ErrPublisherNotInitialized)
}
