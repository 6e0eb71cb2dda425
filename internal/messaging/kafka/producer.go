package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/version"
)

// ErrNilSaleEvent: PublishSaleEvent вызван без события.
var ErrNilSaleEvent = errors.New("sale event is nil")

// Record: одна запись Kafka. Key определяет партицию.
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

func (r Record) message(ts time.Time) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     r.Topic,
		Key:       sarama.StringEncoder(r.Key),
		Value:     sarama.ByteEncoder(r.Value),
		Timestamp: ts,
	}
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(name), Value: []byte(r.Headers[name])})
	}
	return msg
}

// Producer публикует записи через синхронный sarama producer.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// ProducerOption настраивает Producer и конфигурацию sarama.
type ProducerOption func(*producerSettings)

type producerSettings struct {
	clientID string
	retries  int
	logger   *log.Entry
}

// WithClientID переопределяет client.id, по умолчанию это имя и версия сервиса.
func WithClientID(id string) ProducerOption {
	return func(s *producerSettings) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithSendRetries задаёт число повторов отправки внутри sarama.
func WithSendRetries(n int) ProducerOption {
	return func(s *producerSettings) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithProducerLogger задаёт логгер.
func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(s *producerSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func newProducerSettings(opts []ProducerOption) producerSettings {
	s := producerSettings{clientID: version.ClientID(), retries: 5}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "kafka-producer")
	}
	return s
}

// saramaConfig: идемпотентный producer с подтверждением от всех реплик.
func (s producerSettings) saramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = s.clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = s.retries
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	settings := newProducerSettings(opts)
	producer, err := sarama.NewSyncProducer(brokers, settings.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{producer: producer, logger: settings.logger, now: time.Now}, nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer, например mocks.SyncProducer.
func NewProducerFromSync(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	settings := newProducerSettings([]ProducerOption{WithProducerLogger(logger)})
	return &Producer{producer: producer, logger: settings.logger, now: time.Now}
}

// Send отправляет запись и ждёт подтверждения брокера.
func (p *Producer) Send(rec Record) error {
	entry := p.logger.WithFields(log.Fields{"topic": rec.Topic, "key": rec.Key})

	partition, offset, err := p.producer.SendMessage(rec.message(p.now()))
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", rec.Topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka record sent")
	return nil
}

// PublishSaleEvent отправляет событие заказа в TopicSaleEvents с ключом sale_id.
func (p *Producer) PublishSaleEvent(event *SaleEvent) error {
	if event == nil {
		return ErrNilSaleEvent
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventType, err)
	}
	return p.Send(Record{
		Topic:   TopicSaleEvents,
		Key:     event.SaleID,
		Value:   value,
		Headers: map[string]string{HeaderEventType: string(event.EventType)},
	})
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
