package app

import (
	"fmt"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/messaging/kafka"
)

// initKafkaProducer подключается к брокерам из CP_KAFKA_BROKERS.
// Пустой список отключает Kafka: возвращается nil, nil.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList, err := parseBrokers(brokers)
	if err != nil {
		return nil, err
	}
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, kafka.WithProducerLogger(logger.WithField("layer", "kafka")))
	if err != nil {
		return nil, fmt.Errorf("connect kafka %v: %w", brokerList, err)
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// parseBrokers разбирает список host:port через запятую, убирая пустые элементы и повторы.
func parseBrokers(brokers string) ([]string, error) {
	var (
		result []string
		seen   = make(map[string]struct{})
	)
	for _, broker := range strings.Split(brokers, ",") {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		host, port, err := net.SplitHostPort(broker)
		if err != nil || host == "" || port == "" {
			return nil, fmt.Errorf("invalid kafka broker %q: expected host:port", broker)
		}
		if _, dup := seen[broker]; dup {
			continue
		}
		seen[broker] = struct{}{}
		result = append(result, broker)
	}
	return result, nil
}
