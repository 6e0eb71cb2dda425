package app

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/metrics"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/pricelist"
	grpcsvc "github.com/vladislavdragonenkov/carrier-pricelist/internal/service/grpc"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/service/outbox"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/service/sale"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает gRPC API, HTTP-метрики и outbox worker и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if deps.closeFn != nil {
		defer func() {
			if closeErr := deps.closeFn(); closeErr != nil {
				logger.WithError(closeErr).Warn("failed to close storage")
			}
		}()
	}

	engine, err := pricelist.NewEngine()
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.CatalogPath, engine)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"path":     cfg.CatalogPath,
		"carriers": len(cat.Carriers),
		"products": len(cat.Products),
	}).Info("catalog loaded")

	// Kafka опциональна: без неё события копятся в outbox.
	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka disabled, events stay in outbox")
		kafkaProducer = nil
	}
	defer closeKafkaProducer(kafkaProducer, logger)

	saleService := newSaleService(cat, engine, deps, kafkaProducer, logger)

	outboxCancel, outboxDone := startOutboxWorker(ctx, cfg, deps.outboxRepo, kafkaProducer, logger)
	defer shutdownOutboxWorker(outboxCancel, outboxDone, logger)

	grpcLogger := logger.WithField("layer", "grpc")
	api := newAPIServer(grpcsvc.NewShippingCostService(saleService, grpcLogger), grpcLogger)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, newHealthRegistry(cfg, cat, engine, deps))
	defer shutdownHTTP(metricsSrv, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	return api.serve(ctx, lis)
}

// startOutboxWorker запускает публикацию outbox в Kafka; без producer worker не нужен.
func startOutboxWorker(
	ctx context.Context,
	cfg Config,
	repo domain.OutboxRepository,
	producer *kafka.Producer,
	logger *log.Entry,
) (context.CancelFunc, <-chan struct{}) {
	if producer == nil || repo == nil {
		logger.Info("outbox worker disabled: kafka is not configured")
		return nil, nil
	}

	worker := outbox.NewWorker(
		repo,
		kafka.NewOutboxPublisher(producer, sale.OutboxRoutes()),
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithDeadLetter(kafka.NewOutboxPublisher(producer, kafka.StaticTopic(kafka.TopicDeadLetterQueue))),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	logger.WithField("poll_interval", cfg.OutboxPollInterval).Info("outbox worker started")
	return cancel, done
}

// shutdownOutboxWorker останавливает worker и ждёт завершения текущего цикла.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("outbox worker stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}
