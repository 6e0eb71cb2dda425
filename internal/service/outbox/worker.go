// Package outbox доставляет события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/metrics"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 50 * time.Millisecond
	maxRetryDelay       = 5 * time.Second
)

// Результаты публикации для метрик.
const (
	resultSent         = "sent"
	resultRetry        = "retry_error"
	resultFailed       = "failed"
	resultDeadLettered = "dead_lettered"
	resultDLQFailed    = "dlq_failed"
	resultDeferred     = "deferred"
)

// BatchResult: итог одного цикла.
type BatchResult struct {
	Pulled       int
	Sent         int
	DeadLettered int
	// Deferred: сообщения, отложенные до следующего цикла после ошибки
	// публикации более раннего события того же заказа.
	Deferred int
}

// Worker публикует pending-сообщения outbox. События одного агрегата
// публикуются в порядке постановки; после исчерпания попыток сообщение
// уходит в DLQ, а остальные события этого агрегата ждут следующего цикла.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	deadLetter   domain.OutboxPublisher
	logger       *log.Entry
	metrics      *metrics.OutboxMetrics
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryDelay   time.Duration
	now          func() time.Time
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задаёт метрики; по умолчанию используется глобальный registry.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithDeadLetter задаёт паблишер для сообщений, исчерпавших попытки.
func WithDeadLetter(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) {
		w.deadLetter = publisher
	}
}

// WithPollInterval задаёт период опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт число сообщений за цикл.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		if delay < 0 {
			delay = 0
		}
		w.retryDelay = delay
	}
}

// NewWorker создаёт worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   defaultRetryDelay,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.metrics == nil {
		w.metrics = metrics.NewOutboxMetrics()
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		result := w.ProcessOnce(ctx)
		if result.Pulled > 0 {
			w.logger.WithFields(log.Fields{
				"pulled":        result.Pulled,
				"sent":          result.Sent,
				"dead_lettered": result.DeadLettered,
				"deferred":      result.Deferred,
			}).Debug("outbox batch processed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует один батч.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}
	// Отметки и статистика пишутся и после отмены: сообщение уже ушло в брокер.
	bg := context.WithoutCancel(ctx)
	defer w.refreshBacklog(bg)

	batch, err := w.repo.Pending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}
	result.Pulled = len(batch)

	blocked := make(map[string]struct{})
	for _, msg := range batch {
		if ctx.Err() != nil {
			return result
		}

		aggregate := msg.AggregateType + "/" + msg.AggregateID
		if _, ok := blocked[aggregate]; ok && msg.AggregateID != "" {
			result.Deferred++
			w.metrics.RecordPublish(msg.EventType, resultDeferred)
			continue
		}

		if err := w.publish(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return result
			}
			blocked[aggregate] = struct{}{}
			if w.fail(bg, msg, err) {
				result.DeadLettered++
			}
			continue
		}

		result.Sent++
		if err := w.repo.MarkSent(bg, msg.ID); err != nil {
			w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to mark outbox as sent")
		}
	}
	return result
}

// publish делает до maxAttempts попыток с экспоненциальной паузой.
func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = w.publisher.Publish(msg); err == nil {
			w.metrics.RecordPublish(msg.EventType, resultSent)
			return nil
		}
		w.metrics.RecordPublish(msg.EventType, resultRetry)
		if attempt == w.maxAttempts {
			break
		}

		if delay := w.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrOutboxPublish, msg.EventType, w.maxAttempts, err)
}

// fail отправляет сообщение в DLQ и помечает его failed. Возвращает true,
// если сообщение попало в DLQ.
func (w *Worker) fail(ctx context.Context, msg domain.OutboxMessage, publishErr error) bool {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
	})
	entry.WithError(publishErr).Error("outbox publish failed after retries")
	w.metrics.RecordPublish(msg.EventType, resultFailed)

	deadLettered := false
	if w.deadLetter != nil {
		if err := w.sendDeadLetter(msg, publishErr); err != nil {
			entry.WithError(err).Warn("failed to publish to DLQ")
			w.metrics.RecordPublish(msg.EventType, resultDLQFailed)
		} else {
			deadLettered = true
			w.metrics.RecordPublish(msg.EventType, resultDeadLettered)
		}
	}

	if err := w.repo.MarkFailed(ctx, msg.ID, publishErr.Error()); err != nil {
		entry.WithError(err).Warn("failed to mark outbox as failed")
	}
	return deadLettered
}

// deadLetterPayload: исходное событие и причина отказа.
type deadLetterPayload struct {
	OutboxID     string          `json:"outbox_id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	Error        string          `json:"error"`
	Attempts     int             `json:"attempts"`
	DeadLettered time.Time       `json:"dead_lettered_at"`
}

func (w *Worker) sendDeadLetter(msg domain.OutboxMessage, publishErr error) error {
	original := json.RawMessage(msg.Payload)
	if len(original) == 0 {
		original = json.RawMessage("null")
	}
	payload, err := json.Marshal(deadLetterPayload{
		OutboxID:     msg.ID,
		EventType:    msg.EventType,
		Payload:      original,
		Error:        publishErr.Error(),
		Attempts:     w.maxAttempts,
		DeadLettered: w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	dead := msg
	dead.Payload = payload
	if err := w.deadLetter.Publish(dead); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.metrics.SetBacklog(stats.Pending, stats.OldestPending)
	w.metrics.SetFailed(stats.Failed)
}

// retryBackoff: пауза перед попыткой attempt+1, не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryDelay <= 0 || attempt < 1 {
		return 0
	}
	delay := w.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
