package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics: метрики публикации transactional outbox.
type OutboxMetrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	failedRecords    prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики outbox в глобальном registry.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики outbox в заданном registry.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "carrier_pricelist_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by event type and result.",
		}, []string{"event_type", "result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "carrier_pricelist_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		failedRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "carrier_pricelist_outbox_failed_records",
			Help: "Outbox records that exhausted publish attempts.",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "carrier_pricelist_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

// RecordPublish учитывает исход публикации события eventType.
func (m *OutboxMetrics) RecordPublish(eventType, result string) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.publishAttempts.WithLabelValues(eventType, result).Inc()
}

// SetBacklog обновляет размер backlog и возраст самого старого сообщения.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Time) {
	m.pendingRecords.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestPendingAge.Set(0)
		return
	}
	age := time.Since(oldest).Seconds()
	if age < 0 {
		age = 0
	}
	m.oldestPendingAge.Set(age)
}

// SetFailed обновляет число сообщений в статусе failed.
func (m *OutboxMetrics) SetFailed(failed int) {
	m.failedRecords.Set(float64(failed))
}
