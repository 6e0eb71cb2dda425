package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения метки result для расчётов доставки.
const (
	ResultOK    = "ok"
	ResultZero  = "zero"
	ResultError = "error"
)

// ShippingMetrics содержит метрики расчёта доставки и переходов заказа.
type ShippingMetrics struct {
	// Расчёты стоимости
	computations    *prometheus.CounterVec
	computeDuration *prometheus.HistogramVec

	// Строки доставки
	linesApplied prometheus.Counter
	linesSkipped *prometheus.CounterVec
	conversions  prometheus.Counter

	// Workflow заказа
	saleTransitions *prometheus.CounterVec
	historyEntries  prometheus.Counter
	outboxEvents    prometheus.Counter
}

// NewShippingMetrics создаёт метрики в глобальном registry.
func NewShippingMetrics() *ShippingMetrics {
	return NewShippingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShippingMetricsWithRegisterer создаёт метрики в заданном registry (удобно для тестов).
func NewShippingMetricsWithRegisterer(registerer prometheus.Registerer) *ShippingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShippingMetrics{
		computations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "carrier_pricelist_shipping_computations_total",
			Help: "Total number of shipping cost computations by target, cost method and result",
		}, []string{"target", "method", "result"}),
		computeDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "carrier_pricelist_shipping_computation_duration_seconds",
			Help:    "Duration of shipping cost computations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"target"}),
		linesApplied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "carrier_pricelist_shipping_lines_applied_total",
			Help: "Total number of shipping lines written to sales",
		}),
		linesSkipped: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "carrier_pricelist_shipping_lines_skipped_total",
			Help: "Total number of quote hooks that did not write a shipping line",
		}, []string{"reason"}),
		conversions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "carrier_pricelist_currency_conversions_total",
			Help: "Total number of shipping cost currency conversions",
		}),
		saleTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "carrier_pricelist_sale_transitions_total",
			Help: "Total number of sale state transitions by target state",
		}, []string{"state"}),
		historyEntries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "carrier_pricelist_sale_history_entries_total",
			Help: "Total number of sale history entries recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "carrier_pricelist_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordComputation учитывает один расчёт стоимости доставки.
func (m *ShippingMetrics) RecordComputation(target, method, result string, duration time.Duration) {
	m.computations.WithLabelValues(target, method, result).Inc()
	m.computeDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordLineApplied увеличивает счётчик записанных строк доставки.
func (m *ShippingMetrics) RecordLineApplied() {
	m.linesApplied.Inc()
}

// RecordLineSkipped фиксирует, почему строка доставки не была добавлена.
func (m *ShippingMetrics) RecordLineSkipped(reason string) {
	m.linesSkipped.WithLabelValues(reason).Inc()
}

// RecordConversion увеличивает счётчик валютных пересчётов.
func (m *ShippingMetrics) RecordConversion() {
	m.conversions.Inc()
}

// RecordSaleTransition учитывает переход заказа в новое состояние.
func (m *ShippingMetrics) RecordSaleTransition(state string) {
	m.saleTransitions.WithLabelValues(state).Inc()
}

// RecordHistoryEntry увеличивает счётчик записей истории заказов.
func (m *ShippingMetrics) RecordHistoryEntry() {
	m.historyEntries.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *ShippingMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
