package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// CarrierLookup ищет перевозчиков по методу расчёта.
type CarrierLookup interface {
	FindByCostMethod(method domain.CostMethod) ([]domain.Carrier, error)
}

// FormulaCache сообщает число скомпилированных формул прайс-листов.
type FormulaCache interface {
	CachedFormulas() int
}

// CatalogChecker проверяет, что справочники пригодны для расчёта доставки.
type CatalogChecker struct {
	carriers CarrierLookup
	formulas FormulaCache
	expected int
}

// NewCatalogChecker создаёт проверку каталога. expected: число уникальных
// формул, которые должны быть в кеше после загрузки каталога.
func NewCatalogChecker(carriers CarrierLookup, formulas FormulaCache, expected int) *CatalogChecker {
	return &CatalogChecker{carriers: carriers, formulas: formulas, expected: expected}
}

// Check требует скомпилированные формулы и не более одного pricelist-перевозчика.
// Без pricelist-перевозчика сервис работает, но только методом product.
func (c *CatalogChecker) Check(_ context.Context) Result {
	if c.carriers == nil || c.formulas == nil {
		return Result{Status: StatusUnhealthy, Message: "catalog is not loaded"}
	}

	found, err := c.carriers.FindByCostMethod(domain.CostMethodPriceList)
	if err != nil {
		return Result{Status: StatusUnhealthy, Message: err.Error()}
	}
	compiled := c.formulas.CachedFormulas()
	details := map[string]any{
		"pricelist_carriers": len(found),
		"formulas_compiled":  compiled,
		"formulas_expected":  c.expected,
	}

	switch {
	case compiled < c.expected:
		return Result{Status: StatusUnhealthy, Message: fmt.Sprintf("%d of %d formulas compiled", compiled, c.expected), Details: details}
	case len(found) > 1:
		return Result{Status: StatusUnhealthy, Message: domain.ErrPriceListCarrierAmbiguous.Error(), Details: details}
	case len(found) == 0:
		return Result{Status: StatusDegraded, Message: domain.ErrPriceListCarrierNotFound.Error(), Details: details}
	}
	details["pricelist_carrier"] = found[0].ID
	return Result{Status: StatusHealthy, Details: details}
}

// OutboxStatsSource отдаёт состояние backlog outbox.
type OutboxStatsSource interface {
	Stats(ctx context.Context) (domain.OutboxStats, error)
}

// OutboxChecker следит за тем, что события заказов уходят в брокер.
type OutboxChecker struct {
	source     OutboxStatsSource
	maxPending int
	maxAge     time.Duration
	now        func() time.Time
}

// NewOutboxChecker создаёт проверку backlog. Нулевые пороги не проверяются.
func NewOutboxChecker(source OutboxStatsSource, maxPending int, maxAge time.Duration) *OutboxChecker {
	return &OutboxChecker{source: source, maxPending: maxPending, maxAge: maxAge, now: time.Now}
}

// Check понижает статус до degraded, если backlog превысил пороги.
func (c *OutboxChecker) Check(ctx context.Context) Result {
	stats, err := c.source.Stats(ctx)
	if err != nil {
		return Result{Status: StatusUnhealthy, Message: err.Error()}
	}

	var age time.Duration
	if stats.Pending > 0 && !stats.OldestPending.IsZero() {
		age = c.now().Sub(stats.OldestPending)
	}
	details := map[string]any{
		"pending":            stats.Pending,
		"failed":             stats.Failed,
		"oldest_age_seconds": int64(age.Seconds()),
	}

	switch {
	case c.maxPending > 0 && stats.Pending > c.maxPending:
		return Result{Status: StatusDegraded, Message: fmt.Sprintf("%d pending events", stats.Pending), Details: details}
	case c.maxAge > 0 && age > c.maxAge:
		return Result{Status: StatusDegraded, Message: "oldest pending event is " + age.Truncate(time.Second).String() + " old", Details: details}
	}
	return Result{Status: StatusHealthy, Details: details}
}
