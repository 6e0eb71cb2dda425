package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuery: параметры поиска цены товара по прайс-листу.
type PriceQuery struct {
	ProductID   string
	PriceListID string
	CustomerID  string
	Currency    string
	Quantity    decimal.Decimal
}

// ProductPricer возвращает цену единицы товара по прайс-листу.
type ProductPricer interface {
	UnitPrice(ctx context.Context, query PriceQuery) (decimal.Decimal, error)
}

// CurrencyConverter пересчитывает суммы между валютами.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
	// Round округляет сумму до точности валюты code.
	Round(ctx context.Context, amount decimal.Decimal, code string) (decimal.Decimal, error)
}

// SaleLineWriter: операция записи агрегата заказа, через которую добавляется строка доставки.
type SaleLineWriter interface {
	// ReplaceShippingLine удаляет все строки доставки и добавляет line.
	ReplaceShippingLine(ctx context.Context, scope Scope, saleID string, line SaleLine) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// Pending возвращает до limit сообщений в порядке постановки.
	Pending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	// MarkFailed выводит сообщение из очереди и сохраняет причину отказа.
	MarkFailed(ctx context.Context, id, reason string) error
}

// SaleHistory хранит историю заказа в порядке записи.
type SaleHistory interface {
	// Record присваивает записи Seq и, если Occurred пуст, текущее время.
	Record(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
	// History возвращает limit последних записей заказа по возрастанию Seq;
	// limit<=0 возвращает всю историю.
	History(ctx context.Context, saleID string, limit int) ([]HistoryEntry, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// Заполняются хранилищем.
	Attempts  int
	CreatedAt time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	Pending       int
	Failed        int
	OldestPending time.Time
}
