package sale

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/metrics"
)

const aggregateType = "sale"

// Типы событий outbox и истории заказа.
const (
	EventSaleCreated          = "SaleCreated"
	EventSaleLinesChanged     = "SaleLinesChanged"
	EventSaleStateChanged     = "SaleStateChanged"
	EventShippingLineReplaced = "ShippingLineReplaced"
	EventQuoteFailed          = "SaleQuoteFailed"
	EventShipmentCreated      = "ShipmentCreated"
)

// OutboxRoutes раскладывает события заказа по topic: жизненный цикл заказа
// отдельно от событий доставки и отгрузки.
func OutboxRoutes() kafka.Routes {
	return kafka.Routes{
		ByEventType: map[string]string{
			EventSaleCreated:          kafka.TopicSaleOutbox,
			EventSaleLinesChanged:     kafka.TopicSaleOutbox,
			EventSaleStateChanged:     kafka.TopicSaleOutbox,
			EventShippingLineReplaced: kafka.TopicShippingEvents,
			EventQuoteFailed:          kafka.TopicShippingEvents,
			EventShipmentCreated:      kafka.TopicShippingEvents,
		},
		Fallback: kafka.TopicOutboxEvents,
	}
}

// ShippingCalculator: расчёт доставки, которым пользуется сервис заказов.
type ShippingCalculator interface {
	ComputeForOrder(ctx context.Context, scope domain.Scope, sale domain.Sale) (domain.ShippingCost, error)
	ComputeForShipment(ctx context.Context, scope domain.Scope, shipment domain.Shipment) (domain.ShippingCost, error)
	ApplyToOrder(ctx context.Context, scope domain.Scope, sale domain.Sale, writer domain.SaleLineWriter) (bool, error)
	Rates(ctx context.Context, scope domain.Scope, carrierID string, sale *domain.Sale) ([]domain.ShippingRate, error)
}

// EventPublisher публикует события заказа напрямую в брокер (опционально).
type EventPublisher interface {
	PublishSaleEvent(event *kafka.SaleEvent) error
}

// Dependencies: хранилища и справочники сервиса.
type Dependencies struct {
	Sales      domain.SaleRepository
	Shipments  domain.ShipmentRepository
	Outbox     domain.OutboxRepository
	History    domain.SaleHistory
	Products   domain.ProductRepository
	Currencies domain.CurrencyRepository
	Calculator ShippingCalculator
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает метрики переходов и событий.
func WithMetrics(m *metrics.ShippingMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEventPublisher включает прямую публикацию событий в Kafka.
func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service реализует workflow заказа draft → quotation → confirmed → processing
// и хук расчёта доставки при переходе в quotation.
type Service struct {
	sales      domain.SaleRepository
	shipments  domain.ShipmentRepository
	outbox     domain.OutboxRepository
	history    domain.SaleHistory
	products   domain.ProductRepository
	currencies domain.CurrencyRepository
	calculator ShippingCalculator
	publisher  EventPublisher
	logger     *log.Entry
	metrics    *metrics.ShippingMetrics
	now        func() time.Time
}

// NewService создаёт сервис заказов.
func NewService(deps Dependencies, opts ...Option) *Service {
	s := &Service{
		sales:      deps.Sales,
		shipments:  deps.Shipments,
		outbox:     deps.Outbox,
		history:    deps.History,
		products:   deps.Products,
		currencies: deps.Currencies,
		calculator: deps.Calculator,
		logger:     log.New().WithField("component", "sale-service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create сохраняет новый черновик заказа.
func (s *Service) Create(ctx context.Context, scope domain.Scope, input domain.Sale) (domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sale{}, err
	}

	sale := input
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CompanyID == "" {
		sale.CompanyID = scope.CompanyID
	}
	if sale.Reference == "" {
		sale.Reference = "SO-" + sale.ID[:min(8, len(sale.ID))]
	}
	sale.State = domain.SaleStateDraft
	sale.Version = 0
	now := s.now()
	sale.CreatedAt = now
	sale.UpdatedAt = now

	if sale.CompanyID == "" {
		return domain.Sale{}, domain.ErrCompanyRequired
	}
	lines, err := s.normalizeLines(sale.CurrencyCode, input.Lines, 0)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Lines = lines
	sale.SortLines()
	if errs := sale.ValidateInvariants(); len(errs) > 0 {
		return domain.Sale{}, errs[0]
	}
	sale.ShippingEstimate = domain.ZeroCost(sale.CurrencyCode)
	s.refreshEstimate(ctx, scope, &sale)

	if err := s.sales.Create(sale); err != nil {
		return domain.Sale{}, err
	}

	s.logger.WithFields(log.Fields{
		"sale_id":    sale.ID,
		"party_id":   sale.PartyID,
		"carrier_id": sale.CarrierID,
	}).Info("sale created")
	s.emitEvent(ctx, &sale, EventSaleCreated, map[string]any{
		"state":       sale.State,
		"lines_count": len(sale.Lines),
	})
	s.publishSaleEvent(kafka.EventTypeSaleCreated, sale, nil)
	return sale, nil
}

// Get возвращает заказ.
func (s *Service) Get(_ context.Context, saleID string) (domain.Sale, error) {
	return s.sales.Get(saleID)
}

// ListByParty возвращает последние заказы клиента.
func (s *Service) ListByParty(_ context.Context, partyID string, limit int) ([]domain.Sale, error) {
	return s.sales.ListByParty(partyID, limit)
}

// Shipments возвращает отгрузки заказа.
func (s *Service) Shipments(_ context.Context, saleID string) ([]domain.Shipment, error) {
	if _, err := s.sales.Get(saleID); err != nil {
		return nil, err
	}
	return s.shipments.ListBySale(saleID)
}

// History возвращает limit последних записей истории заказа; limit<=0 возвращает все.
func (s *Service) History(ctx context.Context, saleID string, limit int) ([]domain.HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	if _, err := s.sales.Get(saleID); err != nil {
		return nil, err
	}
	return s.history.History(ctx, saleID, limit)
}

// SetLines заменяет товарные строки черновика. Строки доставки сохраняются.
// Если scope не подавляет пересчёт, обновляется ShippingEstimate.
func (s *Service) SetLines(ctx context.Context, scope domain.Scope, saleID string, lines []domain.SaleLine) (domain.Sale, error) {
	sale, err := s.mutate(saleID, func(sale *domain.Sale) error {
		if sale.State != domain.SaleStateDraft {
			return fmt.Errorf("%w: state %s", domain.ErrSaleNotEditable, sale.State)
		}
		normalized, err := s.normalizeLines(sale.CurrencyCode, lines, 0)
		if err != nil {
			return err
		}
		updated := append(normalized, sale.ShippingLines()...)
		sale.Lines = updated
		sale.SortLines()
		if errs := sale.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}
		s.refreshEstimate(ctx, scope, sale)
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.emitEvent(ctx, &sale, EventSaleLinesChanged, map[string]any{
		"lines_count":       len(sale.Lines),
		"shipping_estimate": sale.ShippingEstimate.Amount.String(),
	})
	return sale, nil
}

// ReplaceShippingLine удаляет строки доставки заказа и добавляет line.
// Пересчёт доставки при этом всегда подавлен.
func (s *Service) ReplaceShippingLine(ctx context.Context, scope domain.Scope, saleID string, line domain.SaleLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scope = scope.WithIgnoreComputation()

	sale, err := s.mutate(saleID, func(sale *domain.Sale) error {
		if sale.State != domain.SaleStateDraft && sale.State != domain.SaleStateQuotation {
			return fmt.Errorf("%w: state %s", domain.ErrSaleNotEditable, sale.State)
		}
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		kept := make([]domain.SaleLine, 0, len(sale.Lines)+1)
		for _, existing := range sale.Lines {
			if !existing.IsShippingCost() {
				kept = append(kept, existing)
			}
		}
		sale.Lines = append(kept, line)
		sale.SortLines()
		return nil
	})
	if err != nil {
		return err
	}

	s.emitEvent(ctx, &sale, EventShippingLineReplaced, map[string]any{
		"product_id":         line.ProductID,
		"amount":             line.Amount.String(),
		"currency":           sale.CurrencyCode,
		"ignore_computation": scope.IgnoreComputation,
	})
	return nil
}

// Draft возвращает коммерческое предложение в черновик.
func (s *Service) Draft(ctx context.Context, scope domain.Scope, saleID string) (domain.Sale, error) {
	return s.transition(ctx, saleID, domain.SaleStateDraft, "")
}

// Quote переводит заказ в quotation и добавляет строку доставки.
// Повторный вызов для quotation только пересчитывает строку.
// Если расчёт доставки не удался, заказ возвращается в draft.
func (s *Service) Quote(ctx context.Context, scope domain.Scope, saleID string) (domain.Sale, error) {
	current, err := s.sales.Get(saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if current.State != domain.SaleStateQuotation {
		current, err = s.transition(ctx, saleID, domain.SaleStateQuotation, "")
		if err != nil {
			return domain.Sale{}, err
		}
	}

	applied, err := s.calculator.ApplyToOrder(ctx, scope, current, s)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", saleID).Warn("shipping hook failed, rolling back quotation")
		if _, rbErr := s.transition(ctx, saleID, domain.SaleStateDraft, err.Error()); rbErr != nil {
			s.logger.WithError(rbErr).WithField("sale_id", saleID).Error("quotation rollback failed")
		}
		if rolledBack, getErr := s.sales.Get(saleID); getErr == nil {
			s.emitEvent(ctx, &rolledBack, EventQuoteFailed, map[string]any{"reason": err.Error()})
		}
		return domain.Sale{}, err
	}

	sale, err := s.sales.Get(saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if applied {
		var amount string
		if lines := sale.ShippingLines(); len(lines) > 0 {
			amount = lines[0].Amount.String()
		}
		s.publishSaleEvent(kafka.EventTypeShippingApplied, sale, map[string]any{
			"amount":   amount,
			"currency": sale.CurrencyCode,
		})
	}
	return sale, nil
}

// Confirm подтверждает коммерческое предложение.
func (s *Service) Confirm(ctx context.Context, scope domain.Scope, saleID string) (domain.Sale, error) {
	return s.transition(ctx, saleID, domain.SaleStateConfirmed, "")
}

// Process создаёт исходящую отгрузку из складских строк и переводит заказ в processing.
// Стоимость отгрузки считается в валюте компании.
func (s *Service) Process(ctx context.Context, scope domain.Scope, saleID string) (domain.Sale, *domain.Shipment, error) {
	current, err := s.sales.Get(saleID)
	if err != nil {
		return domain.Sale{}, nil, err
	}
	if !canTransition(current.State, domain.SaleStateProcessing) {
		return domain.Sale{}, nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.State, domain.SaleStateProcessing)
	}

	shipment, err := s.buildShipment(ctx, scope, current)
	if err != nil {
		return domain.Sale{}, nil, err
	}

	sale, err := s.transition(ctx, saleID, domain.SaleStateProcessing, "")
	if err != nil {
		return domain.Sale{}, nil, err
	}
	if shipment == nil {
		return sale, nil, nil
	}

	if err := s.shipments.Create(*shipment); err != nil {
		s.logger.WithError(err).WithField("sale_id", saleID).Error("failed to store shipment")
		return domain.Sale{}, nil, err
	}
	s.emitEvent(ctx, &sale, EventShipmentCreated, map[string]any{
		"shipment_id": shipment.ID,
		"cost":        shipment.Cost.String(),
		"currency":    shipment.CostCurrency,
	})
	s.publishSaleEvent(kafka.EventTypeShipmentCreated, sale, map[string]any{
		"shipment_id": shipment.ID,
		"cost":        shipment.Cost.String(),
		"currency":    shipment.CostCurrency,
	})
	return sale, shipment, nil
}

// Cancel отменяет заказ, который ещё не подтверждён.
func (s *Service) Cancel(ctx context.Context, scope domain.Scope, saleID, reason string) (domain.Sale, error) {
	current, err := s.sales.Get(saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if current.State == domain.SaleStateCanceled {
		s.logger.WithField("sale_id", saleID).Debug("sale already canceled")
		return current, nil
	}
	return s.transition(ctx, saleID, domain.SaleStateCanceled, reason)
}

// ShipmentCost пересчитывает стоимость доставки сохранённой отгрузки.
func (s *Service) ShipmentCost(ctx context.Context, scope domain.Scope, shipmentID string) (domain.ShippingCost, error) {
	shipment, err := s.shipments.Get(shipmentID)
	if err != nil {
		return domain.ShippingCost{}, err
	}
	return s.calculator.ComputeForShipment(ctx, scope, shipment)
}

// Rates возвращает тарифы перевозчика. При пустом saleID тариф строится
// без заказа, а пустой carrierID заменяется перевозчиком заказа.
func (s *Service) Rates(ctx context.Context, scope domain.Scope, carrierID, saleID string) ([]domain.ShippingRate, error) {
	if saleID == "" {
		return s.calculator.Rates(ctx, scope, carrierID, nil)
	}
	sale, err := s.sales.Get(saleID)
	if err != nil {
		return nil, err
	}
	if carrierID == "" {
		carrierID = sale.CarrierID
	}
	return s.calculator.Rates(ctx, scope, carrierID, &sale)
}

// Estimate считает доставку для несохранённого заказа (например, корзины).
func (s *Service) Estimate(ctx context.Context, scope domain.Scope, draft domain.Sale) (domain.ShippingCost, error) {
	lines, err := s.normalizeLines(draft.CurrencyCode, draft.Lines, 0)
	if err != nil {
		return domain.ShippingCost{}, err
	}
	draft.Lines = lines
	if draft.CompanyID == "" {
		draft.CompanyID = scope.CompanyID
	}
	return s.calculator.ComputeForOrder(ctx, scope, draft)
}

func (s *Service) buildShipment(ctx context.Context, scope domain.Scope, sale domain.Sale) (*domain.Shipment, error) {
	var moves []domain.Move
	for _, line := range sale.ProductLines() {
		if line.Type != domain.LineTypeLine || !line.Quantity.IsPositive() {
			continue
		}
		product, err := s.products.Get(line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", line.ProductID, err)
		}
		if !product.Stockable() {
			continue
		}
		moves = append(moves, domain.Move{
			ID:        uuid.NewString(),
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	if len(moves) == 0 {
		return nil, nil
	}

	shipment := &domain.Shipment{
		ID:         uuid.NewString(),
		SaleID:     sale.ID,
		CompanyID:  sale.CompanyID,
		CustomerID: sale.PartyID,
		CarrierID:  sale.CarrierID,
		Moves:      moves,
		Cost:       decimal.Zero,
		State:      domain.ShipmentStateWaiting,
		CreatedAt:  s.now(),
	}
	if shipment.CarrierID == "" {
		return shipment, nil
	}

	cost, err := s.calculator.ComputeForShipment(ctx, scope, *shipment)
	if err != nil {
		return nil, err
	}
	shipment.Cost = cost.Amount
	shipment.CostCurrency = cost.Currency
	return shipment, nil
}

// normalizeLines проставляет ID, тип, порядок и сумму строк.
func (s *Service) normalizeLines(currencyCode string, lines []domain.SaleLine, offset int) ([]domain.SaleLine, error) {
	if currencyCode == "" {
		return nil, domain.ErrCurrencyRequired
	}
	cur, err := s.currencies.Get(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("currency %q: %w", currencyCode, err)
	}

	result := make([]domain.SaleLine, 0, len(lines))
	for i, line := range lines {
		if line.IsShippingCost() {
			continue
		}
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		switch {
		case line.Type == "":
			line.Type = domain.LineTypeLine
		case !line.Type.Valid():
			return nil, fmt.Errorf("%w: %q", domain.ErrLineTypeInvalid, line.Type)
		}
		if line.Sequence == 0 {
			line.Sequence = (offset + i + 1) * 10
		}
		if line.Type == domain.LineTypeLine && line.ProductID != "" {
			product, err := s.products.Get(line.ProductID)
			if err != nil {
				return nil, fmt.Errorf("product %q: %w", line.ProductID, err)
			}
			if line.Description == "" {
				line.Description = product.Name
			}
			if line.Unit == "" {
				line.Unit = product.SaleUOM
			}
		}
		if line.Type == domain.LineTypeLine {
			line.Amount = cur.Round(line.Quantity.Mul(line.UnitPrice))
		} else {
			line.Quantity = decimal.Zero
			line.UnitPrice = decimal.Zero
			line.Amount = decimal.Zero
		}
		result = append(result, line)
	}
	return result, nil
}

func (s *Service) refreshEstimate(ctx context.Context, scope domain.Scope, sale *domain.Sale) {
	if scope.IgnoreComputation || sale.CarrierID == "" {
		return
	}
	cost, err := s.calculator.ComputeForOrder(ctx, scope, *sale)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", sale.ID).Warn("shipping estimate failed")
		sale.ShippingEstimate = domain.ZeroCost(sale.CurrencyCode)
		return
	}
	sale.ShippingEstimate = cost
}

var _ domain.SaleLineWriter = (*Service)(nil)
