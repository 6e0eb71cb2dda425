package grpcsvc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

const (
	defaultListSalesLimit = 100
	maxListSalesLimit     = 1000
)

// SaleService: операции заказа, которые публикует транспорт.
type SaleService interface {
	Create(ctx context.Context, scope domain.Scope, input domain.Sale) (domain.Sale, error)
	Get(ctx context.Context, saleID string) (domain.Sale, error)
	ListByParty(ctx context.Context, partyID string, limit int) ([]domain.Sale, error)
	Shipments(ctx context.Context, saleID string) ([]domain.Shipment, error)
	History(ctx context.Context, saleID string, limit int) ([]domain.HistoryEntry, error)
	SetLines(ctx context.Context, scope domain.Scope, saleID string, lines []domain.SaleLine) (domain.Sale, error)
	Quote(ctx context.Context, scope domain.Scope, saleID string) (domain.Sale, error)
	Confirm(ctx context.Context, scope domain.Scope, saleID string) (domain.Sale, error)
	Process(ctx context.Context, scope domain.Scope, saleID string) (domain.Sale, *domain.Shipment, error)
	Cancel(ctx context.Context, scope domain.Scope, saleID, reason string) (domain.Sale, error)
	Estimate(ctx context.Context, scope domain.Scope, draft domain.Sale) (domain.ShippingCost, error)
	ShipmentCost(ctx context.Context, scope domain.Scope, shipmentID string) (domain.ShippingCost, error)
	Rates(ctx context.Context, scope domain.Scope, carrierID, saleID string) ([]domain.ShippingRate, error)
}

// ShippingCostService реализует gRPC API поверх сервиса заказов.
type ShippingCostService struct {
	sales  SaleService
	logger *log.Entry
}

// NewShippingCostService конструирует сервис с зависимостями.
func NewShippingCostService(sales SaleService, logger *log.Entry) *ShippingCostService {
	if logger == nil {
		logger = log.New().WithField("component", "shipping-cost-grpc")
	}
	return &ShippingCostService{sales: sales, logger: logger}
}

// CreateSale создаёт черновик заказа.
func (s *ShippingCostService) CreateSale(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	draft, err := req.saleDraft()
	if err != nil {
		return nil, err
	}
	sale, err := s.sales.Create(ctx, req.scope(), draft)
	if err != nil {
		return nil, s.toStatus(err, MethodCreateSale)
	}
	return toStruct(map[string]any{"sale": saleFields(sale)})
}

// GetSale возвращает заказ, его отгрузки и историю; history_limit
// ограничивает историю последними записями.
func (s *ShippingCostService) GetSale(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	saleID, err := req.required("sale_id")
	if err != nil {
		return nil, err
	}
	historyLimit, err := req.integer("history_limit")
	if err != nil {
		return nil, err
	}

	sale, err := s.sales.Get(ctx, saleID)
	if err != nil {
		return nil, s.toStatus(err, MethodGetSale)
	}

	shipments, err := s.sales.Shipments(ctx, saleID)
	if err != nil {
		return nil, s.toStatus(err, MethodGetSale)
	}
	shipmentList := make([]any, 0, len(shipments))
	for _, shipment := range shipments {
		shipmentList = append(shipmentList, shipmentFields(shipment))
	}

	history, err := s.sales.History(ctx, saleID, historyLimit)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", saleID).Warn("failed to read sale history")
		history = nil
	}

	return toStruct(map[string]any{
		"sale":      saleFields(sale),
		"shipments": shipmentList,
		"history":   historyFields(history),
	})
}

// ListSales возвращает заказы клиента, новые первыми.
func (s *ShippingCostService) ListSales(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	partyID, err := req.required("party_id")
	if err != nil {
		return nil, err
	}
	limit, err := req.integer("page_size")
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultListSalesLimit
	case limit > maxListSalesLimit:
		limit = maxListSalesLimit
	}

	sales, err := s.sales.ListByParty(ctx, partyID, limit)
	if err != nil {
		return nil, s.toStatus(err, MethodListSales)
	}
	result := make([]any, 0, len(sales))
	for _, sale := range sales {
		result = append(result, saleFields(sale))
	}
	return toStruct(map[string]any{"sales": result})
}

// SetSaleLines заменяет строки черновика.
func (s *ShippingCostService) SetSaleLines(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	saleID, err := req.required("sale_id")
	if err != nil {
		return nil, err
	}
	lines, err := req.lines()
	if err != nil {
		return nil, err
	}

	sale, err := s.sales.SetLines(ctx, req.scope(), saleID, lines)
	if err != nil {
		return nil, s.toStatus(err, MethodSetSaleLines)
	}
	return toStruct(map[string]any{"sale": saleFields(sale)})
}

// QuoteSale переводит заказ в quotation и добавляет строку доставки.
func (s *ShippingCostService) QuoteSale(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.saleTransition(ctx, in, MethodQuoteSale, s.sales.Quote)
}

// ConfirmSale подтверждает заказ.
func (s *ShippingCostService) ConfirmSale(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.saleTransition(ctx, in, MethodConfirmSale, s.sales.Confirm)
}

// ProcessSale создаёт отгрузку и переводит заказ в processing.
func (s *ShippingCostService) ProcessSale(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	saleID, err := req.required("sale_id")
	if err != nil {
		return nil, err
	}

	sale, shipment, err := s.sales.Process(ctx, req.scope(), saleID)
	if err != nil {
		return nil, s.toStatus(err, MethodProcessSale)
	}

	resp := map[string]any{"sale": saleFields(sale)}
	if shipment != nil {
		resp["shipment"] = shipmentFields(*shipment)
	}
	return toStruct(resp)
}

// CancelSale отменяет заказ.
func (s *ShippingCostService) CancelSale(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	saleID, err := req.required("sale_id")
	if err != nil {
		return nil, err
	}

	sale, err := s.sales.Cancel(ctx, req.scope(), saleID, req.str("reason"))
	if err != nil {
		return nil, s.toStatus(err, MethodCancelSale)
	}
	return toStruct(map[string]any{"sale": saleFields(sale)})
}

// EstimateShippingCost считает доставку для несохранённого заказа.
func (s *ShippingCostService) EstimateShippingCost(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	draft, err := req.saleDraft()
	if err != nil {
		return nil, err
	}

	cost, err := s.sales.Estimate(ctx, req.scope(), draft)
	if err != nil {
		return nil, s.toStatus(err, MethodEstimateShippingCost)
	}
	return toStruct(map[string]any{"cost": costFields(cost)})
}

// GetShipmentCost пересчитывает стоимость доставки отгрузки в валюте компании.
func (s *ShippingCostService) GetShipmentCost(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	shipmentID, err := req.required("shipment_id")
	if err != nil {
		return nil, err
	}

	cost, err := s.sales.ShipmentCost(ctx, req.scope(), shipmentID)
	if err != nil {
		return nil, s.toStatus(err, MethodGetShipmentCost)
	}
	return toStruct(map[string]any{
		"shipment_id": shipmentID,
		"cost":        costFields(cost),
	})
}

// GetShippingRates возвращает тарифы перевозчика, опционально для заказа.
func (s *ShippingCostService) GetShippingRates(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	carrierID := strings.TrimSpace(req.str("carrier_id"))
	saleID := strings.TrimSpace(req.str("sale_id"))
	if carrierID == "" && saleID == "" {
		return nil, status.Error(codes.InvalidArgument, "carrier_id or sale_id is required")
	}

	rates, err := s.sales.Rates(ctx, req.scope(), carrierID, saleID)
	if err != nil {
		return nil, s.toStatus(err, MethodGetShippingRates)
	}
	result := make([]any, 0, len(rates))
	for _, rate := range rates {
		result = append(result, rateFields(rate))
	}
	return toStruct(map[string]any{"rates": result})
}

type transitionFunc func(ctx context.Context, scope domain.Scope, saleID string) (domain.Sale, error)

func (s *ShippingCostService) saleTransition(ctx context.Context, in *structpb.Struct, method string, fn transitionFunc) (*structpb.Struct, error) {
	req := newRequest(in)
	saleID, err := req.required("sale_id")
	if err != nil {
		return nil, err
	}

	sale, err := fn(ctx, req.scope(), saleID)
	if err != nil {
		return nil, s.toStatus(err, method)
	}
	return toStruct(map[string]any{"sale": saleFields(sale)})
}

var _ ShippingCostServer = (*ShippingCostService)(nil)
