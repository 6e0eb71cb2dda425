package shipping

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// CostStrategy рассчитывает стоимость доставки для одного метода перевозчика.
type CostStrategy interface {
	Method() domain.CostMethod
	ComputeForOrder(ctx context.Context, scope domain.Scope, carrier domain.Carrier, sale domain.Sale) (domain.ShippingCost, error)
	ComputeForShipment(ctx context.Context, scope domain.Scope, carrier domain.Carrier, shipment domain.Shipment) (domain.ShippingCost, error)
}

// companyCurrency возвращает валюту компании из scope.
func companyCurrency(companies domain.CompanyRepository, scope domain.Scope) (string, error) {
	if scope.CompanyID == "" {
		return "", domain.ErrCompanyNotInContext
	}
	company, err := companies.Get(scope.CompanyID)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrCompanyNotFound, scope.CompanyID, err)
	}
	return company.CurrencyCode, nil
}

// DefaultStrategy берёт прейскурантную цену товара доставки в валюте компании.
type DefaultStrategy struct {
	products  domain.ProductRepository
	companies domain.CompanyRepository
}

// NewDefaultStrategy создаёт стратегию для метода product.
func NewDefaultStrategy(products domain.ProductRepository, companies domain.CompanyRepository) *DefaultStrategy {
	return &DefaultStrategy{products: products, companies: companies}
}

func (s *DefaultStrategy) Method() domain.CostMethod {
	return domain.CostMethodProduct
}

func (s *DefaultStrategy) ComputeForOrder(_ context.Context, scope domain.Scope, carrier domain.Carrier, _ domain.Sale) (domain.ShippingCost, error) {
	return s.listPrice(scope, carrier)
}

func (s *DefaultStrategy) ComputeForShipment(_ context.Context, scope domain.Scope, carrier domain.Carrier, _ domain.Shipment) (domain.ShippingCost, error) {
	return s.listPrice(scope, carrier)
}

func (s *DefaultStrategy) listPrice(scope domain.Scope, carrier domain.Carrier) (domain.ShippingCost, error) {
	currency, err := companyCurrency(s.companies, scope)
	if err != nil {
		return domain.ShippingCost{}, err
	}
	product, err := s.products.Get(carrier.ProductID)
	if err != nil {
		return domain.ShippingCost{}, err
	}
	return domain.ShippingCost{Amount: product.ListPrice, Currency: currency}, nil
}

// PriceListStrategy суммирует цены строк по прайс-листу перевозчика.
type PriceListStrategy struct {
	carriers  domain.CarrierRepository
	companies domain.CompanyRepository
	pricer    domain.ProductPricer
}

// NewPriceListStrategy создаёт стратегию для метода pricelist.
func NewPriceListStrategy(carriers domain.CarrierRepository, companies domain.CompanyRepository, pricer domain.ProductPricer) *PriceListStrategy {
	return &PriceListStrategy{carriers: carriers, companies: companies, pricer: pricer}
}

func (s *PriceListStrategy) Method() domain.CostMethod {
	return domain.CostMethodPriceList
}

// ComputeForOrder считает доставку в валюте заказа.
func (s *PriceListStrategy) ComputeForOrder(ctx context.Context, scope domain.Scope, _ domain.Carrier, sale domain.Sale) (domain.ShippingCost, error) {
	if _, err := companyCurrency(s.companies, scope); err != nil {
		return domain.ShippingCost{}, err
	}
	carrier, err := s.priceListCarrier()
	if err != nil {
		return domain.ShippingCost{}, err
	}
	if sale.PartyID == "" {
		if scope.IgnoreComputation {
			return domain.ZeroCost(sale.CurrencyCode), nil
		}
		return domain.ShippingCost{}, domain.ErrCustomerRequired
	}

	total := decimal.Zero
	for _, line := range sale.ProductLines() {
		if line.Type != domain.LineTypeLine {
			continue
		}
		price, err := s.pricer.UnitPrice(ctx, domain.PriceQuery{
			ProductID:   line.ProductID,
			PriceListID: carrier.PriceListID,
			CustomerID:  sale.PartyID,
			Currency:    sale.CurrencyCode,
			Quantity:    line.Quantity,
		})
		if err != nil {
			return domain.ShippingCost{}, err
		}
		total = total.Add(price.Mul(line.Quantity))
	}

	return domain.ShippingCost{Amount: total, Currency: sale.CurrencyCode}, nil
}

// ComputeForShipment считает доставку в валюте компании, а не заказа.
func (s *PriceListStrategy) ComputeForShipment(ctx context.Context, scope domain.Scope, _ domain.Carrier, shipment domain.Shipment) (domain.ShippingCost, error) {
	currency, err := companyCurrency(s.companies, scope)
	if err != nil {
		return domain.ShippingCost{}, err
	}
	carrier, err := s.priceListCarrier()
	if err != nil {
		return domain.ShippingCost{}, err
	}

	total := decimal.Zero
	for _, move := range shipment.OutgoingMoves() {
		price, err := s.pricer.UnitPrice(ctx, domain.PriceQuery{
			ProductID:   move.ProductID,
			PriceListID: carrier.PriceListID,
			CustomerID:  shipment.CustomerID,
			Currency:    currency,
			Quantity:    move.Quantity,
		})
		if err != nil {
			return domain.ShippingCost{}, err
		}
		total = total.Add(price.Mul(move.Quantity))
	}

	return domain.ShippingCost{Amount: total, Currency: currency}, nil
}

// priceListCarrier находит единственного перевозчика с методом pricelist.
func (s *PriceListStrategy) priceListCarrier() (domain.Carrier, error) {
	found, err := s.carriers.FindByCostMethod(domain.CostMethodPriceList)
	if err != nil {
		return domain.Carrier{}, err
	}
	switch len(found) {
	case 0:
		return domain.Carrier{}, domain.ErrPriceListCarrierNotFound
	case 1:
		return found[0], nil
	default:
		return domain.Carrier{}, fmt.Errorf("%w: %d carriers", domain.ErrPriceListCarrierAmbiguous, len(found))
	}
}

var (
	_ CostStrategy = (*DefaultStrategy)(nil)
	_ CostStrategy = (*PriceListStrategy)(nil)
)
