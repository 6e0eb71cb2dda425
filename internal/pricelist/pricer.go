package pricelist

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// UnitPriceDigits: точность цены за единицу.
const UnitPriceDigits = 4

// Pricer реализует domain.ProductPricer поверх справочников и CEL-движка.
type Pricer struct {
	engine     *Engine
	products   domain.ProductRepository
	priceLists domain.PriceListRepository
	companies  domain.CompanyRepository
	converter  domain.CurrencyConverter
}

// NewPricer собирает сервис цен.
func NewPricer(
	engine *Engine,
	products domain.ProductRepository,
	priceLists domain.PriceListRepository,
	companies domain.CompanyRepository,
	converter domain.CurrencyConverter,
) *Pricer {
	return &Pricer{
		engine:     engine,
		products:   products,
		priceLists: priceLists,
		companies:  companies,
		converter:  converter,
	}
}

// UnitPrice возвращает цену единицы товара по прайс-листу в запрошенной валюте.
//
// Базовая цена равна прайсовой цене товара, пересчитанной из валюты компании
// прайс-листа. Применяется первое подходящее правило; если ни одно не подошло,
// возвращается базовая цена.
func (p *Pricer) UnitPrice(ctx context.Context, q domain.PriceQuery) (decimal.Decimal, error) {
	product, err := p.products.Get(q.ProductID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("product %q: %w", q.ProductID, err)
	}
	if q.PriceListID == "" {
		return decimal.Zero, fmt.Errorf("product %q: %w", q.ProductID, domain.ErrPriceListNotFound)
	}
	list, err := p.priceLists.Get(q.PriceListID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price list %q: %w", q.PriceListID, err)
	}
	company, err := p.companies.Get(list.CompanyID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price list %q company %q: %w", list.ID, list.CompanyID, err)
	}

	unitPrice, err := p.inCurrency(ctx, product.ListPrice, company.CurrencyCode, q.Currency)
	if err != nil {
		return decimal.Zero, err
	}
	costPrice, err := p.inCurrency(ctx, product.CostPrice, company.CurrencyCode, q.Currency)
	if err != nil {
		return decimal.Zero, err
	}

	lines := make([]domain.PriceListLine, len(list.Lines))
	copy(lines, list.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Sequence < lines[j].Sequence })

	for _, line := range lines {
		if !line.Matches(product.ID, q.Quantity) {
			continue
		}
		price, err := p.engine.Evaluate(line.Formula, Inputs{
			UnitPrice: unitPrice,
			CostPrice: costPrice,
			Quantity:  q.Quantity,
			Customer:  q.CustomerID,
		})
		if err != nil {
			return decimal.Zero, fmt.Errorf("price list %q: %w", list.ID, err)
		}
		return price.Round(UnitPriceDigits), nil
	}

	return unitPrice.Round(UnitPriceDigits), nil
}

func (p *Pricer) inCurrency(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if to == "" || from == to {
		return amount, nil
	}
	return p.converter.Convert(ctx, amount, from, to)
}

var _ domain.ProductPricer = (*Pricer)(nil)
