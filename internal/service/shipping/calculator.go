package shipping

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/metrics"
)

const (
	targetOrder    = "order"
	targetShipment = "shipment"

	skipNoCarrier    = "no_carrier"
	skipNotPriceList = "not_pricelist"
	skipZeroCost     = "zero_cost"
)

// Calculator выбирает стратегию по методу перевозчика и добавляет строку доставки в заказ.
type Calculator struct {
	carriers   domain.CarrierRepository
	products   domain.ProductRepository
	converter  domain.CurrencyConverter
	strategies map[domain.CostMethod]CostStrategy
	logger     *log.Entry
	metrics    *metrics.ShippingMetrics
}

// Option настраивает Calculator.
type Option func(*Calculator)

// WithMetrics включает запись метрик расчёта.
func WithMetrics(m *metrics.ShippingMetrics) Option {
	return func(c *Calculator) {
		c.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(c *Calculator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStrategy регистрирует или заменяет стратегию для её метода.
func WithStrategy(strategy CostStrategy) Option {
	return func(c *Calculator) {
		if strategy != nil {
			c.strategies[strategy.Method()] = strategy
		}
	}
}

// NewCalculator создаёт калькулятор со стратегиями product и pricelist.
func NewCalculator(
	carriers domain.CarrierRepository,
	products domain.ProductRepository,
	companies domain.CompanyRepository,
	pricer domain.ProductPricer,
	converter domain.CurrencyConverter,
	opts ...Option,
) *Calculator {
	c := &Calculator{
		carriers:  carriers,
		products:  products,
		converter: converter,
		strategies: map[domain.CostMethod]CostStrategy{
			domain.CostMethodProduct:   NewDefaultStrategy(products, companies),
			domain.CostMethodPriceList: NewPriceListStrategy(carriers, companies, pricer),
		},
		logger: log.New().WithField("component", "shipping-calculator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ComputeForOrder рассчитывает доставку заказа стратегией его перевозчика.
func (c *Calculator) ComputeForOrder(ctx context.Context, scope domain.Scope, sale domain.Sale) (domain.ShippingCost, error) {
	if sale.CarrierID == "" {
		return domain.ShippingCost{}, domain.ErrSaleCarrierRequired
	}
	carrier, strategy, err := c.strategyFor(sale.CarrierID)
	if err != nil {
		return domain.ShippingCost{}, err
	}

	start := time.Now()
	cost, err := strategy.ComputeForOrder(ctx, scope, carrier, sale)
	c.record(targetOrder, carrier.CostMethod, cost, err, time.Since(start))
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"sale_id":    sale.ID,
			"carrier_id": carrier.ID,
		}).Warn("order shipping cost computation failed")
		return domain.ShippingCost{}, err
	}
	return cost, nil
}

// ComputeForShipment рассчитывает доставку отгрузки. Результат всегда в валюте компании.
func (c *Calculator) ComputeForShipment(ctx context.Context, scope domain.Scope, shipment domain.Shipment) (domain.ShippingCost, error) {
	if shipment.CarrierID == "" {
		return domain.ShippingCost{}, domain.ErrSaleCarrierRequired
	}
	carrier, strategy, err := c.strategyFor(shipment.CarrierID)
	if err != nil {
		return domain.ShippingCost{}, err
	}

	start := time.Now()
	cost, err := strategy.ComputeForShipment(ctx, scope, carrier, shipment)
	c.record(targetShipment, carrier.CostMethod, cost, err, time.Since(start))
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"shipment_id": shipment.ID,
			"carrier_id":  carrier.ID,
		}).Warn("shipment shipping cost computation failed")
		return domain.ShippingCost{}, err
	}
	return cost, nil
}

// ApplyToOrder заменяет строку доставки заказа через writer.
// Для перевозчиков не pricelist и для нулевой стоимости ничего не делает.
// Возвращает true, если строка была записана.
func (c *Calculator) ApplyToOrder(ctx context.Context, scope domain.Scope, sale domain.Sale, writer domain.SaleLineWriter) (bool, error) {
	if sale.CarrierID == "" {
		c.skip(skipNoCarrier)
		return false, nil
	}
	carrier, err := c.carriers.Get(sale.CarrierID)
	if err != nil {
		return false, err
	}
	if !carrier.UsesPriceList() {
		c.skip(skipNotPriceList)
		return false, nil
	}

	cost, err := c.ComputeForOrder(ctx, scope, sale)
	if err != nil {
		return false, err
	}
	if cost.IsZero() {
		c.skip(skipZeroCost)
		c.logger.WithField("sale_id", sale.ID).Debug("zero shipping cost, line not added")
		return false, nil
	}

	amount, err := c.inSaleCurrency(ctx, cost, sale.CurrencyCode)
	if err != nil {
		return false, err
	}

	product, err := c.products.Get(carrier.ProductID)
	if err != nil {
		return false, err
	}

	line := ShippingLine(product, amount)
	if err := writer.ReplaceShippingLine(ctx, scope, sale.ID, line); err != nil {
		return false, err
	}
	if c.metrics != nil {
		c.metrics.RecordLineApplied()
	}
	c.logger.WithFields(log.Fields{
		"sale_id":  sale.ID,
		"amount":   amount.String(),
		"currency": sale.CurrencyCode,
	}).Info("shipping line applied")
	return true, nil
}

// inSaleCurrency приводит стоимость к валюте заказа и её точности.
// Convert округляет сам, поэтому Round нужен только для совпадающих валют.
func (c *Calculator) inSaleCurrency(ctx context.Context, cost domain.ShippingCost, code string) (decimal.Decimal, error) {
	if cost.Currency == code {
		return c.converter.Round(ctx, cost.Amount, code)
	}
	amount, err := c.converter.Convert(ctx, cost.Amount, cost.Currency, code)
	if err != nil {
		return decimal.Zero, err
	}
	if c.metrics != nil {
		c.metrics.RecordConversion()
	}
	return amount, nil
}

// Rates возвращает тарифы перевозчика. Для pricelist-перевозчика и заданного
// заказа тариф считается по прайс-листу в валюте заказа, иначе берётся
// прейскурантная цена товара доставки в валюте компании.
func (c *Calculator) Rates(ctx context.Context, scope domain.Scope, carrierID string, sale *domain.Sale) ([]domain.ShippingRate, error) {
	if carrierID == "" {
		return nil, domain.ErrSaleCarrierRequired
	}
	carrier, err := c.carriers.Get(carrierID)
	if err != nil {
		return nil, err
	}

	rate := domain.ShippingRate{
		Method:    carrier.Name,
		CarrierID: carrier.ID,
		Metadata: map[string]string{
			"cost_method": string(carrier.CostMethod),
			"product_id":  carrier.ProductID,
		},
	}
	if rate.Method == "" {
		rate.Method = carrier.ID
	}

	if sale == nil || !carrier.UsesPriceList() {
		strategy, ok := c.strategies[domain.CostMethodProduct]
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrCarrierCostMethodInvalid, domain.CostMethodProduct)
		}
		cost, err := strategy.ComputeForOrder(ctx, scope, carrier, domain.Sale{})
		if err != nil {
			return nil, err
		}
		rate.Rate = cost.Amount
		rate.Currency = cost.Currency
		return []domain.ShippingRate{rate}, nil
	}

	cost, err := c.ComputeForOrder(ctx, scope, *sale)
	if err != nil {
		return nil, err
	}
	amount, err := c.inSaleCurrency(ctx, cost, sale.CurrencyCode)
	if err != nil {
		return nil, err
	}
	rate.Rate = amount
	rate.Currency = sale.CurrencyCode
	rate.Metadata["price_list_id"] = carrier.PriceListID
	rate.Metadata["sale_id"] = sale.ID
	return []domain.ShippingRate{rate}, nil
}

// ShippingLine строит строку доставки: товар перевозчика, количество 1, без налогов, в конце заказа.
func ShippingLine(product domain.Product, amount decimal.Decimal) domain.SaleLine {
	return domain.SaleLine{
		Type:         domain.LineTypeLine,
		ProductID:    product.ID,
		Description:  product.Name,
		Quantity:     decimal.NewFromInt(1),
		Unit:         product.SaleUOM,
		UnitPrice:    amount,
		Amount:       amount,
		ShipmentCost: decimal.NewNullDecimal(amount),
		Taxes:        []string{},
		Sequence:     domain.ShippingLineSequence,
	}
}

func (c *Calculator) strategyFor(carrierID string) (domain.Carrier, CostStrategy, error) {
	carrier, err := c.carriers.Get(carrierID)
	if err != nil {
		return domain.Carrier{}, nil, err
	}
	strategy, ok := c.strategies[carrier.CostMethod]
	if !ok {
		return domain.Carrier{}, nil, fmt.Errorf("%w: %q", domain.ErrCarrierCostMethodInvalid, carrier.CostMethod)
	}
	return carrier, strategy, nil
}

func (c *Calculator) record(target string, method domain.CostMethod, cost domain.ShippingCost, err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	result := metrics.ResultOK
	switch {
	case err != nil:
		result = metrics.ResultError
	case cost.IsZero():
		result = metrics.ResultZero
	}
	c.metrics.RecordComputation(target, string(method), result, elapsed)
}

func (c *Calculator) skip(reason string) {
	if c.metrics != nil {
		c.metrics.RecordLineSkipped(reason)
	}
}
