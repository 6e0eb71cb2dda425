package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/catalog"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/currency"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/metrics"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/pricelist"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/service/sale"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/service/shipping"
)

// loadCatalog читает каталог и проверяет его целиком, включая компиляцию формул.
func loadCatalog(path string, engine *pricelist.Engine) (*catalog.Catalog, error) {
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := cat.Validate(engine); err != nil {
		return nil, fmt.Errorf("validate catalog %s: %w", path, err)
	}
	return cat, nil
}

// newSaleService собирает калькулятор доставки и сервис заказов поверх каталога и хранилищ.
func newSaleService(
	cat *catalog.Catalog,
	engine *pricelist.Engine,
	deps runtimeDependencies,
	producer *kafka.Producer,
	logger *log.Entry,
) *sale.Service {
	repos := cat.Repositories()
	converter := currency.NewConverter(repos.Currencies)
	pricer := pricelist.NewPricer(engine, repos.Products, repos.PriceLists, repos.Companies, converter)
	shippingMetrics := metrics.NewShippingMetrics()

	calculator := shipping.NewCalculator(
		repos.Carriers,
		repos.Products,
		repos.Companies,
		pricer,
		converter,
		shipping.WithMetrics(shippingMetrics),
		shipping.WithLogger(logger.WithField("layer", "shipping")),
	)

	opts := []sale.Option{
		sale.WithLogger(logger.WithField("layer", "sale")),
		sale.WithMetrics(shippingMetrics),
	}
	if producer != nil {
		opts = append(opts, sale.WithEventPublisher(producer))
	}

	return sale.NewService(sale.Dependencies{
		Sales:      deps.sales,
		Shipments:  deps.shipments,
		Outbox:     deps.outboxRepo,
		History:    deps.history,
		Products:   repos.Products,
		Currencies: repos.Currencies,
		Calculator: calculator,
	}, opts...)
}
