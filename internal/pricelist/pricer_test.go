package pricelist_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/currency"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/pricelist"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/storage/memory"
)

func newPricer(t *testing.T, lists ...domain.PriceList) *pricelist.Pricer {
	t.Helper()

	engine, err := pricelist.NewEngine()
	require.NoError(t, err)

	currencies := memory.NewCurrencyRepository(
		domain.Currency{Code: "USD", Rate: decimal.NewFromInt(1), Digits: 2},
		domain.Currency{Code: "EUR", Rate: decimal.RequireFromString("0.5"), Digits: 2},
	)
	products := memory.NewProductRepository(
		domain.Product{ID: "product-1", Name: "Product 1", Type: domain.ProductTypeGoods, ListPrice: decimal.NewFromInt(100), CostPrice: decimal.NewFromInt(90)},
		domain.Product{ID: "product-2", Name: "Product 2", Type: domain.ProductTypeGoods, ListPrice: decimal.NewFromInt(50), CostPrice: decimal.NewFromInt(40)},
	)
	companies := memory.NewCompanyRepository(domain.Company{ID: "company-1", CurrencyCode: "USD"})

	return pricelist.NewPricer(engine, products, memory.NewPriceListRepository(lists...), companies, currency.NewConverter(currencies))
}

func TestPricer_FlatFormula(t *testing.T) {
	pricer := newPricer(t, domain.PriceList{
		ID:        "pl-1",
		CompanyID: "company-1",
		Lines:     []domain.PriceListLine{{Formula: "(unit_price * 0.0) + 5"}},
	})

	for _, productID := range []string{"product-1", "product-2"} {
		price, err := pricer.UnitPrice(context.Background(), domain.PriceQuery{
			ProductID:   productID,
			PriceListID: "pl-1",
			CustomerID:  "party-1",
			Currency:    "USD",
			Quantity:    decimal.NewFromInt(2),
		})
		require.NoError(t, err)
		require.Equal(t, "5", price.String())
	}
}

func TestPricer_FirstMatchingLineWins(t *testing.T) {
	pricer := newPricer(t, domain.PriceList{
		ID:        "pl-1",
		CompanyID: "company-1",
		Lines: []domain.PriceListLine{
			{Sequence: 30, Formula: "unit_price"},
			{Sequence: 10, ProductID: "product-1", MinQuantity: decimal.NewFromInt(10), Formula: "unit_price * 0.5"},
			{Sequence: 20, ProductID: "product-1", Formula: "unit_price * 0.8"},
		},
	})
	ctx := context.Background()

	bulk, err := pricer.UnitPrice(ctx, domain.PriceQuery{ProductID: "product-1", PriceListID: "pl-1", Currency: "USD", Quantity: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, "50", bulk.String())

	small, err := pricer.UnitPrice(ctx, domain.PriceQuery{ProductID: "product-1", PriceListID: "pl-1", Currency: "USD", Quantity: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.Equal(t, "80", small.String())

	other, err := pricer.UnitPrice(ctx, domain.PriceQuery{ProductID: "product-2", PriceListID: "pl-1", Currency: "USD", Quantity: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.Equal(t, "50", other.String())
}

func TestPricer_NoMatchingLineReturnsBasePriceInCurrency(t *testing.T) {
	pricer := newPricer(t, domain.PriceList{
		ID:        "pl-1",
		CompanyID: "company-1",
		Lines:     []domain.PriceListLine{{ProductID: "product-2", Formula: "0"}},
	})

	price, err := pricer.UnitPrice(context.Background(), domain.PriceQuery{
		ProductID:   "product-1",
		PriceListID: "pl-1",
		Currency:    "EUR",
		Quantity:    decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Equal(t, "50", price.String())
}

func TestPricer_Errors(t *testing.T) {
	pricer := newPricer(t, domain.PriceList{ID: "pl-1", CompanyID: "company-1"})
	ctx := context.Background()

	_, err := pricer.UnitPrice(ctx, domain.PriceQuery{ProductID: "missing", PriceListID: "pl-1"})
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = pricer.UnitPrice(ctx, domain.PriceQuery{ProductID: "product-1", PriceListID: "missing"})
	require.ErrorIs(t, err, domain.ErrPriceListNotFound)

	_, err = pricer.UnitPrice(ctx, domain.PriceQuery{ProductID: "product-1"})
	require.ErrorIs(t, err, domain.ErrPriceListNotFound)
}
