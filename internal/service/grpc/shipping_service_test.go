package grpcsvc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/catalog"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/currency"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/metrics"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/pricelist"
	grpcsvc "github.com/vladislavdragonenkov/carrier-pricelist/internal/service/grpc"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/service/sale"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/service/shipping"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/storage/memory"
)

const bufSize = 1024 * 1024

const testCatalog = `
currencies:
  - {code: USD, rate: "1", digits: 2}
  - {code: EUR, rate: "0.5", digits: 2}
companies:
  - {id: company-1, name: Dunder Mifflin, currency: USD}
products:
  - {id: product-1, name: Product 1, type: goods, list_price: "100", sale_uom: unit}
  - {id: product-2, name: Product 2, type: goods, list_price: "50", sale_uom: unit}
  - {id: shipping, name: Shipping, type: service, list_price: "7", sale_uom: unit}
price_lists:
  - id: pl-flat
    name: Flat shipping
    company: company-1
    lines:
      - {sequence: 10, formula: "unit_price*0 + 5"}
carriers:
  - {id: carrier-pl, name: Price list carrier, cost_method: pricelist, price_list: pl-flat, product: shipping}
  - {id: carrier-product, name: Product carrier, cost_method: product, product: shipping}
`

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func newTestClient(t *testing.T) *grpcsvc.Client {
	t.Helper()

	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	engine, err := pricelist.NewEngine()
	require.NoError(t, err)
	require.NoError(t, cat.Validate(engine))
	repos := cat.Repositories()

	logger := loggerForTests()
	m := metrics.NewShippingMetricsWithRegisterer(prometheus.NewRegistry())
	converter := currency.NewConverter(repos.Currencies)
	calculator := shipping.NewCalculator(
		repos.Carriers, repos.Products, repos.Companies,
		pricelist.NewPricer(engine, repos.Products, repos.PriceLists, repos.Companies, converter),
		converter,
		shipping.WithMetrics(m),
		shipping.WithLogger(logger),
	)
	sales := sale.NewService(sale.Dependencies{
		Sales:      memory.NewSaleRepository(),
		Shipments:  memory.NewShipmentRepository(),
		Outbox:     memory.NewOutboxRepository(),
		History:    memory.NewSaleHistory(),
		Products:   repos.Products,
		Currencies: repos.Currencies,
		Calculator: calculator,
	}, sale.WithMetrics(m), sale.WithLogger(logger))

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	grpcsvc.RegisterShippingCostServer(server, grpcsvc.NewShippingCostService(sales, logger))

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}

	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return grpcsvc.NewClient(conn)
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func draftRequest(carrierID string) map[string]any {
	return map[string]any{
		"company_id": "company-1",
		"party_id":   "party-1",
		"currency":   "USD",
		"carrier_id": carrierID,
		"lines": []any{
			map[string]any{"product_id": "product-1", "quantity": "2", "unit_price": "100"},
			map[string]any{"product_id": "product-2", "quantity": 2, "unit_price": "50"},
		},
	}
}

func requireCode(t *testing.T, err error, expected codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "expected grpc status error, got %v", err)
	require.Equal(t, expected, st.Code(), st.Message())
}

func requireDecimal(t *testing.T, expected string, actual *structpb.Value) {
	t.Helper()
	got, err := decimal.NewFromString(actual.GetStringValue())
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString(expected).Equal(got), "expected %s, got %s", expected, got)
}

func saleOf(resp *structpb.Struct) *structpb.Struct {
	return resp.GetFields()["sale"].GetStructValue()
}

func TestShippingCostService_QuoteConfirmProcessFlow(t *testing.T) {
	client := newTestClient(t)
	ctx := callCtx(t)

	created, err := client.CallMap(ctx, grpcsvc.MethodCreateSale, draftRequest("carrier-pl"))
	require.NoError(t, err)
	sale := saleOf(created)
	saleID := sale.GetFields()["id"].GetStringValue()
	require.NotEmpty(t, saleID)
	require.Equal(t, "draft", sale.GetFields()["state"].GetStringValue())
	requireDecimal(t, "300", sale.GetFields()["total"])
	requireDecimal(t, "20", sale.GetFields()["shipping_estimate"].GetStructValue().GetFields()["amount"])

	quoted, err := client.CallMap(ctx, grpcsvc.MethodQuoteSale, map[string]any{"sale_id": saleID, "company_id": "company-1"})
	require.NoError(t, err)
	require.Equal(t, "quotation", saleOf(quoted).GetFields()["state"].GetStringValue())

	got, err := client.CallMap(ctx, grpcsvc.MethodGetSale, map[string]any{"sale_id": saleID})
	require.NoError(t, err)
	fields := saleOf(got).GetFields()
	requireDecimal(t, "320", fields["total"])
	lines := fields["lines"].GetListValue().GetValues()
	require.Len(t, lines, 3)
	shippingLine := lines[2].GetStructValue().GetFields()
	require.Equal(t, "shipping", shippingLine["product_id"].GetStringValue())
	requireDecimal(t, "20", shippingLine["shipment_cost"])
	history := got.GetFields()["history"].GetListValue().GetValues()
	require.NotEmpty(t, history)

	latest, err := client.CallMap(ctx, grpcsvc.MethodGetSale, map[string]any{"sale_id": saleID, "history_limit": 2})
	require.NoError(t, err)
	recent := latest.GetFields()["history"].GetListValue().GetValues()
	require.Len(t, recent, 2)
	transition := recent[0].GetStructValue().GetFields()
	require.Equal(t, "SaleStateChanged", transition["event"].GetStringValue())
	require.Equal(t, "draft", transition["from"].GetStringValue())
	require.Equal(t, "quotation", transition["to"].GetStringValue())
	shippingEntry := recent[1].GetStructValue().GetFields()
	require.Equal(t, "ShippingLineReplaced", shippingEntry["event"].GetStringValue())
	require.NotContains(t, shippingEntry, "to")

	_, err = client.CallMap(ctx, grpcsvc.MethodConfirmSale, map[string]any{"sale_id": saleID, "company_id": "company-1"})
	require.NoError(t, err)

	processed, err := client.CallMap(ctx, grpcsvc.MethodProcessSale, map[string]any{"sale_id": saleID, "company_id": "company-1"})
	require.NoError(t, err)
	require.Equal(t, "processing", saleOf(processed).GetFields()["state"].GetStringValue())
	shipment := processed.GetFields()["shipment"].GetStructValue().GetFields()
	shipmentID := shipment["id"].GetStringValue()
	require.NotEmpty(t, shipmentID)
	require.Len(t, shipment["moves"].GetListValue().GetValues(), 2)

	cost, err := client.CallMap(ctx, grpcsvc.MethodGetShipmentCost, map[string]any{"shipment_id": shipmentID, "company_id": "company-1"})
	require.NoError(t, err)
	costFields := cost.GetFields()["cost"].GetStructValue().GetFields()
	requireDecimal(t, "20", costFields["amount"])
	require.Equal(t, "USD", costFields["currency"].GetStringValue())

	listed, err := client.CallMap(ctx, grpcsvc.MethodListSales, map[string]any{"party_id": "party-1", "page_size": 10})
	require.NoError(t, err)
	require.Len(t, listed.GetFields()["sales"].GetListValue().GetValues(), 1)
}

func TestShippingCostService_EstimateShippingCost(t *testing.T) {
	client := newTestClient(t)
	ctx := callCtx(t)

	resp, err := client.CallMap(ctx, grpcsvc.MethodEstimateShippingCost, draftRequest("carrier-pl"))
	require.NoError(t, err)
	cost := resp.GetFields()["cost"].GetStructValue().GetFields()
	requireDecimal(t, "20", cost["amount"])
	require.Equal(t, "USD", cost["currency"].GetStringValue())

	resp, err = client.CallMap(ctx, grpcsvc.MethodEstimateShippingCost, draftRequest("carrier-product"))
	require.NoError(t, err)
	requireDecimal(t, "7", resp.GetFields()["cost"].GetStructValue().GetFields()["amount"])
}

func TestShippingCostService_GetShippingRates(t *testing.T) {
	client := newTestClient(t)
	ctx := callCtx(t)

	created, err := client.CallMap(ctx, grpcsvc.MethodCreateSale, draftRequest("carrier-pl"))
	require.NoError(t, err)
	saleID := saleOf(created).GetFields()["id"].GetStringValue()

	resp, err := client.CallMap(ctx, grpcsvc.MethodGetShippingRates, map[string]any{
		"sale_id":    saleID,
		"company_id": "company-1",
	})
	require.NoError(t, err)
	rates := resp.GetFields()["rates"].GetListValue().GetValues()
	require.Len(t, rates, 1)
	rate := rates[0].GetStructValue().GetFields()
	require.Equal(t, "carrier-pl", rate["carrier_id"].GetStringValue())
	requireDecimal(t, "20", rate["rate"])
	require.Equal(t, "USD", rate["currency"].GetStringValue())
	require.Equal(t, saleID, rate["metadata"].GetStructValue().GetFields()["sale_id"].GetStringValue())

	resp, err = client.CallMap(ctx, grpcsvc.MethodGetShippingRates, map[string]any{
		"carrier_id": "carrier-product",
		"company_id": "company-1",
	})
	require.NoError(t, err)
	rate = resp.GetFields()["rates"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	requireDecimal(t, "7", rate["rate"])

	_, err = client.CallMap(ctx, grpcsvc.MethodGetShippingRates, map[string]any{"company_id": "company-1"})
	requireCode(t, err, codes.InvalidArgument)

	_, err = client.CallMap(ctx, grpcsvc.MethodGetShippingRates, map[string]any{"carrier_id": "carrier-pl"})
	requireCode(t, err, codes.FailedPrecondition)
}

func TestShippingCostService_SetSaleLinesRefreshesEstimate(t *testing.T) {
	client := newTestClient(t)
	ctx := callCtx(t)

	created, err := client.CallMap(ctx, grpcsvc.MethodCreateSale, draftRequest("carrier-pl"))
	require.NoError(t, err)
	saleID := saleOf(created).GetFields()["id"].GetStringValue()

	updated, err := client.CallMap(ctx, grpcsvc.MethodSetSaleLines, map[string]any{
		"sale_id":    saleID,
		"company_id": "company-1",
		"lines": []any{
			map[string]any{"product_id": "product-1", "quantity": "1", "unit_price": "100"},
		},
	})
	require.NoError(t, err)
	fields := saleOf(updated).GetFields()
	requireDecimal(t, "100", fields["total"])
	requireDecimal(t, "5", fields["shipping_estimate"].GetStructValue().GetFields()["amount"])
}

func TestShippingCostService_ErrorMapping(t *testing.T) {
	client := newTestClient(t)
	ctx := callCtx(t)

	_, err := client.CallMap(ctx, grpcsvc.MethodGetSale, map[string]any{})
	requireCode(t, err, codes.InvalidArgument)

	_, err = client.CallMap(ctx, grpcsvc.MethodGetSale, map[string]any{"sale_id": "missing"})
	requireCode(t, err, codes.NotFound)

	_, err = client.CallMap(ctx, grpcsvc.MethodGetShipmentCost, map[string]any{"shipment_id": "missing", "company_id": "company-1"})
	requireCode(t, err, codes.NotFound)

	bad := draftRequest("carrier-pl")
	bad["lines"] = []any{map[string]any{"product_id": "product-1", "quantity": "two"}}
	_, err = client.CallMap(ctx, grpcsvc.MethodCreateSale, bad)
	requireCode(t, err, codes.InvalidArgument)

	negative := draftRequest("carrier-pl")
	negative["lines"] = []any{map[string]any{"product_id": "product-1", "quantity": "-1", "unit_price": "10"}}
	_, err = client.CallMap(ctx, grpcsvc.MethodCreateSale, negative)
	requireCode(t, err, codes.InvalidArgument)

	section := draftRequest("carrier-pl")
	section["lines"] = []any{map[string]any{"type": "section", "description": "Header"}}
	_, err = client.CallMap(ctx, grpcsvc.MethodCreateSale, section)
	requireCode(t, err, codes.InvalidArgument)

	noParty := draftRequest("carrier-pl")
	delete(noParty, "party_id")
	_, err = client.CallMap(ctx, grpcsvc.MethodEstimateShippingCost, noParty)
	requireCode(t, err, codes.InvalidArgument)

	noCompany := draftRequest("carrier-pl")
	delete(noCompany, "company_id")
	_, err = client.CallMap(ctx, grpcsvc.MethodEstimateShippingCost, noCompany)
	requireCode(t, err, codes.FailedPrecondition)

	created, err := client.CallMap(ctx, grpcsvc.MethodCreateSale, draftRequest("carrier-pl"))
	require.NoError(t, err)
	saleID := saleOf(created).GetFields()["id"].GetStringValue()

	_, err = client.CallMap(ctx, grpcsvc.MethodConfirmSale, map[string]any{"sale_id": saleID, "company_id": "company-1"})
	requireCode(t, err, codes.FailedPrecondition)

	_, err = client.CallMap(ctx, grpcsvc.MethodQuoteSale, map[string]any{"sale_id": saleID})
	requireCode(t, err, codes.FailedPrecondition)

	got, err := client.CallMap(ctx, grpcsvc.MethodGetSale, map[string]any{"sale_id": saleID})
	require.NoError(t, err)
	require.Equal(t, "draft", saleOf(got).GetFields()["state"].GetStringValue())

	canceled, err := client.CallMap(ctx, grpcsvc.MethodCancelSale, map[string]any{"sale_id": saleID, "reason": "customer request"})
	require.NoError(t, err)
	require.Equal(t, "cancel", saleOf(canceled).GetFields()["state"].GetStringValue())
}
