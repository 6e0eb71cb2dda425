package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

func TestSaleRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewSaleRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	sale1 := sampleSale("sale-1", "party-1", now.Add(-2*time.Minute))
	sale2 := sampleSale("sale-2", "party-1", now.Add(-time.Minute))

	if err := repo.Create(sale1); err != nil {
		t.Fatalf("create sale1: %v", err)
	}
	if err := repo.Create(sale2); err != nil {
		t.Fatalf("create sale2: %v", err)
	}

	got, err := repo.Get(sale1.ID)
	if err != nil {
		t.Fatalf("get sale1: %v", err)
	}
	if got.PartyID != sale1.PartyID || got.State != domain.SaleStateDraft || got.CarrierID != sale1.CarrierID {
		t.Fatalf("unexpected sale payload: %+v", got)
	}
	if !got.ShippingEstimate.Amount.Equal(decimal.NewFromInt(20)) || got.ShippingEstimate.Currency != "EUR" {
		t.Fatalf("unexpected shipping estimate: %+v", got.ShippingEstimate)
	}
	if len(got.Lines) != 2 {
		t.Fatalf("unexpected lines count: %d", len(got.Lines))
	}
	if !got.Lines[0].Amount.Equal(decimal.NewFromInt(300)) || len(got.Lines[0].Taxes) != 1 {
		t.Fatalf("unexpected first line: %+v", got.Lines[0])
	}
	if got.Lines[0].ShipmentCost.Valid {
		t.Fatal("product line must not carry shipment cost")
	}

	listed, err := repo.ListByParty("party-1", 1)
	if err != nil {
		t.Fatalf("list by party with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != sale2.ID {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	all, err := repo.ListByParty("party-1", 0)
	if err != nil {
		t.Fatalf("list by party without limit: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(all))
	}

	got.State = domain.SaleStateQuotation
	got.Lines = append(got.Lines, domain.SaleLine{
		ID:           "shipping",
		Type:         domain.LineTypeLine,
		ProductID:    "product-shipping",
		Description:  "Shipping",
		Quantity:     decimal.NewFromInt(1),
		UnitPrice:    decimal.NewFromInt(20),
		Amount:       decimal.NewFromInt(20),
		ShipmentCost: decimal.NewNullDecimal(decimal.NewFromInt(20)),
		Taxes:        []string{},
		Sequence:     9999,
	})
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(got); err != nil {
		t.Fatalf("save sale: %v", err)
	}

	saved, err := repo.Get(sale1.ID)
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if saved.Version != got.Version+1 {
		t.Fatalf("expected version %d, got %d", got.Version+1, saved.Version)
	}
	if saved.State != domain.SaleStateQuotation {
		t.Fatalf("expected quotation state, got %s", saved.State)
	}
	shipping := saved.ShippingLines()
	if len(shipping) != 1 || !shipping[0].ShipmentCost.Decimal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected shipping lines: %+v", shipping)
	}
	if !saved.TotalAmount().Equal(decimal.NewFromInt(320)) {
		t.Fatalf("expected total 320, got %s", saved.TotalAmount())
	}
}

func TestSaleRepository_PostgresConflictsAndMissing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewSaleRepository(store)

	sale := sampleSale("sale-conflict", "party-2", time.Now().UTC().Round(time.Microsecond))
	if err := repo.Create(sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := repo.Create(sale); !errors.Is(err, domain.ErrSaleVersionConflict) {
		t.Fatalf("expected version conflict on duplicate create, got %v", err)
	}

	stale := sale
	stale.Version = 42
	if err := repo.Save(stale); !errors.Is(err, domain.ErrSaleVersionConflict) {
		t.Fatalf("expected version conflict on stale save, got %v", err)
	}

	missing := sampleSale("sale-missing", "party-2", time.Now().UTC())
	if err := repo.Save(missing); !errors.Is(err, domain.ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound on save, got %v", err)
	}
	if _, err := repo.Get("sale-missing"); !errors.Is(err, domain.ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound on get, got %v", err)
	}
}

func TestShipmentRepository_PostgresCreateGetAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	sales := NewSaleRepository(store)
	shipments := NewShipmentRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	sale := sampleSale("sale-ship", "party-3", now)
	if err := sales.Create(sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	second := domain.Shipment{
		ID:           "shipment-2",
		SaleID:       sale.ID,
		CompanyID:    sale.CompanyID,
		CustomerID:   sale.PartyID,
		CarrierID:    sale.CarrierID,
		Cost:         decimal.NewFromInt(20),
		CostCurrency: "USD",
		State:        domain.ShipmentStateWaiting,
		CreatedAt:    now.Add(time.Second),
	}
	first := second
	first.ID = "shipment-1"
	first.CreatedAt = now
	first.Moves = []domain.Move{
		{ID: "move-1", ProductID: "product-a", Quantity: decimal.NewFromInt(3)},
		{ID: "move-2", ProductID: "product-b", Quantity: decimal.NewFromInt(1)},
	}

	if err := shipments.Create(second); err != nil {
		t.Fatalf("create second shipment: %v", err)
	}
	if err := shipments.Create(first); err != nil {
		t.Fatalf("create first shipment: %v", err)
	}
	if err := shipments.Create(first); !errors.Is(err, domain.ErrSaleVersionConflict) {
		t.Fatalf("expected conflict on duplicate shipment, got %v", err)
	}

	got, err := shipments.Get(first.ID)
	if err != nil {
		t.Fatalf("get shipment: %v", err)
	}
	if len(got.Moves) != 2 || got.Moves[0].ID != "move-1" {
		t.Fatalf("unexpected moves: %+v", got.Moves)
	}
	if !got.Cost.Equal(decimal.NewFromInt(20)) || got.CostCurrency != "USD" {
		t.Fatalf("unexpected cost: %s %s", got.Cost, got.CostCurrency)
	}

	listed, err := shipments.ListBySale(sale.ID)
	if err != nil {
		t.Fatalf("list shipments: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != first.ID || listed[1].ID != second.ID {
		t.Fatalf("unexpected shipment order: %+v", listed)
	}

	if _, err := shipments.Get("shipment-missing"); !errors.Is(err, domain.ErrShipmentNotFound) {
		t.Fatalf("expected ErrShipmentNotFound, got %v", err)
	}
}
