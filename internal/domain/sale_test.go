package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// helper для создания базового заказа с двумя товарными строками.
func makeSale() domain.Sale {
	now := time.Now().UTC()
	return domain.Sale{
		ID:           "sale-1",
		Reference:    "S-1001",
		CompanyID:    "company-1",
		PartyID:      "party-1",
		CurrencyCode: "USD",
		CarrierID:    "carrier-1",
		State:        domain.SaleStateDraft,
		Lines: []domain.SaleLine{
			{
				ID:        "line-1",
				Type:      domain.LineTypeLine,
				ProductID: "product-1",
				Quantity:  decimal.NewFromInt(2),
				UnitPrice: decimal.NewFromInt(100),
				Amount:    decimal.NewFromInt(200),
				Sequence:  10,
			},
			{
				ID:        "line-2",
				Type:      domain.LineTypeLine,
				ProductID: "product-2",
				Quantity:  decimal.NewFromInt(2),
				UnitPrice: decimal.NewFromInt(50),
				Amount:    decimal.NewFromInt(100),
				Sequence:  20,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaleTotalAmount(t *testing.T) {
	sale := makeSale()
	if got := sale.TotalAmount(); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected total 300, got %s", got)
	}

	sale.Lines = append(sale.Lines, domain.SaleLine{
		Type:        domain.LineTypeComment,
		Description: "gift wrap",
		Amount:      decimal.NewFromInt(999),
	})
	if got := sale.TotalAmount(); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("comment lines must not affect total, got %s", got)
	}
}

func TestSaleShippingAndProductLines(t *testing.T) {
	sale := makeSale()
	sale.Lines = append(sale.Lines, domain.SaleLine{
		ID:           "ship",
		Type:         domain.LineTypeLine,
		ProductID:    "carrier-product",
		Quantity:     decimal.NewFromInt(1),
		UnitPrice:    decimal.NewFromInt(20),
		Amount:       decimal.NewFromInt(20),
		ShipmentCost: decimal.NewNullDecimal(decimal.NewFromInt(20)),
		Sequence:     domain.ShippingLineSequence,
	})

	if n := len(sale.ShippingLines()); n != 1 {
		t.Fatalf("expected 1 shipping line, got %d", n)
	}
	if n := len(sale.ProductLines()); n != 2 {
		t.Fatalf("expected 2 product lines, got %d", n)
	}
}

func TestSaleSortLines(t *testing.T) {
	sale := makeSale()
	sale.Lines[0].Sequence = domain.ShippingLineSequence
	sale.SortLines()
	if sale.Lines[0].ID != "line-2" || sale.Lines[1].ID != "line-1" {
		t.Fatalf("unexpected order after sort: %s, %s", sale.Lines[0].ID, sale.Lines[1].ID)
	}
}

func TestSaleValidateInvariants_Ok(t *testing.T) {
	sale := makeSale()
	if errs := sale.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestSaleValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(s *domain.Sale)
	}{
		{
			name: "no company",
			mut: func(s *domain.Sale) {
				s.CompanyID = ""
			},
		},
		{
			name: "no currency",
			mut: func(s *domain.Sale) {
				s.CurrencyCode = ""
			},
		},
		{
			name: "unknown line type",
			mut: func(s *domain.Sale) {
				s.Lines[1].Type = "section"
			},
		},
		{
			name: "negative quantity",
			mut: func(s *domain.Sale) {
				s.Lines[0].Quantity = decimal.NewFromInt(-1)
			},
		},
		{
			name: "negative price",
			mut: func(s *domain.Sale) {
				s.Lines[1].UnitPrice = decimal.NewFromInt(-5)
			},
		},
		{
			name: "line without product and description",
			mut: func(s *domain.Sale) {
				s.Lines[0].ProductID = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sale := makeSale()
			tc.mut(&sale)

			if len(sale.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}
