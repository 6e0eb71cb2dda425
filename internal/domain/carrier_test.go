package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCarrierValidate(t *testing.T) {
	tests := []struct {
		name    string
		carrier Carrier
		want    error
	}{
		{
			name:    "valid pricelist carrier",
			carrier: Carrier{ID: "c1", CostMethod: CostMethodPriceList, PriceListID: "pl", ProductID: "p"},
		},
		{
			name:    "valid product carrier without price list",
			carrier: Carrier{ID: "c1", CostMethod: CostMethodProduct, ProductID: "p"},
		},
		{
			name:    "pricelist carrier without price list",
			carrier: Carrier{ID: "c1", CostMethod: CostMethodPriceList, ProductID: "p"},
			want:    ErrCarrierPriceListRequired,
		},
		{
			name:    "unknown cost method",
			carrier: Carrier{ID: "c1", CostMethod: "weight", ProductID: "p"},
			want:    ErrCarrierCostMethodInvalid,
		},
		{
			name:    "missing product",
			carrier: Carrier{ID: "c1", CostMethod: CostMethodProduct},
			want:    ErrCarrierProductRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.carrier.Validate()
			if tt.want == nil {
				if len(errs) != 0 {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if !errors.Is(errors.Join(errs...), tt.want) {
				t.Fatalf("expected %v in %v", tt.want, errs)
			}
		})
	}
}

func TestPriceListLineMatches(t *testing.T) {
	line := PriceListLine{ProductID: "p1", MinQuantity: decimal.NewFromInt(5)}

	if line.Matches("p2", decimal.NewFromInt(10)) {
		t.Error("line restricted to p1 must not match p2")
	}
	if line.Matches("p1", decimal.NewFromInt(4)) {
		t.Error("line must not match below min quantity")
	}
	if !line.Matches("p1", decimal.NewFromInt(5)) {
		t.Error("line must match at min quantity")
	}

	open := PriceListLine{}
	if !open.Matches("whatever", decimal.Zero) {
		t.Error("unrestricted line must match")
	}
}

func TestCurrencyRound(t *testing.T) {
	usd := Currency{Code: "USD", Rate: decimal.NewFromInt(1), Digits: 2}
	got := usd.Round(decimal.RequireFromString("10.005"))
	if !got.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("unexpected rounding: %s", got)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		config   bool
		notFound bool
		conflict bool
	}{
		{name: "company not in context", err: ErrCompanyNotInContext, config: true},
		{name: "wrapped company not found", err: errors.Join(ErrCompanyNotFound, errors.New("ctx")), config: true},
		{name: "carrier not found", err: ErrPriceListCarrierNotFound, notFound: true},
		{name: "carrier ambiguous", err: ErrPriceListCarrierAmbiguous, notFound: true},
		{name: "version conflict", err: ErrSaleVersionConflict, conflict: true},
		{name: "nil error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfigurationError(tt.err); got != tt.config {
				t.Errorf("IsConfigurationError() = %v, want %v", got, tt.config)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.notFound)
			}
			if got := IsVersionConflict(tt.err); got != tt.conflict {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.conflict)
			}
		})
	}
}
