package catalog

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// FormulaCompiler проверяет, что формула прайс-листа компилируется.
type FormulaCompiler interface {
	Check(formula string) error
}

// Validate проверяет согласованность каталога и возвращает все найденные ошибки сразу.
// Больше одного перевозчика pricelist считается ошибкой конфигурации.
func (c *Catalog) Validate(compiler FormulaCompiler) error {
	var errs []error

	currencies := make(map[string]struct{}, len(c.Currencies))
	for _, cur := range c.Currencies {
		if cur.Code == "" {
			errs = append(errs, fmt.Errorf("currency: %w", domain.ErrCurrencyRequired))
			continue
		}
		if !cur.Rate.IsPositive() {
			errs = append(errs, fmt.Errorf("currency %q: %w", cur.Code, domain.ErrCurrencyRateInvalid))
		}
		if _, dup := currencies[cur.Code]; dup {
			errs = append(errs, fmt.Errorf("currency %q: %w", cur.Code, ErrDuplicateID))
		}
		currencies[cur.Code] = struct{}{}
	}

	companies := make(map[string]struct{}, len(c.Companies))
	for _, company := range c.Companies {
		if _, dup := companies[company.ID]; dup {
			errs = append(errs, fmt.Errorf("company %q: %w", company.ID, ErrDuplicateID))
		}
		companies[company.ID] = struct{}{}
		if _, ok := currencies[company.CurrencyCode]; !ok {
			errs = append(errs, fmt.Errorf("company %q currency %q: %w", company.ID, company.CurrencyCode, domain.ErrCurrencyNotFound))
		}
	}

	products := make(map[string]struct{}, len(c.Products))
	for _, product := range c.Products {
		if _, dup := products[product.ID]; dup {
			errs = append(errs, fmt.Errorf("product %q: %w", product.ID, ErrDuplicateID))
		}
		products[product.ID] = struct{}{}
		if product.ListPrice.IsNegative() || product.CostPrice.IsNegative() {
			errs = append(errs, fmt.Errorf("product %q: %w", product.ID, domain.ErrLinePriceInvalid))
		}
	}

	priceLists := make(map[string]struct{}, len(c.PriceLists))
	for _, list := range c.PriceLists {
		if _, dup := priceLists[list.ID]; dup {
			errs = append(errs, fmt.Errorf("price list %q: %w", list.ID, ErrDuplicateID))
		}
		priceLists[list.ID] = struct{}{}
		if _, ok := companies[list.CompanyID]; !ok {
			errs = append(errs, fmt.Errorf("price list %q company %q: %w", list.ID, list.CompanyID, domain.ErrCompanyNotFound))
		}
		for _, line := range list.Lines {
			if line.ProductID != "" {
				if _, ok := products[line.ProductID]; !ok {
					errs = append(errs, fmt.Errorf("price list %q line %d product %q: %w", list.ID, line.Sequence, line.ProductID, domain.ErrProductNotFound))
				}
			}
			if compiler == nil {
				continue
			}
			if err := compiler.Check(line.Formula); err != nil {
				errs = append(errs, fmt.Errorf("price list %q line %d: %w", list.ID, line.Sequence, err))
			}
		}
	}

	var priceListCarriers []string
	carriers := make(map[string]struct{}, len(c.Carriers))
	for _, carrier := range c.Carriers {
		if _, dup := carriers[carrier.ID]; dup {
			errs = append(errs, fmt.Errorf("carrier %q: %w", carrier.ID, ErrDuplicateID))
		}
		carriers[carrier.ID] = struct{}{}
		for _, err := range carrier.Validate() {
			errs = append(errs, fmt.Errorf("carrier %q: %w", carrier.ID, err))
		}
		if carrier.ProductID != "" {
			if _, ok := products[carrier.ProductID]; !ok {
				errs = append(errs, fmt.Errorf("carrier %q product %q: %w", carrier.ID, carrier.ProductID, domain.ErrProductNotFound))
			}
		}
		if carrier.UsesPriceList() {
			priceListCarriers = append(priceListCarriers, carrier.ID)
			if carrier.PriceListID != "" {
				if _, ok := priceLists[carrier.PriceListID]; !ok {
					errs = append(errs, fmt.Errorf("carrier %q price list %q: %w", carrier.ID, carrier.PriceListID, domain.ErrPriceListNotFound))
				}
			}
		}
	}
	if len(priceListCarriers) > 1 {
		errs = append(errs, fmt.Errorf("carriers %v: %w", priceListCarriers, domain.ErrPriceListCarrierAmbiguous))
	}

	return errors.Join(errs...)
}

// ErrDuplicateID: в каталоге повторяется идентификатор.
var ErrDuplicateID = errors.New("duplicate id")
