// Package catalog загружает справочники (валюты, компании, товары, прайс-листы,
// перевозчики) из YAML и проверяет их согласованность при старте сервиса.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/storage/memory"
)

// ErrEmptyCatalog возвращается для пустого файла каталога.
var ErrEmptyCatalog = errors.New("catalog: payload is empty")

type currencyDoc struct {
	Code   string `yaml:"code"`
	Rate   string `yaml:"rate"`
	Digits int32  `yaml:"digits"`
}

type companyDoc struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

type productDoc struct {
	ID        string `yaml:"id"`
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	ListPrice string `yaml:"list_price"`
	CostPrice string `yaml:"cost_price"`
	SaleUOM   string `yaml:"sale_uom"`
}

type priceListLineDoc struct {
	Sequence    int    `yaml:"sequence"`
	Product     string `yaml:"product,omitempty"`
	MinQuantity string `yaml:"min_quantity,omitempty"`
	Formula     string `yaml:"formula"`
}

type priceListDoc struct {
	ID      string             `yaml:"id"`
	Name    string             `yaml:"name"`
	Company string             `yaml:"company"`
	Lines   []priceListLineDoc `yaml:"lines"`
}

type carrierDoc struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	CostMethod string `yaml:"cost_method"`
	PriceList  string `yaml:"price_list,omitempty"`
	Product    string `yaml:"product"`
}

type document struct {
	Currencies []currencyDoc  `yaml:"currencies"`
	Companies  []companyDoc   `yaml:"companies"`
	Products   []productDoc   `yaml:"products"`
	PriceLists []priceListDoc `yaml:"price_lists"`
	Carriers   []carrierDoc   `yaml:"carriers"`
}

// Catalog: разобранные справочники в доменных типах.
type Catalog struct {
	Currencies []domain.Currency
	Companies  []domain.Company
	Products   []domain.Product
	PriceLists []domain.PriceList
	Carriers   []domain.Carrier
}

// Parse декодирует каталог из YAML.
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyCatalog
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return doc.toCatalog()
}

// LoadReader читает каталог из io.Reader.
func LoadReader(r io.Reader) (*Catalog, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: read: %w", err)
	}
	return Parse(content)
}

// Load читает каталог из файла.
func Load(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	cat, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return cat, nil
}

func (d document) toCatalog() (*Catalog, error) {
	cat := &Catalog{}

	for _, c := range d.Currencies {
		rate, err := parseDecimal(c.Rate, "1")
		if err != nil {
			return nil, fmt.Errorf("catalog: currency %q rate: %w", c.Code, err)
		}
		cat.Currencies = append(cat.Currencies, domain.Currency{Code: c.Code, Rate: rate, Digits: c.Digits})
	}

	for _, c := range d.Companies {
		cat.Companies = append(cat.Companies, domain.Company{ID: c.ID, Name: c.Name, CurrencyCode: c.Currency})
	}

	for _, p := range d.Products {
		listPrice, err := parseDecimal(p.ListPrice, "0")
		if err != nil {
			return nil, fmt.Errorf("catalog: product %q list_price: %w", p.ID, err)
		}
		costPrice, err := parseDecimal(p.CostPrice, "0")
		if err != nil {
			return nil, fmt.Errorf("catalog: product %q cost_price: %w", p.ID, err)
		}
		productType := domain.ProductType(p.Type)
		if productType == "" {
			productType = domain.ProductTypeGoods
		}
		cat.Products = append(cat.Products, domain.Product{
			ID:        p.ID,
			Code:      p.Code,
			Name:      p.Name,
			Type:      productType,
			ListPrice: listPrice,
			CostPrice: costPrice,
			SaleUOM:   p.SaleUOM,
		})
	}

	for _, pl := range d.PriceLists {
		list := domain.PriceList{ID: pl.ID, Name: pl.Name, CompanyID: pl.Company}
		for _, line := range pl.Lines {
			minQty, err := parseDecimal(line.MinQuantity, "0")
			if err != nil {
				return nil, fmt.Errorf("catalog: price list %q line %d min_quantity: %w", pl.ID, line.Sequence, err)
			}
			list.Lines = append(list.Lines, domain.PriceListLine{
				Sequence:    line.Sequence,
				ProductID:   line.Product,
				MinQuantity: minQty,
				Formula:     line.Formula,
			})
		}
		cat.PriceLists = append(cat.PriceLists, list)
	}

	for _, c := range d.Carriers {
		cat.Carriers = append(cat.Carriers, domain.Carrier{
			ID:          c.ID,
			Name:        c.Name,
			CostMethod:  domain.CostMethod(c.CostMethod),
			PriceListID: c.PriceList,
			ProductID:   c.Product,
		})
	}

	return cat, nil
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	if value == "" {
		value = fallback
	}
	return decimal.NewFromString(value)
}

// Repositories: read-only in-memory справочники, построенные из каталога.
type Repositories struct {
	Carriers   *memory.CarrierRepository
	Products   *memory.ProductRepository
	PriceLists *memory.PriceListRepository
	Companies  *memory.CompanyRepository
	Currencies *memory.CurrencyRepository
}

// Repositories строит справочники. Каталог должен быть предварительно проверен Validate.
func (c *Catalog) Repositories() Repositories {
	return Repositories{
		Carriers:   memory.NewCarrierRepository(c.Carriers...),
		Products:   memory.NewProductRepository(c.Products...),
		PriceLists: memory.NewPriceListRepository(c.PriceLists...),
		Companies:  memory.NewCompanyRepository(c.Companies...),
		Currencies: memory.NewCurrencyRepository(c.Currencies...),
	}
}

// Formulas возвращает уникальные формулы прайс-листов в порядке появления.
func (c *Catalog) Formulas() []string {
	seen := make(map[string]struct{})
	var formulas []string
	for _, list := range c.PriceLists {
		for _, line := range list.Lines {
			if _, ok := seen[line.Formula]; ok {
				continue
			}
			seen[line.Formula] = struct{}{}
			formulas = append(formulas, line.Formula)
		}
	}
	return formulas
}
