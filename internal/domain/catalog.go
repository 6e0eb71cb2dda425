package domain

import "github.com/shopspring/decimal"

// ProductType разделяет складские товары и услуги.
type ProductType string

const (
	ProductTypeGoods   ProductType = "goods"
	ProductTypeService ProductType = "service"
)

// Product: продаваемый товар или услуга.
type Product struct {
	ID   string
	Code string
	Name string
	Type ProductType
	// ListPrice указан в валюте компании-владельца прайс-листа.
	ListPrice decimal.Decimal
	CostPrice decimal.Decimal
	SaleUOM   string
}

// Stockable сообщает, порождает ли товар складские перемещения.
func (p Product) Stockable() bool {
	return p.Type == ProductTypeGoods
}

// PriceList: набор правил, превращающих базовую цену товара в цену продажи.
type PriceList struct {
	ID        string
	Name      string
	CompanyID string
	Lines     []PriceListLine
}

// PriceListLine: одно правило прайс-листа.
type PriceListLine struct {
	Sequence int
	// ProductID ограничивает правило одним товаром; пустое значение подходит любому.
	ProductID   string
	MinQuantity decimal.Decimal
	// Formula: выражение над unit_price, cost_price, quantity и customer.
	Formula string
}

// Matches проверяет, применимо ли правило к товару и количеству.
func (l PriceListLine) Matches(productID string, quantity decimal.Decimal) bool {
	if l.ProductID != "" && l.ProductID != productID {
		return false
	}
	return quantity.GreaterThanOrEqual(l.MinQuantity)
}

// Company: организация, от лица которой ведутся продажи.
type Company struct {
	ID           string
	Name         string
	CurrencyCode string
}

// Currency хранит курс относительно базовой валюты и точность округления.
type Currency struct {
	Code   string
	Rate   decimal.Decimal
	Digits int32
}

// Round округляет сумму до точности валюты.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.Digits)
}
