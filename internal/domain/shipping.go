package domain

import "github.com/shopspring/decimal"

// ShippingLineSequence ставит строку доставки в конец заказа.
const ShippingLineSequence = 9999

// ShippingCost: рассчитанная стоимость доставки и её валюта.
type ShippingCost struct {
	Amount   decimal.Decimal
	Currency string
}

// ZeroCost возвращает нулевую стоимость в указанной валюте.
func ZeroCost(currency string) ShippingCost {
	return ShippingCost{Amount: decimal.Zero, Currency: currency}
}

// IsZero сообщает, что доставка бесплатна и строку добавлять не нужно.
func (c ShippingCost) IsZero() bool {
	return c.Amount.IsZero()
}

// ShippingRate: тариф перевозчика для выбора способа доставки.
type ShippingRate struct {
	// Method: отображаемое имя способа доставки.
	Method    string
	CarrierID string
	Rate      decimal.Decimal
	Currency  string
	Metadata  map[string]string
}

// Scope передаёт явный контекст вызова вместо ambient-состояния транзакции.
type Scope struct {
	// CompanyID: компания, от лица которой выполняется расчёт.
	CompanyID string
	// IgnoreComputation подавляет пересчёт доставки при массовом изменении строк.
	IgnoreComputation bool
}

// WithIgnoreComputation возвращает копию scope с выключенным пересчётом.
func (s Scope) WithIgnoreComputation() Scope {
	s.IgnoreComputation = true
	return s
}
