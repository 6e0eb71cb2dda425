package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SaleState описывает жизненный цикл продажи.
type SaleState string

const (
	// SaleStateDraft: черновик, строки можно менять.
	SaleStateDraft SaleState = "draft"
	// SaleStateQuotation: коммерческое предложение отправлено клиенту.
	SaleStateQuotation SaleState = "quotation"
	// SaleStateConfirmed: клиент подтвердил заказ.
	SaleStateConfirmed SaleState = "confirmed"
	// SaleStateProcessing: по заказу созданы отгрузки.
	SaleStateProcessing SaleState = "processing"
	// SaleStateCanceled: заказ отменён.
	SaleStateCanceled SaleState = "cancel"
)

// LineType различает товарные строки и служебные (комментарии, подзаголовки).
type LineType string

const (
	LineTypeLine    LineType = "line"
	LineTypeComment LineType = "comment"
)

// Valid сообщает, известен ли тип строки.
func (t LineType) Valid() bool {
	return t == LineTypeLine || t == LineTypeComment
}

// SaleLine: строка заказа.
type SaleLine struct {
	ID          string
	Type        LineType
	ProductID   string
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	// ShipmentCost заполнен только у строки стоимости доставки.
	ShipmentCost decimal.NullDecimal
	Taxes        []string
	Sequence     int
}

// IsShippingCost сообщает, что строка добавлена расчётом доставки.
func (l SaleLine) IsShippingCost() bool {
	return l.ShipmentCost.Valid
}

// Sale агрегирует заказ клиента.
type Sale struct {
	ID           string
	Reference    string
	CompanyID    string
	PartyID      string
	CurrencyCode string
	CarrierID    string
	State        SaleState
	Lines        []SaleLine
	// ShippingEstimate обновляется при изменении строк черновика.
	ShippingEstimate ShippingCost
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TotalAmount суммирует строки заказа (налоги не рассчитываются).
func (s *Sale) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		if line.Type != LineTypeLine {
			continue
		}
		total = total.Add(line.Amount)
	}
	return total
}

// ShippingLines возвращает строки стоимости доставки.
func (s *Sale) ShippingLines() []SaleLine {
	var result []SaleLine
	for _, line := range s.Lines {
		if line.IsShippingCost() {
			result = append(result, line)
		}
	}
	return result
}

// ProductLines возвращает строки с товаром, кроме строк доставки.
func (s *Sale) ProductLines() []SaleLine {
	var result []SaleLine
	for _, line := range s.Lines {
		if line.ProductID == "" || line.IsShippingCost() {
			continue
		}
		result = append(result, line)
	}
	return result
}

// SortLines упорядочивает строки по sequence, сохраняя исходный порядок равных.
func (s *Sale) SortLines() {
	sort.SliceStable(s.Lines, func(i, j int) bool {
		return s.Lines[i].Sequence < s.Lines[j].Sequence
	})
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (s *Sale) ValidateInvariants() []error {
	var errs []error

	if s.CompanyID == "" {
		errs = append(errs, ErrCompanyRequired)
	}
	if s.CurrencyCode == "" {
		errs = append(errs, ErrCurrencyRequired)
	}

	for _, line := range s.Lines {
		if !line.Type.Valid() {
			errs = append(errs, ErrLineTypeInvalid)
		}
		if line.Quantity.IsNegative() {
			errs = append(errs, ErrLineQuantityInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
		if line.Type == LineTypeLine && line.ProductID == "" && line.Description == "" {
			errs = append(errs, ErrLineProductRequired)
		}
	}

	return errs
}
