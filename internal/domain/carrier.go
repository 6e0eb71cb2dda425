package domain

// CostMethod определяет способ расчёта стоимости доставки перевозчика.
type CostMethod string

const (
	// CostMethodProduct: стоимость доставки равна прайсовой цене товара перевозчика.
	CostMethodProduct CostMethod = "product"
	// CostMethodPriceList: стоимость доставки считается по прайс-листу перевозчика.
	CostMethodPriceList CostMethod = "pricelist"
)

// Valid сообщает, поддерживается ли метод расчёта.
func (m CostMethod) Valid() bool {
	switch m {
	case CostMethodProduct, CostMethodPriceList:
		return true
	default:
		return false
	}
}

// Carrier описывает способ доставки и его настройки тарификации.
type Carrier struct {
	ID         string
	Name       string
	CostMethod CostMethod
	// PriceListID обязателен только для CostMethodPriceList.
	PriceListID string
	// ProductID: продаваемый товар, которым строка доставки попадает в заказ.
	ProductID string
}

// UsesPriceList сообщает, тарифицируется ли перевозчик по прайс-листу.
func (c Carrier) UsesPriceList() bool {
	return c.CostMethod == CostMethodPriceList
}

// Validate проверяет инварианты перевозчика.
func (c *Carrier) Validate() []error {
	var errs []error

	if c.ID == "" {
		errs = append(errs, ErrCarrierIDRequired)
	}
	if !c.CostMethod.Valid() {
		errs = append(errs, ErrCarrierCostMethodInvalid)
	}
	if c.ProductID == "" {
		errs = append(errs, ErrCarrierProductRequired)
	}
	if c.UsesPriceList() && c.PriceListID == "" {
		errs = append(errs, ErrCarrierPriceListRequired)
	}

	return errs
}
