package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCompanyNotInContext: расчёт вызван без компании в scope.
	ErrCompanyNotInContext = errors.New("company not in context")
	// ErrCompanyNotFound: компания из scope не найдена в каталоге.
	ErrCompanyNotFound = errors.New("company not found")
	// ErrPriceListCarrierNotFound: в системе нет перевозчика с методом pricelist.
	ErrPriceListCarrierNotFound = errors.New("pricelist carrier not found")
	// ErrPriceListCarrierAmbiguous: перевозчиков с методом pricelist больше одного.
	ErrPriceListCarrierAmbiguous = fmt.Errorf("%w: more than one pricelist carrier configured", ErrPriceListCarrierNotFound)

	// Ошибка отсутствующей компании у заказа.
	ErrCompanyRequired = errors.New("company_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствующего клиента при расчёте по прайс-листу.
	ErrCustomerRequired = errors.New("customer is required")
	// Ошибка неизвестного типа строки.
	ErrLineTypeInvalid = errors.New("line type must be line or comment")
	// Ошибка отрицательного количества в строке.
	ErrLineQuantityInvalid = errors.New("line quantity must be non-negative")
	// Ошибка отрицательной цены в строке.
	ErrLinePriceInvalid = errors.New("line unit price must be non-negative")
	// Ошибка товарной строки без товара и описания.
	ErrLineProductRequired = errors.New("line requires product or description")
	// ErrSaleCarrierRequired: у заказа не выбран перевозчик.
	ErrSaleCarrierRequired = errors.New("sale carrier is required")

	ErrCarrierIDRequired        = errors.New("carrier id is required")
	ErrCarrierCostMethodInvalid = errors.New("carrier cost method is invalid")
	ErrCarrierProductRequired   = errors.New("carrier product is required")
	// ErrCarrierPriceListRequired: нарушен инвариант: метод pricelist без прайс-листа.
	ErrCarrierPriceListRequired = errors.New("price list is required for pricelist cost method")

	ErrCarrierNotFound   = errors.New("carrier not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrPriceListNotFound = errors.New("price list not found")
	ErrCurrencyNotFound  = errors.New("currency not found")
	// ErrCurrencyRateInvalid: курс валюты нулевой или отрицательный.
	ErrCurrencyRateInvalid = errors.New("currency rate must be positive")

	// ErrSaleNotFound возвращается, если заказ не найден в репозитории.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrShipmentNotFound возвращается, если отгрузка не найдена.
	ErrShipmentNotFound = errors.New("shipment not found")
	// ErrSaleVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrSaleVersionConflict = errors.New("sale version conflict")
	// ErrInvalidTransition: переход между состояниями заказа недопустим.
	ErrInvalidTransition = errors.New("invalid sale state transition")
	// ErrSaleNotEditable: строки можно менять только у черновика.
	ErrSaleNotEditable = errors.New("sale lines can only be changed in draft")
	// ErrOutboxPublish: сообщение не удалось опубликовать за все попытки.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound: сообщения с таким id нет в outbox.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrSaleVersionConflict)
}

// IsConfigurationError сообщает об ошибке окружения вызова (компания, валюта).
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrCompanyNotInContext) || errors.Is(err, ErrCompanyNotFound)
}

// IsNotFound сообщает, что перевозчик pricelist не найден или не единственен.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPriceListCarrierNotFound)
}
