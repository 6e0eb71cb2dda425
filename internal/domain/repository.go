package domain

// SaleRepository описывает требования к хранилищу заказов.
type SaleRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(sale Sale) error
	// Get возвращает заказ по идентификатору или ErrSaleNotFound, если его нет.
	Get(id string) (Sale, error)
	// ListByParty возвращает заказы клиента, новые первыми; при limit <= 0 без ограничения.
	ListByParty(partyID string, limit int) ([]Sale, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(sale Sale) error
}

// ShipmentRepository хранит исходящие отгрузки.
type ShipmentRepository interface {
	Create(shipment Shipment) error
	Get(id string) (Shipment, error)
	ListBySale(saleID string) ([]Shipment, error)
}

// CarrierRepository: реестр перевозчиков.
type CarrierRepository interface {
	Get(id string) (Carrier, error)
	// FindByCostMethod возвращает всех перевозчиков с указанным методом расчёта.
	FindByCostMethod(method CostMethod) ([]Carrier, error)
}

// ProductRepository: справочник товаров.
type ProductRepository interface {
	Get(id string) (Product, error)
}

// PriceListRepository: справочник прайс-листов.
type PriceListRepository interface {
	Get(id string) (PriceList, error)
}

// CompanyRepository: справочник компаний.
type CompanyRepository interface {
	Get(id string) (Company, error)
}

// CurrencyRepository: справочник валют и курсов.
type CurrencyRepository interface {
	Get(code string) (Currency, error)
}
