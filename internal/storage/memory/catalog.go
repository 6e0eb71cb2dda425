package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// table: потокобезопасный справочник с доступом по ключу.
type table[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func (t *table[T]) put(key string, item T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.items == nil {
		t.items = make(map[string]T)
	}
	t.items[key] = item
}

func (t *table[T]) get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[key]
	return item, ok
}

// CarrierRepository: in-memory реестр перевозчиков.
type CarrierRepository struct {
	table[domain.Carrier]
}

// NewCarrierRepository создаёт реестр с начальным набором перевозчиков.
func NewCarrierRepository(carriers ...domain.Carrier) *CarrierRepository {
	repo := &CarrierRepository{}
	for _, c := range carriers {
		repo.Put(c)
	}
	return repo
}

// Put добавляет или заменяет перевозчика.
func (r *CarrierRepository) Put(carrier domain.Carrier) {
	r.put(carrier.ID, carrier)
}

// Get возвращает перевозчика или ErrCarrierNotFound.
func (r *CarrierRepository) Get(id string) (domain.Carrier, error) {
	carrier, ok := r.get(id)
	if !ok {
		return domain.Carrier{}, domain.ErrCarrierNotFound
	}
	return carrier, nil
}

// FindByCostMethod возвращает перевозчиков метода в стабильном порядке ID.
func (r *CarrierRepository) FindByCostMethod(method domain.CostMethod) ([]domain.Carrier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Carrier, 0)
	for _, c := range r.items {
		if c.CostMethod == method {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ProductRepository: in-memory справочник товаров.
type ProductRepository struct {
	table[domain.Product]
}

// NewProductRepository создаёт справочник товаров.
func NewProductRepository(products ...domain.Product) *ProductRepository {
	repo := &ProductRepository{}
	for _, p := range products {
		repo.Put(p)
	}
	return repo
}

// Put добавляет или заменяет товар.
func (r *ProductRepository) Put(product domain.Product) {
	r.put(product.ID, product)
}

// Get возвращает товар или ErrProductNotFound.
func (r *ProductRepository) Get(id string) (domain.Product, error) {
	product, ok := r.get(id)
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// PriceListRepository: in-memory справочник прайс-листов.
type PriceListRepository struct {
	table[domain.PriceList]
}

// NewPriceListRepository создаёт справочник прайс-листов.
func NewPriceListRepository(lists ...domain.PriceList) *PriceListRepository {
	repo := &PriceListRepository{}
	for _, pl := range lists {
		repo.Put(pl)
	}
	return repo
}

// Put добавляет или заменяет прайс-лист; строки сортируются по sequence.
func (r *PriceListRepository) Put(list domain.PriceList) {
	lines := make([]domain.PriceListLine, len(list.Lines))
	copy(lines, list.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Sequence < lines[j].Sequence })
	list.Lines = lines
	r.put(list.ID, list)
}

// Get возвращает прайс-лист или ErrPriceListNotFound.
func (r *PriceListRepository) Get(id string) (domain.PriceList, error) {
	list, ok := r.get(id)
	if !ok {
		return domain.PriceList{}, domain.ErrPriceListNotFound
	}
	return list, nil
}

// CompanyRepository: in-memory справочник компаний.
type CompanyRepository struct {
	table[domain.Company]
}

// NewCompanyRepository создаёт справочник компаний.
func NewCompanyRepository(companies ...domain.Company) *CompanyRepository {
	repo := &CompanyRepository{}
	for _, c := range companies {
		repo.Put(c)
	}
	return repo
}

// Put добавляет или заменяет компанию.
func (r *CompanyRepository) Put(company domain.Company) {
	r.put(company.ID, company)
}

// Get возвращает компанию или ErrCompanyNotFound.
func (r *CompanyRepository) Get(id string) (domain.Company, error) {
	company, ok := r.get(id)
	if !ok {
		return domain.Company{}, domain.ErrCompanyNotFound
	}
	return company, nil
}

// CurrencyRepository: in-memory справочник валют.
type CurrencyRepository struct {
	table[domain.Currency]
}

// NewCurrencyRepository создаёт справочник валют.
func NewCurrencyRepository(currencies ...domain.Currency) *CurrencyRepository {
	repo := &CurrencyRepository{}
	for _, c := range currencies {
		repo.Put(c)
	}
	return repo
}

// Put добавляет или заменяет валюту.
func (r *CurrencyRepository) Put(currency domain.Currency) {
	r.put(currency.Code, currency)
}

// Get возвращает валюту или ErrCurrencyNotFound.
func (r *CurrencyRepository) Get(code string) (domain.Currency, error) {
	currency, ok := r.get(code)
	if !ok {
		return domain.Currency{}, domain.ErrCurrencyNotFound
	}
	return currency, nil
}

var (
	_ domain.CarrierRepository   = (*CarrierRepository)(nil)
	_ domain.ProductRepository   = (*ProductRepository)(nil)
	_ domain.PriceListRepository = (*PriceListRepository)(nil)
	_ domain.CompanyRepository   = (*CompanyRepository)(nil)
	_ domain.CurrencyRepository  = (*CurrencyRepository)(nil)
)
