package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// saleRepositoryInMemory: простая in-memory реализация SaleRepository.
type saleRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Sale
}

// NewSaleRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewSaleRepository() domain.SaleRepository {
	return &saleRepositoryInMemory{
		items: make(map[string]domain.Sale),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *saleRepositoryInMemory) Create(sale domain.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[sale.ID]; exists {
		return domain.ErrSaleVersionConflict
	}
	r.items[sale.ID] = cloneSale(sale)
	return nil
}

// Get возвращает заказ или ErrSaleNotFound, если его нет.
func (r *saleRepositoryInMemory) Get(id string) (domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.items[id]
	if !ok {
		return domain.Sale{}, domain.ErrSaleNotFound
	}
	return cloneSale(sale), nil
}

// ListByParty возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *saleRepositoryInMemory) ListByParty(partyID string, limit int) ([]domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Sale, 0, len(r.items))
	for _, sale := range r.items {
		if sale.PartyID != partyID {
			continue
		}
		result = append(result, cloneSale(sale))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *saleRepositoryInMemory) Save(sale domain.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[sale.ID]
	if !ok {
		return domain.ErrSaleNotFound
	}
	if current.Version != sale.Version {
		return domain.ErrSaleVersionConflict
	}
	sale.Version++
	r.items[sale.ID] = cloneSale(sale)
	return nil
}

// cloneSale копирует строки, чтобы вызывающий код не менял сохранённый заказ.
func cloneSale(sale domain.Sale) domain.Sale {
	if sale.Lines != nil {
		lines := make([]domain.SaleLine, len(sale.Lines))
		for i, line := range sale.Lines {
			if line.Taxes != nil {
				line.Taxes = append([]string{}, line.Taxes...)
			}
			lines[i] = line
		}
		sale.Lines = lines
	}
	return sale
}

var _ domain.SaleRepository = (*saleRepositoryInMemory)(nil)
