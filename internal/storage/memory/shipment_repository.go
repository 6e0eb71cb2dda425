package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// shipmentRepositoryInMemory хранит отгрузки в памяти.
type shipmentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Shipment
}

// NewShipmentRepository создаёт in-memory реализацию ShipmentRepository.
func NewShipmentRepository() domain.ShipmentRepository {
	return &shipmentRepositoryInMemory{items: make(map[string]domain.Shipment)}
}

func (r *shipmentRepositoryInMemory) Create(shipment domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[shipment.ID]; exists {
		return domain.ErrSaleVersionConflict
	}
	shipment.Moves = append([]domain.Move(nil), shipment.Moves...)
	r.items[shipment.ID] = shipment
	return nil
}

func (r *shipmentRepositoryInMemory) Get(id string) (domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shipment, ok := r.items[id]
	if !ok {
		return domain.Shipment{}, domain.ErrShipmentNotFound
	}
	shipment.Moves = append([]domain.Move(nil), shipment.Moves...)
	return shipment, nil
}

// ListBySale возвращает отгрузки заказа в порядке создания.
func (r *shipmentRepositoryInMemory) ListBySale(saleID string) ([]domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Shipment
	for _, shipment := range r.items {
		if shipment.SaleID != saleID {
			continue
		}
		shipment.Moves = append([]domain.Move(nil), shipment.Moves...)
		result = append(result, shipment)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ domain.ShipmentRepository = (*shipmentRepositoryInMemory)(nil)
