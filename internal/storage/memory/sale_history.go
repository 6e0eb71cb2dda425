package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// SaleHistory хранит историю заказов в памяти. Seq сквозной для всех
// заказов, как у BIGSERIAL в PostgreSQL.
type SaleHistory struct {
	mu      sync.RWMutex
	seq     int64
	entries map[string][]domain.HistoryEntry
}

// NewSaleHistory создаёт пустую историю.
func NewSaleHistory() *SaleHistory {
	return &SaleHistory{entries: make(map[string][]domain.HistoryEntry)}
}

func (h *SaleHistory) Record(ctx context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.HistoryEntry{}, err
	}
	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	entry.Seq = h.seq
	h.entries[entry.SaleID] = append(h.entries[entry.SaleID], entry)
	return entry, nil
}

func (h *SaleHistory) History(ctx context.Context, saleID string, limit int) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	entries := h.entries[saleID]
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	return append([]domain.HistoryEntry{}, entries...), nil
}

var _ domain.SaleHistory = (*SaleHistory)(nil)
