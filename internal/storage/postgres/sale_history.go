package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// SaleHistory хранит историю заказов в таблице sale_history.
type SaleHistory struct {
	db *sql.DB
}

// NewSaleHistory создаёт историю поверх store.
func NewSaleHistory(store *Store) *SaleHistory {
	return &SaleHistory{db: store.DB()}
}

func (h *SaleHistory) Record(ctx context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}
	err := h.db.QueryRowContext(ctx, `
		INSERT INTO sale_history (sale_id, event, from_state, to_state, reason, occurred)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, entry.SaleID, entry.Event, string(entry.From), string(entry.To), entry.Reason, entry.Occurred).Scan(&entry.Seq)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("record %s for sale %s: %w", entry.Event, entry.SaleID, err)
	}
	return entry, nil
}

func (h *SaleHistory) History(ctx context.Context, saleID string, limit int) ([]domain.HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// LIMIT NULL в PostgreSQL означает без ограничения.
	rows, err := h.db.QueryContext(ctx, `
		SELECT seq, sale_id, event, from_state, to_state, reason, occurred
		FROM (
			SELECT * FROM sale_history
			WHERE sale_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`, saleID, sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, fmt.Errorf("query history of sale %s: %w", saleID, err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			entry    domain.HistoryEntry
			from, to string
		)
		if err := rows.Scan(&entry.Seq, &entry.SaleID, &entry.Event, &from, &to, &entry.Reason, &entry.Occurred); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.From, entry.To = domain.SaleState(from), domain.SaleState(to)
		entry.Occurred = entry.Occurred.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

var _ domain.SaleHistory = (*SaleHistory)(nil)
