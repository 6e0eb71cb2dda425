package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultOutboxBatch = 100
)

// OutboxRepository хранит transactional outbox в таблице outbox_messages.
// Порядок выдачи задаёт seq, а не created_at: у событий одной транзакции время совпадает.
type OutboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutboxRepository создаёт репозиторий outbox поверх store.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{db: store.DB(), now: time.Now}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Attempts = 0
	msg.CreatedAt = r.now().UTC()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages
			(id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, outboxPending, msg.CreatedAt,
	); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for %s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, attempt_count, created_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY seq
		LIMIT $2`, outboxPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType,
			&msg.Payload, &msg.Attempts, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		batch = append(batch, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending outbox: %w", err)
	}
	return batch, nil
}

// Stats считает pending и failed одним проходом по индексу (status, created_at).
func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			MIN(created_at) FILTER (WHERE status = $1)
		FROM outbox_messages
		WHERE status IN ($1, $2)`, outboxPending, outboxFailed,
	).Scan(&stats.Pending, &stats.Failed, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPending = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.finish(ctx, id, outboxSent, "")
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.finish(ctx, id, outboxFailed, reason)
}

func (r *OutboxRepository) finish(ctx context.Context, id, status, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, last_error = $3, attempt_count = attempt_count + 1, updated_at = $4
		WHERE id = $1`, id, status, reason, r.now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox %s %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox %s %s: %w", id, status, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	}
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
