package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

type outboxStatus uint8

const (
	outboxPending outboxStatus = iota
	outboxSent
	outboxFailed
)

const defaultOutboxBatch = 100

type outboxEntry struct {
	msg    domain.OutboxMessage
	status outboxStatus
	reason string
}

// OutboxRepository: outbox в памяти процесса. Очередь хранится в порядке
// постановки, поэтому Pending не сортирует.
type OutboxRepository struct {
	mu    sync.Mutex
	queue []*outboxEntry
	byID  map[string]*outboxEntry
	now   func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{byID: make(map[string]*outboxEntry), now: time.Now}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, dup := r.byID[msg.ID]; dup {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s: duplicate outbox id %s", msg.EventType, msg.ID)
	}
	msg.Attempts = 0
	msg.CreatedAt = r.now().UTC()
	msg.Payload = append([]byte(nil), msg.Payload...)

	entry := &outboxEntry{msg: msg}
	r.queue = append(r.queue, entry)
	r.byID[msg.ID] = entry
	return msg, nil
}

func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var batch []domain.OutboxMessage
	for _, entry := range r.queue {
		if len(batch) == limit {
			break
		}
		if entry.status == outboxPending {
			batch = append(batch, entry.msg)
		}
	}
	return batch, nil
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, entry := range r.queue {
		switch entry.status {
		case outboxPending:
			if stats.Pending == 0 {
				stats.OldestPending = entry.msg.CreatedAt
			}
			stats.Pending++
		case outboxFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.finish(ctx, id, outboxSent, "")
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.finish(ctx, id, outboxFailed, reason)
}

func (r *OutboxRepository) finish(ctx context.Context, id string, status outboxStatus, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	}
	entry.status = status
	entry.reason = reason
	entry.msg.Attempts++
	return nil
}

// FailureReason возвращает причину отказа для сообщения в статусе failed.
func (r *OutboxRepository) FailureReason(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok || entry.status != outboxFailed {
		return "", false
	}
	return entry.reason, true
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
