package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

func saleEvent(saleID, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: "sale",
		AggregateID:   saleID,
		EventType:     eventType,
		Payload:       []byte(`{"sale_id":"` + saleID + `"}`),
	}
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	repo := NewOutboxRepository(openPostgresStoreForIntegrationTest(t))
	ctx := context.Background()

	created, err := repo.Enqueue(ctx, saleEvent("sale-1", "SaleCreated"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	fixed := saleEvent("sale-1", "SaleQuoted")
	fixed.ID = "outbox-fixed-id"
	quoted, err := repo.Enqueue(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, "outbox-fixed-id", quoted.ID)

	_, err = repo.Enqueue(ctx, fixed)
	require.Error(t, err, "ids are unique")

	pending, err := repo.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, []string{created.ID, quoted.ID}, []string{pending[0].ID, pending[1].ID})
	assert.JSONEq(t, `{"sale_id":"sale-1"}`, string(pending[0].Payload))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Zero(t, stats.Failed)
	assert.WithinDuration(t, created.CreatedAt, stats.OldestPending, time.Millisecond)

	require.NoError(t, repo.MarkSent(ctx, created.ID))
	require.NoError(t, repo.MarkFailed(ctx, quoted.ID, "broker unavailable"))

	pending, err = repo.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStats{Failed: 1}, stats)

	var lastError string
	var attempts int
	require.NoError(t, repo.db.QueryRowContext(ctx,
		`SELECT last_error, attempt_count FROM outbox_messages WHERE id = $1`, quoted.ID,
	).Scan(&lastError, &attempts))
	assert.Equal(t, "broker unavailable", lastError)
	assert.Equal(t, 1, attempts)
}

func TestOutboxRepository_PendingOrderFollowsSequence(t *testing.T) {
	repo := NewOutboxRepository(openPostgresStoreForIntegrationTest(t))
	frozen := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }
	ctx := context.Background()

	var ids []string
	for _, event := range []string{"SaleCreated", "SaleStateChanged", "ShippingLineReplaced"} {
		msg, err := repo.Enqueue(ctx, saleEvent("sale-2", event))
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	batch, err := repo.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, ids[:2], []string{batch[0].ID, batch[1].ID})
	assert.Equal(t, frozen, batch[0].CreatedAt)
}

func TestOutboxRepository_MarkUnknownID(t *testing.T) {
	repo := NewOutboxRepository(openPostgresStoreForIntegrationTest(t))
	ctx := context.Background()

	require.ErrorIs(t, repo.MarkSent(ctx, "missing-outbox"), domain.ErrOutboxMessageNotFound)
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing-outbox", "x"), domain.ErrOutboxMessageNotFound)
}
