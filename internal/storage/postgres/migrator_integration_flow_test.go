package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labels(states []MigrationState) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, s.String())
	}
	return out
}

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	_, err := store.MigrateDown(ctx, 100)
	require.NoError(t, err)

	report, err := store.Migrations(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Current)
	assert.Empty(t, report.Applied)
	assert.Len(t, report.Pending, 3)

	applied, err := store.MigrateUp(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_sales", "0002_shipments"}, labels(applied))

	applied, err = store.MigrateUp(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0003_outbox_history"}, labels(applied))

	applied, err = store.MigrateUp(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, applied, "second up must be a no-op")

	report, err = store.Migrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Current)
	assert.Len(t, report.Applied, 3)
	assert.Empty(t, report.Pending)
	assert.Empty(t, report.Drifted())
	for _, m := range report.Applied {
		assert.True(t, m.Applied(), m.String())
	}

	rolledBack, err := store.MigrateDown(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0003_outbox_history"}, labels(rolledBack))

	report, err = store.Migrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Current)
	assert.Equal(t, []string{"0003_outbox_history"}, labels(report.Pending))

	rolledBack, err = store.MigrateDown(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_shipments", "0001_sales"}, labels(rolledBack))

	rolledBack, err = store.MigrateDown(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, rolledBack)

	require.NoError(t, store.EnsureSchema(ctx))
}

func TestMigrator_DriftStopsMigrateUp(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, store.EnsureSchema(ctx))
	_, err := store.DB().ExecContext(ctx, `UPDATE schema_migrations SET checksum = 'edited' WHERE version = 1`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.DB().ExecContext(context.Background(), `UPDATE schema_migrations SET checksum = '' WHERE version = 1`)
	})

	report, err := store.Migrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_sales"}, labels(report.Drifted()))

	_, err = store.MigrateUp(ctx, 0)
	require.ErrorIs(t, err, ErrMigrationDrift)
}

func TestMigrator_NilStore(t *testing.T) {
	var store *Store
	ctx := context.Background()

	_, err := store.MigrateUp(ctx, 0)
	require.ErrorIs(t, err, errStoreNotInitialized)
	_, err = store.MigrateDown(ctx, 1)
	require.ErrorIs(t, err, errStoreNotInitialized)
	_, err = store.Migrations(ctx)
	require.ErrorIs(t, err, errStoreNotInitialized)
	require.ErrorIs(t, store.EnsureSchema(ctx), errStoreNotInitialized)
}
