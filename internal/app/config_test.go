package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/storage/postgres"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.True(t, cfg.PostgresAutoMigrate)
	assert.Equal(t, postgres.DefaultPoolConfig(), cfg.PostgresPool)
	assert.NotEmpty(t, cfg.CatalogPath)
	assert.Empty(t, cfg.KafkaBrokers, "kafka is opt-in")

	assert.Positive(t, cfg.OutboxPollInterval)
	assert.Positive(t, cfg.OutboxBatchSize)
	assert.Positive(t, cfg.OutboxMaxAttempts)
	assert.GreaterOrEqual(t, cfg.OutboxRetryDelay, time.Duration(0))
	assert.Equal(t, 1000, cfg.OutboxBacklogMaxPending)
	assert.Equal(t, 5*time.Minute, cfg.OutboxBacklogMaxAge)
}

func TestDefaultConfig_StartsWithoutExternalServices(t *testing.T) {
	cfg := DefaultConfig()

	brokers, err := parseBrokers(cfg.KafkaBrokers)
	assert.NoError(t, err)
	assert.Empty(t, brokers)
	assert.Contains(t, supportedStorageDrivers(), cfg.StorageDriver)
	assert.Empty(t, cfg.PostgresDSN)
}
