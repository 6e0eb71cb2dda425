package app

import (
	"time"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/storage/postgres"
)

// Поддерживаемые драйверы хранилища заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса расчёта доставки.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver string
	PostgresDSN   string
	// PostgresAutoMigrate применяет миграции при старте; без него сервис
	// только предупреждает о непримененных миграциях.
	PostgresAutoMigrate bool
	PostgresPool        postgres.PoolConfig

	// CatalogPath: YAML со справочниками валют, компаний, товаров, прайс-листов и перевозчиков.
	CatalogPath string

	// KafkaBrokers: список брокеров через запятую; пустое значение отключает Kafka.
	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	// Пороги, после которых backlog outbox переводит /healthz в degraded.
	OutboxBacklogMaxPending int
	OutboxBacklogMaxAge     time.Duration
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                ":50051",
		MetricsAddr:             ":9090",
		StorageDriver:           StorageDriverMemory,
		PostgresAutoMigrate:     true,
		PostgresPool:            postgres.DefaultPoolConfig(),
		CatalogPath:             "configs/catalog.yaml",
		OutboxPollInterval:      time.Second,
		OutboxBatchSize:         100,
		OutboxMaxAttempts:       3,
		OutboxRetryDelay:        100 * time.Millisecond,
		OutboxBacklogMaxPending: 1000,
		OutboxBacklogMaxAge:     5 * time.Minute,
	}
}
