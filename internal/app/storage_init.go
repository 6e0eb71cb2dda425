package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/carrier-pricelist/internal/health"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/storage/memory"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/storage/postgres"
)

// runtimeDependencies: изменяемые хранилища выбранного драйвера.
type runtimeDependencies struct {
	driver         string
	sales          domain.SaleRepository
	shipments      domain.ShipmentRepository
	outboxRepo     domain.OutboxRepository
	history        domain.SaleHistory
	storageChecker healthcheck.Checker
	closeFn        func() error
}

type storageOpener func(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error)

var storageDrivers = map[string]storageOpener{
	StorageDriverMemory:   openMemoryStorage,
	StorageDriverPostgres: openPostgresStorage,
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}
	open, ok := storageDrivers[driver]
	if !ok {
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q (supported: %s)", cfg.StorageDriver, supportedStorageDrivers())
	}

	deps, err := open(ctx, cfg, logger.WithField("storage", driver))
	if err != nil {
		return runtimeDependencies{}, err
	}
	deps.driver = driver
	return deps, nil
}

func supportedStorageDrivers() string {
	names := make([]string, 0, len(storageDrivers))
	for name := range storageDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func openMemoryStorage(_ context.Context, _ Config, logger *log.Entry) (runtimeDependencies, error) {
	logger.Info("using in-memory storage, sales are lost on restart")
	return runtimeDependencies{
		sales:      memory.NewSaleRepository(),
		shipments:  memory.NewShipmentRepository(),
		outboxRepo: memory.NewOutboxRepository(),
		history:    memory.NewSaleHistory(),
	}, nil
}

func openPostgresStorage(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return runtimeDependencies{}, fmt.Errorf("postgres storage requires CP_POSTGRES_DSN")
	}

	store, err := postgres.OpenWithPool(ctx, dsn, cfg.PostgresPool)
	if err != nil {
		return runtimeDependencies{}, fmt.Errorf("open postgres: %w", err)
	}
	if err := prepareSchema(ctx, store, cfg.PostgresAutoMigrate, logger); err != nil {
		_ = store.Close()
		return runtimeDependencies{}, err
	}

	return runtimeDependencies{
		sales:          postgres.NewSaleRepository(store),
		shipments:      postgres.NewShipmentRepository(store),
		outboxRepo:     postgres.NewOutboxRepository(store),
		history:        postgres.NewSaleHistory(store),
		storageChecker: healthcheck.CheckFunc(store.Ping),
		closeFn:        store.Close,
	}, nil
}

// prepareSchema применяет миграции или, если автомиграция выключена,
// предупреждает о расхождении схемы со встроенными миграциями.
func prepareSchema(ctx context.Context, store *postgres.Store, autoMigrate bool, logger *log.Entry) error {
	if autoMigrate {
		applied, err := store.MigrateUp(ctx, 0)
		if err != nil {
			return fmt.Errorf("migrate postgres schema: %w", err)
		}
		for _, m := range applied {
			logger.WithField("migration", m.String()).Info("migration applied")
		}
		return nil
	}

	report, err := store.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("read postgres schema version: %w", err)
	}
	entry := logger.WithField("schema_version", report.Current)
	if len(report.Pending) > 0 {
		entry.WithField("pending", len(report.Pending)).Warn("postgres schema has pending migrations, run cmd/migrate")
	}
	for _, m := range report.Drifted() {
		entry.WithField("migration", m.String()).Warn("applied migration differs from the embedded file")
	}
	return nil
}
