package app

import (
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/catalog"
	healthcheck "github.com/vladislavdragonenkov/carrier-pricelist/internal/health"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/pricelist"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/version"
)

// newHealthRegistry регистрирует проверки каталога, хранилища и outbox.
// Хранилище и каталог критичны для /readyz, backlog outbox нет.
func newHealthRegistry(cfg Config, cat *catalog.Catalog, engine *pricelist.Engine, deps runtimeDependencies) *healthcheck.Registry {
	registry := healthcheck.NewRegistry(version.GetVersion())
	registry.Register("catalog", healthcheck.NewCatalogChecker(
		cat.Repositories().Carriers,
		engine,
		len(cat.Formulas()),
	), true)
	if deps.storageChecker != nil {
		registry.Register("storage", deps.storageChecker, true)
	}
	if deps.outboxRepo != nil {
		registry.Register("outbox", healthcheck.NewOutboxChecker(
			deps.outboxRepo,
			cfg.OutboxBacklogMaxPending,
			cfg.OutboxBacklogMaxAge,
		), false)
	}
	return registry
}
