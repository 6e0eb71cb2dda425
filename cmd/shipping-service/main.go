package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/app"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/version"
)

const (
	envGRPCAddr                = "CP_GRPC_ADDR"
	envMetricsAddr             = "CP_METRICS_ADDR"
	envStorageDriver           = "CP_STORAGE_DRIVER"
	envPostgresDSN             = "CP_POSTGRES_DSN"
	envPostgresAutoMigrate     = "CP_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns        = "CP_POSTGRES_MAX_CONNS"
	envPostgresMaxIdleConns    = "CP_POSTGRES_MAX_IDLE_CONNS"
	envPostgresConnMaxLifetime = "CP_POSTGRES_CONN_MAX_LIFETIME"
	envCatalogPath             = "CP_CATALOG_PATH"
	envKafkaBrokers            = "CP_KAFKA_BROKERS"
	envOutboxPollInterval      = "CP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize         = "CP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts       = "CP_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay        = "CP_OUTBOX_RETRY_DELAY"
	envOutboxBacklogMaxPending = "CP_OUTBOX_BACKLOG_MAX_PENDING"
	envOutboxBacklogMaxAge     = "CP_OUTBOX_BACKLOG_MAX_AGE"
	envLogLevel                = "CP_LOG_LEVEL"
)

type envLookup func(string) (string, bool)

// envSetting связывает переменную окружения с полем app.Config.
type envSetting struct {
	key   string
	apply func(cfg *app.Config, raw string) error
}

var envSettings = []envSetting{
	{envGRPCAddr, text(func(c *app.Config) *string { return &c.GRPCAddr })},
	{envMetricsAddr, text(func(c *app.Config) *string { return &c.MetricsAddr })},
	{envStorageDriver, func(c *app.Config, raw string) error {
		c.StorageDriver = strings.ToLower(raw)
		return nil
	}},
	{envPostgresDSN, text(func(c *app.Config) *string { return &c.PostgresDSN })},
	{envPostgresAutoMigrate, flag(func(c *app.Config) *bool { return &c.PostgresAutoMigrate })},
	{envPostgresMaxConns, number(func(c *app.Config) *int { return &c.PostgresPool.MaxOpenConns }, 1)},
	{envPostgresMaxIdleConns, number(func(c *app.Config) *int { return &c.PostgresPool.MaxIdleConns }, 0)},
	{envPostgresConnMaxLifetime, duration(func(c *app.Config) *time.Duration { return &c.PostgresPool.ConnMaxLifetime }, time.Second)},
	{envCatalogPath, text(func(c *app.Config) *string { return &c.CatalogPath })},
	{envKafkaBrokers, text(func(c *app.Config) *string { return &c.KafkaBrokers })},
	{envOutboxPollInterval, duration(func(c *app.Config) *time.Duration { return &c.OutboxPollInterval }, time.Millisecond)},
	{envOutboxBatchSize, number(func(c *app.Config) *int { return &c.OutboxBatchSize }, 1)},
	{envOutboxMaxAttempts, number(func(c *app.Config) *int { return &c.OutboxMaxAttempts }, 1)},
	{envOutboxRetryDelay, duration(func(c *app.Config) *time.Duration { return &c.OutboxRetryDelay }, 0)},
	{envOutboxBacklogMaxPending, number(func(c *app.Config) *int { return &c.OutboxBacklogMaxPending }, 1)},
	{envOutboxBacklogMaxAge, duration(func(c *app.Config) *time.Duration { return &c.OutboxBacklogMaxAge }, time.Second)},
}

func text(field func(*app.Config) *string) func(*app.Config, string) error {
	return func(c *app.Config, raw string) error {
		*field(c) = raw
		return nil
	}
}

func flag(field func(*app.Config) *bool) func(*app.Config, string) error {
	return func(c *app.Config, raw string) error {
		v, err := parseBool(raw)
		if err != nil {
			return err
		}
		*field(c) = v
		return nil
	}
}

func number(field func(*app.Config) *int, minimum int) func(*app.Config, string) error {
	return func(c *app.Config, raw string) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		if v < minimum {
			return fmt.Errorf("must be >= %d", minimum)
		}
		*field(c) = v
		return nil
	}
}

func duration(field func(*app.Config) *time.Duration, minimum time.Duration) func(*app.Config, string) error {
	return func(c *app.Config, raw string) error {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		if v < minimum {
			return fmt.Errorf("must be >= %s", minimum)
		}
		*field(c) = v
		return nil
	}
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := nonEmpty(lookup, envLogLevel)
	if !ok {
		return nil
	}
	level, err := log.ParseLevel(raw)
	if err != nil {
		return []string{fmt.Sprintf("%s: %v, using %s", envLogLevel, err, log.InfoLevel)}
	}
	log.SetLevel(level)
	return nil
}

// readConfigFromEnv собирает конфигурацию из окружения. Некорректное значение
// не роняет запуск: поле остаётся по умолчанию, а в ответ добавляется предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	for _, setting := range envSettings {
		raw, ok := nonEmpty(lookup, setting.key)
		if !ok {
			continue
		}
		if err := setting.apply(&cfg, raw); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", setting.key, raw, err))
		}
	}
	return cfg, warnings
}

func nonEmpty(lookup envLookup, key string) (string, bool) {
	raw, ok := lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func main() {
	logWarnings := setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range append(logWarnings, warnings...) {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := version.Current()
	log.WithFields(log.Fields{
		"version":        build.Version,
		"commit":         build.ShortCommit(),
		"built":          build.Date,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"catalog":        cfg.CatalogPath,
		"kafka_enabled":  cfg.KafkaBrokers != "",
	}).Info("запускаем ShippingCostService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("ShippingCostService остановлен")
}
