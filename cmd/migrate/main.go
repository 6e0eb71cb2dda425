package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "CP_POSTGRES_DSN"
)

// migrator: операции postgres.Store, нужные CLI.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) ([]postgres.MigrationState, error)
	MigrateDown(ctx context.Context, steps int) ([]postgres.MigrationState, error)
	Migrations(ctx context.Context) (postgres.MigrationReport, error)
}

// cli: зависимости команды, подменяемые в тестах.
type cli struct {
	getenv func(string) string
	open   func(ctx context.Context, dsn string) (migrator, func() error, error)
	stdout io.Writer
	stderr io.Writer
}

func main() {
	c := cli{
		getenv: os.Getenv,
		open:   openStore,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	os.Exit(c.run(os.Args[1:]))
}

func openStore(ctx context.Context, dsn string) (migrator, func() error, error) {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// run возвращает код выхода: 0 успех, 1 ошибка миграции, 2 ошибка аргументов.
func (c cli) run(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	direction := fs.String("direction", "up", "migration direction: up|down|status")
	steps := fs.Int("steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	dsn := fs.String("dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	timeout := fs.Duration("timeout", defaultTimeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		c.errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		return 2
	}

	connString := strings.TrimSpace(*dsn)
	if connString == "" {
		connString = strings.TrimSpace(c.getenv(envPostgresDSN))
	}
	if connString == "" {
		c.errorf("%s (or -dsn) is required", envPostgresDSN)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	m, closeFn, err := c.open(ctx, connString)
	if err != nil {
		c.errorf("open postgres store: %v", err)
		return 1
	}
	defer func() { _ = closeFn() }()

	if err := runMigration(ctx, m, *direction, *steps, c.stdout); err != nil {
		c.errorf("%v", err)
		return 1
	}
	return 0
}

func runMigration(ctx context.Context, m migrator, direction string, steps int, out io.Writer) error {
	direction = strings.ToLower(strings.TrimSpace(direction))

	var (
		changed []postgres.MigrationState
		verb    string
		err     error
	)
	switch direction {
	case "up":
		verb = "applied"
		changed, err = m.MigrateUp(ctx, steps)
	case "down":
		verb = "rolled back"
		changed, err = m.MigrateDown(ctx, steps)
	case "status":
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	for _, state := range changed {
		_, _ = fmt.Fprintf(out, "%s %s\n", verb, state)
	}

	report, err := m.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintf(out, "version=%d applied=%d pending=%d\n", report.Current, len(report.Applied), len(report.Pending))
	for _, state := range report.Pending {
		_, _ = fmt.Fprintf(out, "  pending %s\n", state)
	}
	for _, state := range report.Drifted() {
		_, _ = fmt.Fprintf(out, "  modified %s (applied %s)\n", state, state.AppliedAt.Format(time.RFC3339))
	}
	for _, version := range report.Unknown {
		_, _ = fmt.Fprintf(out, "  unknown version %d\n", version)
	}
	return nil
}

func (c cli) errorf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.stderr, format+"\n", args...)
}
