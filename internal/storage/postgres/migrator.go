package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsDir     = "sql/migrations"
	migrationLockKey  = int64(50117342)
	migrationLockWait = 5 * time.Second
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// ErrMigrationDrift: применённая миграция отличается от встроенной версии файла.
var ErrMigrationDrift = errors.New("applied migration differs from embedded file")

// MigrationState описывает одну встроенную миграцию. AppliedAt пуст,
// пока миграция не применена.
type MigrationState struct {
	Version   int64
	Name      string
	AppliedAt time.Time
	// Modified: up-скрипт изменился после применения.
	Modified bool
}

// Applied сообщает, записана ли миграция в schema_migrations.
func (m MigrationState) Applied() bool { return !m.AppliedAt.IsZero() }

func (m MigrationState) String() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// MigrationReport: состояние схемы относительно встроенных миграций.
type MigrationReport struct {
	Current int64
	Applied []MigrationState
	Pending []MigrationState
	// Unknown: версии из schema_migrations, для которых нет файлов.
	Unknown []int64
}

// Drifted возвращает применённые миграции с изменённым up-скриптом.
func (r MigrationReport) Drifted() []MigrationState {
	var out []MigrationState
	for _, m := range r.Applied {
		if m.Modified {
			out = append(out, m)
		}
	}
	return out
}

type migration struct {
	Version  int64
	Name     string
	UpSQL    string
	DownSQL  string
	Checksum string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

type appliedMigration struct {
	name      string
	checksum  string
	appliedAt time.Time
}

// MigrateUp применяет не более steps миграций; steps<=0 применяет все.
// Возвращает применённые миграции в порядке применения.
func (s *Store) MigrateUp(ctx context.Context, steps int) ([]MigrationState, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return nil, err
	}

	var done []MigrationState
	err = s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := loadApplied(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			if steps > 0 && len(done) >= steps {
				break
			}
			if prev, ok := applied[m.Version]; ok {
				if prev.checksum != "" && prev.checksum != m.Checksum {
					return fmt.Errorf("%w: %s", ErrMigrationDrift, m.label())
				}
				continue
			}
			if err := runInTx(ctx, conn, "up "+m.label(),
				statement{query: m.UpSQL},
				statement{
					query: `INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES ($1, $2, $3, NOW())`,
					args:  []any{m.Version, m.Name, m.Checksum},
				},
			); err != nil {
				return err
			}
			done = append(done, MigrationState{Version: m.Version, Name: m.Name, AppliedAt: time.Now().UTC()})
		}
		return nil
	})
	return done, err
}

// MigrateDown откатывает steps последних миграций; steps<=0 означает один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) ([]MigrationState, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	if steps <= 0 {
		steps = 1
	}
	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[int64]migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	var done []MigrationState
	err = s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := loadApplied(ctx, conn)
		if err != nil {
			return err
		}
		for _, version := range rollbackOrder(applied, steps) {
			m, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("cannot roll back unknown migration version %d", version)
			}
			if err := runInTx(ctx, conn, "down "+m.label(),
				statement{query: m.DownSQL},
				statement{query: `DELETE FROM schema_migrations WHERE version = $1`, args: []any{m.Version}},
			); err != nil {
				return err
			}
			done = append(done, MigrationState{Version: m.Version, Name: m.Name})
		}
		return nil
	})
	return done, err
}

// Migrations возвращает состояние схемы без изменения данных.
func (s *Store) Migrations(ctx context.Context) (MigrationReport, error) {
	if s == nil || s.db == nil {
		return MigrationReport{}, errStoreNotInitialized
	}
	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return MigrationReport{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationLockWait)
	defer cancel()

	conn, err := s.db.Conn(queryCtx)
	if err != nil {
		return MigrationReport{}, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(queryCtx, migrationTableDDL); err != nil {
		return MigrationReport{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := loadApplied(queryCtx, conn)
	if err != nil {
		return MigrationReport{}, err
	}
	return buildReport(migrations, applied), nil
}

func buildReport(migrations []migration, applied map[int64]appliedMigration) MigrationReport {
	var report MigrationReport
	known := make(map[int64]struct{}, len(migrations))
	for _, m := range migrations {
		known[m.Version] = struct{}{}
		state := MigrationState{Version: m.Version, Name: m.Name}
		prev, ok := applied[m.Version]
		if !ok {
			report.Pending = append(report.Pending, state)
			continue
		}
		state.AppliedAt = prev.appliedAt
		state.Modified = prev.checksum != "" && prev.checksum != m.Checksum
		report.Applied = append(report.Applied, state)
	}
	for version := range applied {
		if version > report.Current {
			report.Current = version
		}
		if _, ok := known[version]; !ok {
			report.Unknown = append(report.Unknown, version)
		}
	}
	sort.Slice(report.Unknown, func(i, j int) bool { return report.Unknown[i] < report.Unknown[j] })
	return report
}

// rollbackOrder возвращает до steps применённых версий, начиная с последней.
func rollbackOrder(applied map[int64]appliedMigration, steps int) []int64 {
	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if steps > 0 && steps < len(versions) {
		versions = versions[:steps]
	}
	return versions
}

// withMigrationLock выполняет fn на выделенном соединении под advisory lock,
// чтобы параллельные инстансы не применяли миграции одновременно.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockWait)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn)
}

type statement struct {
	query string
	args  []any
}

func runInTx(ctx context.Context, conn *sql.Conn, label string, statements ...statement) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", label, err)
	}
	for _, st := range statements {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", label, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", label, err)
	}
	return nil
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadApplied(ctx context.Context, q rowQuerier) (map[int64]appliedMigration, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, name, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]appliedMigration)
	for rows.Next() {
		var (
			version int64
			row     appliedMigration
		)
		if err := rows.Scan(&version, &row.name, &row.checksum, &row.appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		row.appliedAt = row.appliedAt.UTC()
		applied[version] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// parseMigrationFile разбирает имя вида 0001_sales.up.sql.
func parseMigrationFile(base string) (version int64, name, direction string, err error) {
	stem, ok := strings.CutSuffix(base, ".sql")
	if !ok {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}
	dot := strings.LastIndexByte(stem, '.')
	if dot < 0 {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}
	stem, direction = stem[:dot], stem[dot+1:]
	if direction != "up" && direction != "down" {
		return 0, "", "", fmt.Errorf("unsupported migration direction in file: %s", base)
	}

	rawVersion, name, ok := strings.Cut(stem, "_")
	if !ok || name == "" {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return 0, "", "", fmt.Errorf("invalid migration name in %s", base)
		}
	}
	version, err = strconv.ParseInt(rawVersion, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("invalid migration version in %s", base)
	}
	return version, name, direction, nil
}

func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		version, name, direction, err := parseMigrationFile(entry.Name())
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, name)
		}

		target := &m.UpSQL
		if direction == "down" {
			target = &m.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		sum := sha256.Sum256([]byte(m.UpSQL))
		m.Checksum = hex.EncodeToString(sum[:])
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
