package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "db:migrations"

// migrationName is NNN_description.sql; other files in the directory are ignored.
var migrationName = regexp.MustCompile(`^\d{3}_[a-z0-9_]+\.sql$`)

// Migration is one schema step read from the migrations directory.
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrationFiles reads the numbered .sql files in dir in ascending order.
func LoadMigrationFiles(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && migrationName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s - read %s: %w", migrationsLogPrefix, name, err)
		}
		migrations = append(migrations, Migration{Name: name, SQL: string(data)})
	}
	slog.Debug(fmt.Sprintf("%s - %d migrations in %s", migrationsLogPrefix, len(migrations), dir))
	return migrations, nil
}

// RunMigrations executes each migration in order. Migrations are written to be
// idempotent, so re-running the full list is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	for _, m := range migrations {
		slog.Info(fmt.Sprintf("%s - Applying %s", migrationsLogPrefix, m.Name))
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Name, err)
		}
	}
	return nil
}

// ApplyMigrations loads dir and runs it against pool.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	migrations, err := LoadMigrationFiles(dir)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		return fmt.Errorf("%s - no migrations found in %s", migrationsLogPrefix, dir)
	}
	return RunMigrations(ctx, pool, migrations)
}
