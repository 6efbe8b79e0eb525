package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func writeMigrationFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("%s - failed to write %s: %v", migrationsTestPrefix, name, err)
		}
	}
}

func TestLoadMigrationFiles_OrderAndNaming(t *testing.T) {
	dir := t.TempDir()
	writeMigrationFiles(t, dir, map[string]string{
		"003_journal_index.sql":  "THIRD",
		"001_registrations.sql":  "FIRST",
		"002_parties_column.sql": "SECOND",
		"registrations.sql":      "unnumbered",
		"004_Draft.sql":          "uppercase",
		"README.md":              "# Migrations",
	})
	if err := os.Mkdir(filepath.Join(dir, "005_archive.sql"), 0755); err != nil {
		t.Fatalf("%s - mkdir: %v", migrationsTestPrefix, err)
	}

	got, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}

	want := []Migration{
		{Name: "001_registrations.sql", SQL: "FIRST"},
		{Name: "002_parties_column.sql", SQL: "SECOND"},
		{Name: "003_journal_index.sql", SQL: "THIRD"},
	}
	if len(got) != len(want) {
		t.Fatalf("%s - got %d migrations (%v), want %d", migrationsTestPrefix, len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s - migration %d = %+v, want %+v", migrationsTestPrefix, i, got[i], want[i])
		}
	}
}

func TestLoadMigrationFiles_MissingDir(t *testing.T) {
	if _, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Errorf("%s - expected error for missing directory", migrationsTestPrefix)
	}
}

func TestApplyMigrations_EmptyDir(t *testing.T) {
	err := ApplyMigrations(context.Background(), nil, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "no migrations") {
		t.Errorf("%s - empty dir should be refused before touching the pool, got %v", migrationsTestPrefix, err)
	}
}

func TestRepositoryMigrations_DefineJournal(t *testing.T) {
	migrations, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - load repository migrations: %v", migrationsTestPrefix, err)
	}
	if len(migrations) == 0 || migrations[0].Name != "001_registrations.sql" {
		t.Fatalf("%s - first migration = %v", migrationsTestPrefix, migrations)
	}
	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.SQL)
	}
	for _, fragment := range []string{
		"CREATE TABLE IF NOT EXISTS registrations",
		"WHERE state = 'running'",
		"process_number",
	} {
		if !strings.Contains(all.String(), fragment) {
			t.Errorf("%s - migrations missing %q", migrationsTestPrefix, fragment)
		}
	}
}
