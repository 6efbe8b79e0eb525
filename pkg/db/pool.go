// Package db keeps the registration journal in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = 8
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// MigrationStatus prints whether the journal table exists and lists the
// migrations found in migrationPath.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	const statusLogPrefix = "db:MigrationStatus"

	var present bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass('public.registrations') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}
	migrations, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	state := "not applied (run 'cadastro migrate up')"
	if present {
		state = "applied"
	}
	fmt.Printf("Journal schema: %s\n", state)
	for _, m := range migrations {
		fmt.Printf("  %s\n", m.Name)
	}
	return nil
}

// MigrationDown drops the journal table. It refuses while a registration is running.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, _ string) error {
	const downLogPrefix = "db:MigrationDown"
	if pool == nil {
		return fmt.Errorf("%s - no database pool", downLogPrefix)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s - begin: %w", downLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	var running int
	err = tx.QueryRow(ctx,
		`SELECT CASE WHEN to_regclass('public.registrations') IS NULL THEN 0
		 ELSE (SELECT count(*) FROM registrations WHERE state = 'running') END`).Scan(&running)
	if err != nil {
		return fmt.Errorf("%s - check running registrations: %w", downLogPrefix, err)
	}
	if running > 0 {
		return fmt.Errorf("%s - %d registrations still running", downLogPrefix, running)
	}

	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS registrations`); err != nil {
		return fmt.Errorf("%s - drop registrations: %w", downLogPrefix, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s - commit: %w", downLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Journal table dropped", downLogPrefix))
	return nil
}
