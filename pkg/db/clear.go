package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearJournal truncates the registrations table. Schema is preserved.
// Running rows are removed too, so only call it while no service is registering.
func ClearJournal(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing registration journal", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE registrations`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Registration journal cleared", clearLogPrefix))
	return nil
}
