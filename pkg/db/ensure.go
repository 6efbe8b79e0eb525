package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ensureLogPrefix = "db:ensure"

// journalExtensions are enabled in every journal database; gen_random_uuid
// comes from pgcrypto.
var journalExtensions = []string{"pgcrypto"}

var safeDBName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// WithDatabase returns databaseURL pointing at dbName, keeping credentials,
// host and query parameters.
func WithDatabase(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	if !safeDBName.MatchString(dbName) {
		return "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, dbName)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

// EnsureDatabase creates the database named in databaseURL when it is missing
// and enables the journal extensions in it. Used by `cadastro ensure-db`
// before migrations run against a fresh server.
func EnsureDatabase(ctx context.Context, databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	dbName, err := databaseName(u)
	if err != nil {
		return err
	}

	maintenance := *u
	maintenance.Path = "/postgres"
	if err := createIfMissing(ctx, maintenance.String(), dbName); err != nil {
		return err
	}
	return enableExtensions(ctx, databaseURL, dbName)
}

func databaseName(u *url.URL) (string, error) {
	name := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	switch {
	case name == "":
		return "", fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	case !safeDBName.MatchString(name):
		return "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, name)
	}
	return name, nil
}

// createIfMissing connects to the maintenance database; CREATE DATABASE
// cannot run inside the implicit transaction of the extended protocol.
func createIfMissing(ctx context.Context, maintenanceURL, dbName string) error {
	cfg, err := pgxpool.ParseConfig(maintenanceURL)
	if err != nil {
		return fmt.Errorf("%s - parse maintenance URL: %w", ensureLogPrefix, err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	cfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s - connect to maintenance database: %w", ensureLogPrefix, err)
	}
	defer pool.Close()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, dbName).Scan(&exists); err != nil {
		return fmt.Errorf("%s - look up database %q: %w", ensureLogPrefix, dbName, err)
	}
	if exists {
		slog.Debug(fmt.Sprintf("%s - Database %q already exists", ensureLogPrefix, dbName))
		return nil
	}

	slog.Info(fmt.Sprintf("%s - Creating database %q", ensureLogPrefix, dbName))
	if _, err := pool.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		return fmt.Errorf("%s - create database %q: %w", ensureLogPrefix, dbName, err)
	}
	return nil
}

func enableExtensions(ctx context.Context, databaseURL, dbName string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("%s - connect to %q: %w", ensureLogPrefix, dbName, err)
	}
	defer conn.Close(ctx)

	for _, ext := range journalExtensions {
		if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS "+pgx.Identifier{ext}.Sanitize()); err != nil {
			return fmt.Errorf("%s - enable extension %s in %q: %w", ensureLogPrefix, ext, dbName, err)
		}
	}
	return nil
}
