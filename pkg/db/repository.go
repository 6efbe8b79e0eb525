package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/cadastro-incidental/pkg/cadastro"
)

const repoLogPrefix = "db:repository"

// uniqueViolation is the Postgres SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

const defaultListLimit = 50

// Repository is the registration journal. It implements cadastro.Journal.
type Repository struct {
	pool *pgxpool.Pool
}

var _ cadastro.Journal = (*Repository)(nil)

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// JOURNAL WRITES
// =========================================================================

// Begin inserts a running row. A second running row for the same npj is
// refused by the partial unique index and reported as ErrRegistrationInFlight.
func (r *Repository) Begin(ctx context.Context, id string, req *cadastro.Request) error {
	npj := cadastro.NormalizeNPJ(req.NPJ)
	slog.Debug(fmt.Sprintf("%s - Begin id=%s npj=%s", repoLogPrefix, id, npj))

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s - encode request: %w", repoLogPrefix, err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO registrations (id, npj, request, state, last_phase, started, modified)
		 VALUES ($1, $2, $3, $4, $5, now(), now())`,
		id, npj, body, StateRunning, cadastro.PhaseNone.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s - npj %s: %w", repoLogPrefix, npj, cadastro.ErrRegistrationInFlight)
		}
		return fmt.Errorf("%s - insert registration failed: %w", repoLogPrefix, err)
	}
	return nil
}

// PhaseCompleted records the last finished phase and the process number once known.
func (r *Repository) PhaseCompleted(ctx context.Context, id string, phase cadastro.Phase, processNumber int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE registrations
		 SET last_phase = $2, process_number = COALESCE(NULLIF($3::bigint, 0), process_number), modified = now()
		 WHERE id = $1`,
		id, phase.String(), processNumber)
	if err != nil {
		return fmt.Errorf("%s - update phase failed: %w", repoLogPrefix, err)
	}
	return expectOneRow(tag, id)
}

// Complete marks the registration completed with its party check outcome.
func (r *Repository) Complete(ctx context.Context, id string, res *cadastro.Result) error {
	parties, err := json.Marshal(res.Parties)
	if err != nil {
		return fmt.Errorf("%s - encode parties: %w", repoLogPrefix, err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE registrations
		 SET state = $2, process_number = $3, parties_verified = $4, parties = $5,
		     last_phase = $6, modified = now(), finished = now()
		 WHERE id = $1`,
		id, StateCompleted, res.ProcessNumber, res.PartiesVerified, parties, cadastro.PhaseClassCNJ.String())
	if err != nil {
		return fmt.Errorf("%s - complete registration failed: %w", repoLogPrefix, err)
	}
	return expectOneRow(tag, id)
}

// Fail marks the registration failed at phase.
func (r *Repository) Fail(ctx context.Context, id string, phase cadastro.Phase, processNumber int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE registrations
		 SET state = $2, failed_phase = $3, error = $4,
		     process_number = COALESCE(NULLIF($5::bigint, 0), process_number),
		     modified = now(), finished = now()
		 WHERE id = $1`,
		id, StateFailed, phase.String(), msg, processNumber)
	if err != nil {
		return fmt.Errorf("%s - fail registration failed: %w", repoLogPrefix, err)
	}
	return expectOneRow(tag, id)
}

// AbandonStale fails running rows older than maxAge so their npj can be
// registered again after a crash. Returns the number of rows changed.
func (r *Repository) AbandonStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	tag, err := r.pool.Exec(ctx,
		`UPDATE registrations
		 SET state = $1, failed_phase = last_phase, error = 'abandoned: no progress since ' || modified::text,
		     modified = now(), finished = now()
		 WHERE state = $2 AND modified < $3`,
		StateFailed, StateRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - abandon stale registrations failed: %w", repoLogPrefix, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Warn(fmt.Sprintf("%s - Marked %d stale running registrations as failed", repoLogPrefix, n))
	}
	return tag.RowsAffected(), nil
}

// =========================================================================
// JOURNAL READS
// =========================================================================

const registrationColumns = `id, npj, request, state, last_phase, process_number, parties_verified,
	parties, failed_phase, error, started, modified, finished`

// Get returns one registration, or nil when the id is unknown.
func (r *Repository) Get(ctx context.Context, id string) (*Registration, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
	return scanRegistration(row)
}

// History lists registrations of one npj, newest first.
func (r *Repository) History(ctx context.Context, npj string, limit int) ([]Registration, error) {
	npj = cadastro.NormalizeNPJ(npj)
	slog.Debug(fmt.Sprintf("%s - History npj=%s", repoLogPrefix, npj))

	rows, err := r.pool.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE npj = $1
		 ORDER BY started DESC
		 LIMIT $2`, npj, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s - history query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

// ListRecent lists the newest registrations across all npjs.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Registration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 ORDER BY started DESC
		 LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s - list query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

// =========================================================================
// HELPERS
// =========================================================================

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func expectOneRow(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%s - registration %s not found", repoLogPrefix, id)
	}
	return nil
}

func scanRegistration(row pgx.Row) (*Registration, error) {
	var g Registration
	err := row.Scan(
		&g.ID, &g.NPJ, &g.Request, &g.State, &g.LastPhase, &g.ProcessNumber, &g.PartiesVerified,
		&g.Parties, &g.FailedPhase, &g.Error, &g.Started, &g.Modified, &g.Finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan registration failed: %w", repoLogPrefix, err)
	}
	return &g, nil
}

func scanRegistrations(rows pgx.Rows) ([]Registration, error) {
	var out []Registration
	for rows.Next() {
		var g Registration
		if err := rows.Scan(
			&g.ID, &g.NPJ, &g.Request, &g.State, &g.LastPhase, &g.ProcessNumber, &g.PartiesVerified,
			&g.Parties, &g.FailedPhase, &g.Error, &g.Started, &g.Modified, &g.Finished,
		); err != nil {
			return nil, fmt.Errorf("%s - scan registrations failed: %w", repoLogPrefix, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - iterate registrations failed: %w", repoLogPrefix, err)
	}
	return out, nil
}
