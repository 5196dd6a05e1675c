package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/enactproject/enact/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Archive is the SQLite-backed run archive.
type Archive struct {
	db  *sql.DB
	cfg Config
}

// New creates an archive handle. The database is not touched until Init.
func New(cfg Config) (*Archive, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("archive path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &Archive{cfg: cfg}, nil
}

// Init opens the database in WAL mode with foreign keys on. The pragmas
// ride on the DSN so every pooled connection gets them; timestamps are
// stored in SQLite's datetime text layout so the file stays queryable
// with stock sqlite tooling.
func (a *Archive) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate&_time_format=sqlite", a.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open archive database: %w", err)
	}

	db.SetMaxOpenConns(a.cfg.MaxOpenConns)
	db.SetMaxIdleConns(a.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(a.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping archive database: %w", err)
	}

	a.db = db
	return nil
}

// Migrate brings the schema up to date from the embedded migrations.
// Running against a current schema is a no-op.
func (a *Archive) Migrate(_ context.Context) error {
	if a.db == nil {
		return fmt.Errorf("archive not initialized")
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(a.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// SaveReport archives a run report: the run row plus one row per
// outcome, in one transaction. A report is archived at most once; a
// duplicate run ID is an error.
func (a *Archive) SaveReport(ctx context.Context, report *engine.RunReport) error {
	if a.db == nil {
		return fmt.Errorf("archive not initialized")
	}

	summary := report.Summary()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, document, schema_version, failure_mode, status,
			started_at, completed_at, duration_ms,
			total, applied, failed, skipped, changed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		report.Document,
		report.SchemaVersion,
		report.FailureMode,
		report.Status,
		report.StartedAt,
		report.CompletedAt,
		report.Duration.Milliseconds(),
		summary.Total,
		summary.Applied,
		summary.Failed,
		summary.Skipped,
		summary.Changed,
	)
	if err != nil {
		return fmt.Errorf("archive run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO step_outcomes (
			run_id, position, step_index, kind, target, backend,
			status, detail, changed, started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range report.Outcomes {
		_, err := stmt.ExecContext(ctx,
			report.RunID,
			i,
			o.Index,
			o.Kind,
			o.Target,
			o.Backend,
			o.Status,
			o.Detail,
			o.Changed,
			nullableTime(o.StartedAt),
			nullableTime(o.CompletedAt),
			o.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("archive outcome %d of run %s: %w", i, report.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive of run %s: %w", report.RunID, err)
	}
	return nil
}

// ListRuns returns archived runs newest first. A non-positive limit
// means 50.
func (a *Archive) ListRuns(ctx context.Context, limit, offset int) ([]RunRecord, error) {
	if a.db == nil {
		return nil, fmt.Errorf("archive not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, document, schema_version, failure_mode, status,
		       started_at, completed_at, duration_ms,
		       total, applied, failed, skipped, changed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	records := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return records, nil
}

// GetRun returns one archived run by ID.
func (a *Archive) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if a.db == nil {
		return nil, fmt.Errorf("archive not initialized")
	}

	row := a.db.QueryRowContext(ctx, `
		SELECT id, document, schema_version, failure_mode, status,
		       started_at, completed_at, duration_ms,
		       total, applied, failed, skipped, changed
		FROM runs
		WHERE id = ?
	`, id)

	rec, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListOutcomes returns a run's outcomes in report order.
func (a *Archive) ListOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	if a.db == nil {
		return nil, fmt.Errorf("archive not initialized")
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT run_id, position, step_index, kind, target, backend,
		       status, detail, changed, started_at, completed_at, duration_ms
		FROM step_outcomes
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes of run %s: %w", runID, err)
	}
	defer rows.Close()

	records := []OutcomeRecord{}
	for rows.Next() {
		var (
			rec        OutcomeRecord
			started    sql.NullTime
			completed  sql.NullTime
			durationMS int64
		)
		err := rows.Scan(
			&rec.RunID,
			&rec.Position,
			&rec.StepIndex,
			&rec.Kind,
			&rec.Target,
			&rec.Backend,
			&rec.Status,
			&rec.Detail,
			&rec.Changed,
			&started,
			&completed,
			&durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan step outcome: %w", err)
		}
		if started.Valid {
			rec.StartedAt = started.Time
		}
		if completed.Valid {
			rec.CompletedAt = completed.Time
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return records, nil
}

// scanRun scans one runs row through a row- or rows-scoped Scan func.
func scanRun(scan func(...interface{}) error) (RunRecord, error) {
	var (
		rec        RunRecord
		durationMS int64
	)
	err := scan(
		&rec.ID,
		&rec.Document,
		&rec.SchemaVersion,
		&rec.FailureMode,
		&rec.Status,
		&rec.StartedAt,
		&rec.CompletedAt,
		&durationMS,
		&rec.Total,
		&rec.Applied,
		&rec.Failed,
		&rec.Skipped,
		&rec.Changed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}

// nullableTime maps the zero time to NULL so skipped steps archive
// without fake timestamps.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
