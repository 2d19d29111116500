package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dendroreduce/internal/domain"
	"dendroreduce/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		output TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		result_fingerprint TEXT NOT NULL,
		roots JSON,
		config JSON,
		subtrees JSON,
		segments_before INTEGER NOT NULL DEFAULT 0,
		segments_after INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'applied',
		created_at DATETIME NOT NULL,
		undone_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		format TEXT NOT NULL,
		data BLOB NOT NULL,
		fingerprint TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, kind),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model);
	CREATE INDEX IF NOT EXISTS idx_runs_output ON runs(output, status);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// CreateRun inserts a new run
func (r *Repository) CreateRun(ctx context.Context, run *domain.Run) error {
	args, err := runInsertArgs(run)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (r *Repository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row, "run "+id)
}

// LatestRun returns the most recent applied run that wrote output
func (r *Repository) LatestRun(ctx context.Context, output string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE output = ? AND status = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, output, string(domain.RunStatusApplied))
	return scanRun(row, "applied run for "+output)
}

func scanRun(row *sql.Row, what string) (*domain.Run, error) {
	var rr runRow
	if err := row.Scan(rr.scanArgs()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return rr.toDomain()
}

// ListRuns returns runs newest first, optionally filtered by model.
// A limit of zero or less returns every run.
func (r *Repository) ListRuns(ctx context.Context, model string, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []interface{}{}

	if model != "" {
		query += ` AND model = ?`
		args = append(args, model)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var rr runRow
		if err := rows.Scan(rr.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := rr.toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// MarkRunUndone flips an applied run to undone
func (r *Repository) MarkRunUndone(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, undone_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.RunStatusUndone), at, id, string(domain.RunStatusApplied))
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("applied run %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

// DeleteRun removes a run and its snapshots
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

// SaveSnapshot stores or replaces a snapshot. An empty fingerprint is
// computed from the data.
func (r *Repository) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap.Fingerprint == "" {
		snap.Fingerprint = repository.Fingerprint(snap.Data)
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, kind, format, data, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, kind) DO UPDATE SET
			format = excluded.format,
			data = excluded.data,
			fingerprint = excluded.fingerprint,
			created_at = excluded.created_at
	`, snap.RunID, string(snap.Kind), snap.Format, snap.Data, snap.Fingerprint, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves one snapshot of a run
func (r *Repository) GetSnapshot(ctx context.Context, runID string, kind domain.SnapshotKind) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{RunID: runID, Kind: kind}
	err := r.db.QueryRowContext(ctx, `
		SELECT format, data, fingerprint, created_at
		FROM snapshots WHERE run_id = ? AND kind = ?
	`, runID, string(kind)).Scan(&snap.Format, &snap.Data, &snap.Fingerprint, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s snapshot of run %s: %w", kind, runID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if got := repository.Fingerprint(snap.Data); got != snap.Fingerprint {
		return nil, fmt.Errorf("%s snapshot of run %s is corrupt: fingerprint %s, stored %s", kind, runID, got, snap.Fingerprint)
	}
	return snap, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
