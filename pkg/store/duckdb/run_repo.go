package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tunogya/elois/pkg/feature"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint was recorded
	ErrNoCheckpoint = errors.New("no checkpoint recorded")
	// ErrNoRun is returned when no preprocessing run was recorded
	ErrNoRun = errors.New("no preprocessing run recorded")
)

// CheckpointRecord is the metadata row of a saved checkpoint
type CheckpointRecord struct {
	RunID     string
	Epoch     int
	ValLoss   float64
	Path      string
	Params    int64
	CreatedAt time.Time
}

// PreprocessRecord is a stored normalization report
type PreprocessRecord struct {
	RunID     string
	Report    feature.Report
	CreatedAt time.Time
}

// RunRepo records preprocessing reports and checkpoint metadata
type RunRepo struct {
	client *Client
}

// NewRunRepo creates a new run repository
func NewRunRepo(client *Client) *RunRepo {
	return &RunRepo{client: client}
}

// SavePreprocess stores a normalization report. A zero CreatedAt is set to now.
func (r *RunRepo) SavePreprocess(ctx context.Context, rec PreprocessRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rep := rec.Report
	query := `
		INSERT INTO preprocess_runs (run_id, total, invalid, empty, accepted, skipped_years, truncated, rejection_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO NOTHING
	`
	return r.client.Exec(ctx, query,
		rec.RunID, rep.Total, rep.Invalid, rep.Empty, rep.Accepted, rep.SkippedYears, rep.Truncated,
		rep.RejectionRate(), rec.CreatedAt,
	)
}

// LatestPreprocess returns the most recent normalization report
func (r *RunRepo) LatestPreprocess(ctx context.Context) (*PreprocessRecord, error) {
	row := r.client.QueryRow(ctx, `
		SELECT run_id, total, invalid, empty, accepted, skipped_years, truncated, created_at
		FROM preprocess_runs
		ORDER BY created_at DESC
		LIMIT 1
	`)
	var rec PreprocessRecord
	err := row.Scan(&rec.RunID, &rec.Report.Total, &rec.Report.Invalid, &rec.Report.Empty,
		&rec.Report.Accepted, &rec.Report.SkippedYears, &rec.Report.Truncated, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preprocessing run: %w", err)
	}
	return &rec, nil
}

// PruneRuns deletes the histories, statistics and currencies of every run but
// keep. Reports and checkpoint rows are kept.
func (r *RunRepo) PruneRuns(ctx context.Context, keep string) error {
	tx, err := r.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range runTables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id <> ?", table), keep); err != nil {
			return fmt.Errorf("failed to prune %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveCheckpoint records a checkpoint
func (r *RunRepo) SaveCheckpoint(ctx context.Context, rec CheckpointRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO checkpoints (run_id, epoch, val_loss, path, params, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, epoch) DO UPDATE SET
			val_loss = EXCLUDED.val_loss,
			path = EXCLUDED.path,
			params = EXCLUDED.params
	`
	return r.client.Exec(ctx, query, rec.RunID, rec.Epoch, rec.ValLoss, rec.Path, rec.Params, rec.CreatedAt)
}

// BestCheckpoint returns the checkpoint with the lowest validation loss.
// An empty runID searches every run.
func (r *RunRepo) BestCheckpoint(ctx context.Context, runID string) (*CheckpointRecord, error) {
	query := `
		SELECT run_id, epoch, val_loss, path, params, created_at
		FROM checkpoints
		WHERE ? = '' OR run_id = ?
		ORDER BY val_loss ASC, created_at DESC
		LIMIT 1
	`
	var rec CheckpointRecord
	err := r.client.QueryRow(ctx, query, runID, runID).Scan(
		&rec.RunID, &rec.Epoch, &rec.ValLoss, &rec.Path, &rec.Params, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	return &rec, nil
}
