package duckdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

// ErrNoStats is returned when a run has no statistics or currency snapshot
var ErrNoStats = errors.New("no standardization statistics stored")

// StatsRepo handles standardization statistics and the currency snapshot
type StatsRepo struct {
	client *Client
}

// NewStatsRepo creates a new stats repository
func NewStatsRepo(client *Client) *StatsRepo {
	return &StatsRepo{client: client}
}

// Save replaces the statistics stored for a run
func (r *StatsRepo) Save(ctx context.Context, runID string, stats model.StandardizationStats) error {
	if len(stats.Fields) != len(stats.Mean) || len(stats.Mean) != len(stats.Std) {
		return fmt.Errorf("%w: %d fields, %d means, %d stds",
			model.ErrShapeMismatch, len(stats.Fields), len(stats.Mean), len(stats.Std))
	}

	tx, err := r.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM field_stats WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to clear stats: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO field_stats (run_id, ordinal, field, mean, std) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, f := range stats.Fields {
		if _, err := stmt.ExecContext(ctx, runID, i, f, stats.Mean[i], stats.Std[i]); err != nil {
			return fmt.Errorf("failed to insert stats for %s: %w", f, err)
		}
	}
	return tx.Commit()
}

// Load returns the statistics of a run in field order
func (r *StatsRepo) Load(ctx context.Context, runID string) (model.StandardizationStats, error) {
	rows, err := r.client.Query(ctx, `SELECT field, mean, std FROM field_stats WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return model.StandardizationStats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats model.StandardizationStats
	for rows.Next() {
		var (
			field     string
			mean, std float64
		)
		if err := rows.Scan(&field, &mean, &std); err != nil {
			return model.StandardizationStats{}, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.Fields = append(stats.Fields, field)
		stats.Mean = append(stats.Mean, mean)
		stats.Std = append(stats.Std, std)
	}
	if err := rows.Err(); err != nil {
		return model.StandardizationStats{}, err
	}
	if len(stats.Fields) == 0 {
		return model.StandardizationStats{}, ErrNoStats
	}
	return stats, nil
}

// SaveCurrencies replaces the currency snapshot a run converted with
func (r *StatsRepo) SaveCurrencies(ctx context.Context, runID string, table *schema.CurrencyTable) error {
	tx, err := r.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM currencies WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to clear currencies: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO currencies (run_id, code, idx, rate) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range table.Rows() {
		if _, err := stmt.ExecContext(ctx, runID, c.Code, c.Index, c.Rate); err != nil {
			return fmt.Errorf("failed to insert currency %s: %w", c.Code, err)
		}
	}
	return tx.Commit()
}

// LoadCurrencies returns the currency snapshot of a run
func (r *StatsRepo) LoadCurrencies(ctx context.Context, runID string) (*schema.CurrencyTable, error) {
	rows, err := r.client.Query(ctx, `SELECT code, idx, rate FROM currencies WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	defer rows.Close()

	var list []schema.Currency
	for rows.Next() {
		var c schema.Currency
		if err := rows.Scan(&c.Code, &c.Index, &c.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no currencies for run %s", ErrNoStats, runID)
	}
	return schema.NewCurrencyTable(list)
}
