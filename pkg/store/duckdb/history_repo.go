package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tunogya/elois/pkg/model"
)

// HistoryRepo handles company history persistence. Every row belongs to the
// preprocessing run that produced it.
type HistoryRepo struct {
	client *Client
}

// NewHistoryRepo creates a new history repository
func NewHistoryRepo(client *Client) *HistoryRepo {
	return &HistoryRepo{client: client}
}

// InsertBatch stores histories of one run in one transaction. A company already
// stored for the run is replaced as a whole, so redelivered batches are harmless.
// Within the batch the last occurrence of a company wins.
func (r *HistoryRepo) InsertBatch(ctx context.Context, runID string, histories []model.CompanyHistory) error {
	tx, err := r.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertHistories(ctx, tx, runID, histories); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceRun stores histories as the complete corpus of runID, dropping any
// company the run stored before.
func (r *HistoryRepo) ReplaceRun(ctx context.Context, runID string, histories []model.CompanyHistory) error {
	tx, err := r.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"company_vectors", "companies"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", table), runID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := insertHistories(ctx, tx, runID, histories); err != nil {
		return err
	}
	return tx.Commit()
}

func insertHistories(ctx context.Context, tx *sql.Tx, runID string, histories []model.CompanyHistory) error {
	delVectors, err := tx.PrepareContext(ctx, `DELETE FROM company_vectors WHERE run_id = ? AND company_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer delVectors.Close()

	delCompany, err := tx.PrepareContext(ctx, `DELETE FROM companies WHERE run_id = ? AND company_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer delCompany.Close()

	insertCompany, err := tx.PrepareContext(ctx, `
		INSERT INTO companies (run_id, company_id, years, first_year, last_year)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer insertCompany.Close()

	insertVector, err := tx.PrepareContext(ctx, `
		INSERT INTO company_vectors (run_id, company_id, ordinal, year, vals, missing)
		VALUES (?, ?, ?, ?, CAST(? AS DOUBLE[]), CAST(? AS DOUBLE[]))
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer insertVector.Close()

	for _, h := range histories {
		if h.IsEmpty() {
			continue
		}
		if _, err := delVectors.ExecContext(ctx, runID, h.CompanyID); err != nil {
			return fmt.Errorf("failed to clear company %s: %w", h.CompanyID, err)
		}
		if _, err := delCompany.ExecContext(ctx, runID, h.CompanyID); err != nil {
			return fmt.Errorf("failed to clear company %s: %w", h.CompanyID, err)
		}
		first, last := h.Vectors[0].Year, h.Latest().Year
		if _, err := insertCompany.ExecContext(ctx, runID, h.CompanyID, h.Len(), first, last); err != nil {
			return fmt.Errorf("failed to insert company %s: %w", h.CompanyID, err)
		}
		for i, v := range h.Vectors {
			vals, err := listLiteral(v.Values)
			if err != nil {
				return err
			}
			missing, err := listLiteral(v.Missing)
			if err != nil {
				return err
			}
			if _, err := insertVector.ExecContext(ctx, runID, h.CompanyID, i, v.Year, vals, missing); err != nil {
				return fmt.Errorf("failed to insert vector %s/%d: %w", h.CompanyID, v.Year, err)
			}
		}
	}
	return nil
}

// LoadAll returns every history of a run ordered by company
func (r *HistoryRepo) LoadAll(ctx context.Context, runID string) ([]model.CompanyHistory, error) {
	return r.load(ctx, `
		SELECT company_id, year, vals, missing
		FROM company_vectors
		WHERE run_id = ?
		ORDER BY company_id, ordinal
	`, runID)
}

// Get returns one company's history within a run
func (r *HistoryRepo) Get(ctx context.Context, runID, companyID string) (model.CompanyHistory, error) {
	histories, err := r.load(ctx, `
		SELECT company_id, year, vals, missing
		FROM company_vectors
		WHERE run_id = ? AND company_id = ?
		ORDER BY ordinal
	`, runID, companyID)
	if err != nil {
		return model.CompanyHistory{}, err
	}
	if len(histories) == 0 {
		return model.CompanyHistory{CompanyID: companyID}, nil
	}
	return histories[0], nil
}

func (r *HistoryRepo) load(ctx context.Context, query string, args ...any) ([]model.CompanyHistory, error) {
	rows, err := r.client.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query histories: %w", err)
	}
	defer rows.Close()

	var histories []model.CompanyHistory
	for rows.Next() {
		var (
			companyID         string
			year              int
			rawVals, rawMasks any
		)
		if err := rows.Scan(&companyID, &year, &rawVals, &rawMasks); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		vals, err := floatList(rawVals)
		if err != nil {
			return nil, fmt.Errorf("company %s year %d: %w", companyID, year, err)
		}
		missing, err := floatList(rawMasks)
		if err != nil {
			return nil, fmt.Errorf("company %s year %d: %w", companyID, year, err)
		}

		if n := len(histories); n == 0 || histories[n-1].CompanyID != companyID {
			histories = append(histories, model.CompanyHistory{CompanyID: companyID})
		}
		h := &histories[len(histories)-1]
		h.Vectors = append(h.Vectors, model.NormalizedVector{Year: year, Values: vals, Missing: missing})
	}

	return histories, rows.Err()
}

// Count returns the number of companies stored for a run
func (r *HistoryRepo) Count(ctx context.Context, runID string) (int64, error) {
	var count int64
	err := r.client.QueryRow(ctx, "SELECT COUNT(*) FROM companies WHERE run_id = ?", runID).Scan(&count)
	return count, err
}
