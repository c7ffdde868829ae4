package duckdb

import (
	"context"
	"fmt"
)

// Tables rewritten by a preprocessing run are keyed by run_id and carry no
// primary key: DuckDB rejects deleting and re-inserting the same key inside one
// transaction, and uniqueness per (run_id, company_id) is kept by the repos.

// CreateCompaniesTable creates the company index table
const CreateCompaniesTable = `
CREATE TABLE IF NOT EXISTS companies (
    run_id VARCHAR NOT NULL,
    company_id VARCHAR NOT NULL,
    years INTEGER NOT NULL,
    first_year INTEGER NOT NULL,
    last_year INTEGER NOT NULL
);
`

// CreateCompanyVectorsTable creates the standardized yearly vector table.
// ordinal is the position in the history; a company may report a year twice.
const CreateCompanyVectorsTable = `
CREATE TABLE IF NOT EXISTS company_vectors (
    run_id VARCHAR NOT NULL,
    company_id VARCHAR NOT NULL,
    ordinal INTEGER NOT NULL,
    year INTEGER NOT NULL,
    vals DOUBLE[] NOT NULL,
    missing DOUBLE[] NOT NULL
);
`

// CreateFieldStatsTable creates the standardization statistics table
const CreateFieldStatsTable = `
CREATE TABLE IF NOT EXISTS field_stats (
    run_id VARCHAR NOT NULL,
    ordinal INTEGER NOT NULL,
    field VARCHAR NOT NULL,
    mean DOUBLE NOT NULL,
    std DOUBLE NOT NULL
);
`

// CreateCurrenciesTable creates the currency snapshot table
const CreateCurrenciesTable = `
CREATE TABLE IF NOT EXISTS currencies (
    run_id VARCHAR NOT NULL,
    code VARCHAR NOT NULL,
    idx INTEGER NOT NULL,
    rate DOUBLE NOT NULL
);
`

// CreatePreprocessRunsTable creates the normalization report table
const CreatePreprocessRunsTable = `
CREATE TABLE IF NOT EXISTS preprocess_runs (
    run_id VARCHAR PRIMARY KEY,
    total INTEGER NOT NULL,
    invalid INTEGER NOT NULL,
    empty INTEGER NOT NULL,
    accepted INTEGER NOT NULL,
    skipped_years INTEGER NOT NULL,
    truncated INTEGER NOT NULL,
    rejection_rate DOUBLE NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// CreateCheckpointsTable creates the checkpoint metadata table
const CreateCheckpointsTable = `
CREATE TABLE IF NOT EXISTS checkpoints (
    run_id VARCHAR NOT NULL,
    epoch INTEGER NOT NULL,
    val_loss DOUBLE NOT NULL,
    path VARCHAR NOT NULL,
    params BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, epoch)
);
`

// runTables holds the per-run tables in drop order
var runTables = []string{"currencies", "field_stats", "company_vectors", "companies"}

// InitializeSchema creates all required tables
func InitializeSchema(ctx context.Context, c *Client) error {
	schemas := []string{
		CreateCompaniesTable,
		CreateCompanyVectorsTable,
		CreateFieldStatsTable,
		CreateCurrenciesTable,
		CreatePreprocessRunsTable,
		CreateCheckpointsTable,
	}

	for _, schema := range schemas {
		if err := c.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// DropAllTables drops every table created by InitializeSchema
func DropAllTables(ctx context.Context, c *Client) error {
	tables := append([]string{"checkpoints", "preprocess_runs"}, runTables...)
	for _, table := range tables {
		if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
