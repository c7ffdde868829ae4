package data

import (
	"context"

	"github.com/tunogya/elois/pkg/model"
)

// StatementProvider defines the interface for fetching raw company reports
type StatementProvider interface {
	// FetchCompanies returns every company with its reports ordered oldest first.
	// Company order is stable across calls.
	FetchCompanies(ctx context.Context) ([]model.CompanyStatements, error)
}

// ShardConfig holds configuration for reading sharded statement dumps
type ShardConfig struct {
	Paths       []string // Shard files, merged in order (later shards win on duplicate company IDs)
	Concurrency int      // Number of shards parsed in parallel
	Reverse     bool     // Set when the dump lists reports newest first
}

// DefaultShardConfig returns a ShardConfig with sensible defaults
func DefaultShardConfig(paths ...string) ShardConfig {
	return ShardConfig{
		Paths:       paths,
		Concurrency: 4,
	}
}

// ShardProgress tracks the progress of a shard load
type ShardProgress struct {
	Shard     string
	Companies int
	Records   int
}

// ProgressCallback is called after each shard is parsed
type ProgressCallback func(progress ShardProgress)
