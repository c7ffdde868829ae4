package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// DefaultCollectionName is the default collection name for company embeddings
	DefaultCollectionName = "company_embeddings"

	fieldCompanyID   = "company_id"
	fieldEmbedding   = "embedding"
	fieldLatestYear  = "latest_year"
	fieldYears       = "years"
	fieldModelEpoch  = "model_epoch"
	maxCompanyIDSize = 64
)

// CollectionConfig holds configuration for creating a collection
type CollectionConfig struct {
	Name      string
	Dimension int // n_embd of the checkpoint
	Shards    int
}

// DefaultCollectionConfig returns default collection configuration
func DefaultCollectionConfig(dimension int) CollectionConfig {
	return CollectionConfig{
		Name:      DefaultCollectionName,
		Dimension: dimension,
		Shards:    2,
	}
}

// CreateCollection creates the company embedding collection if it does not exist
func (c *Client) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.HasCollection(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: cfg.Name,
		Description:    "Company history embeddings for similarity search",
		Fields: []*entity.Field{
			{
				Name:       fieldCompanyID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": fmt.Sprintf("%d", maxCompanyIDSize),
				},
			},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", cfg.Dimension),
				},
			},
			{
				Name:     fieldLatestYear,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldYears,
				DataType: entity.FieldTypeInt32,
			},
			{
				Name:     fieldModelEpoch,
				DataType: entity.FieldTypeInt32,
			},
		},
	}

	if err := c.conn.CreateCollection(ctx, schema, int32(cfg.Shards)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CompanyEmbedding holds data for inserting one company into Milvus
type CompanyEmbedding struct {
	CompanyID  string
	Embedding  []float32
	LatestYear int64 // newest fiscal year in the embedded window
	Years      int32 // years of history available
	ModelEpoch int32 // checkpoint epoch that produced the embedding
}

// InsertBatch inserts multiple company embeddings
func (c *Client) InsertBatch(ctx context.Context, collectionName string, dataList []*CompanyEmbedding) error {
	if len(dataList) == 0 {
		return nil
	}

	ids := make([]string, len(dataList))
	embeddings := make([][]float32, len(dataList))
	latest := make([]int64, len(dataList))
	years := make([]int32, len(dataList))
	epochs := make([]int32, len(dataList))

	dim := len(dataList[0].Embedding)
	for i, d := range dataList {
		if len(d.Embedding) != dim {
			return fmt.Errorf("embedding for %s has dimension %d, batch has %d", d.CompanyID, len(d.Embedding), dim)
		}
		if len(d.CompanyID) > maxCompanyIDSize {
			return fmt.Errorf("company id %q exceeds %d bytes", d.CompanyID, maxCompanyIDSize)
		}
		ids[i] = d.CompanyID
		embeddings[i] = d.Embedding
		latest[i] = d.LatestYear
		years[i] = d.Years
		epochs[i] = d.ModelEpoch
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(fieldCompanyID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, dim, embeddings),
		entity.NewColumnInt64(fieldLatestYear, latest),
		entity.NewColumnInt32(fieldYears, years),
		entity.NewColumnInt32(fieldModelEpoch, epochs),
	}

	if _, err := c.conn.Upsert(ctx, collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// SearchResult represents a single search result
type SearchResult struct {
	CompanyID  string
	Score      float32
	LatestYear int64
	Years      int32
	ModelEpoch int32
}

// Search performs a TopK cosine similarity search
func (c *Client) Search(ctx context.Context, collectionName string, embedding []float32, filter string, topK int) ([]SearchResult, error) {
	vectors := []entity.Vector{entity.FloatVector(embedding)}

	sp, err := entity.NewIndexIvfFlatSearchParam(16) // nprobe
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	outputFields := []string{fieldCompanyID, fieldLatestYear, fieldYears, fieldModelEpoch}

	results, err := c.conn.Search(
		ctx,
		collectionName,
		nil, // partitions
		filter,
		outputFields,
		vectors,
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	searchResults := make([]SearchResult, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		result := SearchResult{Score: results[0].Scores[i]}

		for _, field := range results[0].Fields {
			switch field.Name() {
			case fieldCompanyID:
				if col, ok := field.(*entity.ColumnVarChar); ok {
					result.CompanyID, _ = col.ValueByIdx(i)
				}
			case fieldLatestYear:
				if col, ok := field.(*entity.ColumnInt64); ok {
					result.LatestYear, _ = col.ValueByIdx(i)
				}
			case fieldYears:
				if col, ok := field.(*entity.ColumnInt32); ok {
					result.Years, _ = col.ValueByIdx(i)
				}
			case fieldModelEpoch:
				if col, ok := field.(*entity.ColumnInt32); ok {
					result.ModelEpoch, _ = col.ValueByIdx(i)
				}
			}
		}
		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// Flush flushes the collection to ensure data persistence
func (c *Client) Flush(ctx context.Context, collectionName string) error {
	return c.conn.Flush(ctx, collectionName, false)
}

// ExcludeCompany builds a filter expression that drops the query company from results
func ExcludeCompany(companyID string) string {
	return fmt.Sprintf("%s != %q", fieldCompanyID, companyID)
}

// ToFloat32 converts an embedding row for insertion
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
