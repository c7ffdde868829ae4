package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/elois/pkg/store/duckdb"
	"github.com/tunogya/elois/pkg/store/milvus"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed every company's latest window and upsert it into Milvus",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		duckClient, err := duckdb.Open(cfg.DuckDBPath)
		if err != nil {
			return fmt.Errorf("failed to open DuckDB: %w", err)
		}
		defer duckClient.Close()

		emb, err := loadEmbedder(ctx, duckClient)
		if err != nil {
			return err
		}

		runID, err := latestRun(ctx, duckClient)
		if err != nil {
			return err
		}
		histories, err := duckdb.NewHistoryRepo(duckClient).LoadAll(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load histories: %w", err)
		}

		milvusClient, err := milvus.NewClient(ctx, cfg.Milvus)
		if err != nil {
			return fmt.Errorf("failed to connect to Milvus: %w", err)
		}
		defer milvusClient.Close()

		if recreate, _ := cmd.Flags().GetBool("recreate"); recreate {
			exists, err := milvusClient.HasCollection(ctx, milvus.DefaultCollectionName)
			if err != nil {
				return err
			}
			if exists {
				if err := milvusClient.DropCollection(ctx, milvus.DefaultCollectionName); err != nil {
					return fmt.Errorf("failed to drop collection: %w", err)
				}
				logger.Info("Dropped collection", zap.String("collection", milvus.DefaultCollectionName))
			}
		}

		if err := milvusClient.Prepare(ctx, milvus.DefaultCollectionConfig(emb.Dim())); err != nil {
			return err
		}

		indexed := 0
		size := cfg.Search.BatchSize
		for i := 0; i < len(histories); i += size {
			end := min(i+size, len(histories))
			batch, err := emb.Embed(histories[i:end])
			if err != nil {
				return err
			}
			if err := milvusClient.InsertBatch(ctx, milvus.DefaultCollectionName, batch); err != nil {
				return err
			}
			indexed += len(batch)
			logger.Debug("Indexed batch", zap.Int("done", end), zap.Int("total", len(histories)))
		}

		if err := milvusClient.Flush(ctx, milvus.DefaultCollectionName); err != nil {
			logger.Warn("Failed to flush Milvus", zap.Error(err))
		}

		logger.Info("Indexing completed",
			zap.String("run_id", runID),
			zap.Int("companies", len(histories)),
			zap.Int("indexed", indexed),
			zap.Int("dim", emb.Dim()),
		)
		return nil
	},
}
