package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/rerank"
	"github.com/tunogya/elois/pkg/store/duckdb"
	"github.com/tunogya/elois/pkg/store/milvus"
)

// candidates fetched per requested result before reranking
const overfetch = 3

var queryCmd = &cobra.Command{
	Use:   "query <company id>",
	Short: "List the companies whose latest window is closest to the given company's",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		companyID := args[0]

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
		h, err := duckdb.NewHistoryRepo(duckClient).Get(ctx, runID, companyID)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", companyID, err)
		}
		if h.IsEmpty() {
			return fmt.Errorf("company %s not found", companyID)
		}

		embedded, err := emb.Embed([]model.CompanyHistory{h})
		if err != nil {
			return err
		}
		if len(embedded) == 0 {
			return fmt.Errorf("company %s has %d years, need %d", companyID, h.Len(), emb.ckpt.Window)
		}
		query := embedded[0]

		milvusClient, err := milvus.NewClient(ctx, cfg.Milvus)
		if err != nil {
			return fmt.Errorf("failed to connect to Milvus: %w", err)
		}
		defer milvusClient.Close()

		if err := milvusClient.LoadCollection(ctx, milvus.DefaultCollectionName); err != nil {
			return fmt.Errorf("failed to load collection: %w", err)
		}

		topK := cfg.Search.TopK
		results, err := milvusClient.Search(ctx, milvus.DefaultCollectionName, query.Embedding,
			milvus.ExcludeCompany(companyID), topK*overfetch)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		logger.Debug("Search returned", zap.Int("results", len(results)))

		decay := rerank.DefaultTimeDecayConfig()
		if cfg.Search.Segments {
			decay = rerank.SegmentConfig()
		}
		decay.HalfLifeYears = cfg.Search.HalfLifeYears
		ranked := rerank.NewReranker(decay).Rerank(results, query.LatestYear)
		if cfg.Search.MinScore > 0 {
			ranked = rerank.FilterByMinScore(ranked, cfg.Search.MinScore)
		}
		ranked = ranked[:min(topK, len(ranked))]

		fmt.Printf("Companies similar to %s (latest year %d)\n", companyID, query.LatestYear)
		fmt.Printf("%-5s %-24s %-8s %-6s %-10s %-10s\n", "Rank", "Company", "Latest", "Years", "Score", "Final")
		fmt.Println("------------------------------------------------------------------")
		for i, r := range ranked {
			fmt.Printf("%-5d %-24s %-8d %-6d %-10.4f %-10.4f\n",
				i+1, r.CompanyID, r.LatestYear, r.Years, r.Score, r.FinalScore)
		}
		return nil
	},
}
