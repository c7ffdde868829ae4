package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/elois/pkg/data"
	"github.com/tunogya/elois/pkg/feature"
	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/queue/nats"
	"github.com/tunogya/elois/pkg/schema"
	"github.com/tunogya/elois/pkg/store/duckdb"
)

// result is everything a preprocessing run produces
type result struct {
	runID      string
	histories  []model.CompanyHistory
	stats      model.StandardizationStats
	currencies *schema.CurrencyTable
	report     feature.Report
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, currencies, err := cfg.LoadSchema()
	if err != nil {
		return err
	}
	logger.Info("Starting preprocessing",
		zap.Strings("shards", args),
		zap.Int("fields", s.Len()),
		zap.Int("currencies", currencies.Len()),
	)

	shards := data.DefaultShardConfig(args...)
	shards.Concurrency = cfg.Preprocess.Concurrency
	shards.Reverse = cfg.Preprocess.Reverse
	provider := data.NewJSONProvider(shards)
	provider.OnProgress(func(p data.ShardProgress) {
		logger.Info("Loaded shard",
			zap.String("shard", p.Shard),
			zap.Int("companies", p.Companies),
			zap.Int("records", p.Records),
		)
	})

	companies, err := provider.FetchCompanies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load statements: %w", err)
	}

	histories, report := feature.NewNormalizer(s, currencies).Normalize(companies)
	logger.Info("Normalized companies",
		zap.Int("total", report.Total),
		zap.Int("accepted", report.Accepted),
		zap.Int("invalid", report.Invalid),
		zap.Int("empty", report.Empty),
		zap.Int("skipped_years", report.SkippedYears),
		zap.Int("truncated", report.Truncated),
		zap.Float64("rejection_rate", report.RejectionRate()),
	)

	standardized, stats, err := feature.NewStandardizer(s).FitTransform(histories)
	if err != nil {
		return fmt.Errorf("failed to standardize: %w", err)
	}

	summary := feature.Summarize(standardized)
	logger.Info("Standardized corpus",
		zap.Int("companies", summary.Companies),
		zap.Int("years", summary.Years),
		zap.Float64("median_years", summary.MedianYears),
		zap.Float64("p90_years", summary.P90Years),
		zap.Float64("missing_share", summary.MissingShare),
		zap.Int("earliest_year", summary.EarliestYear),
		zap.Int("latest_year", summary.LatestYear),
	)

	res := &result{
		runID:      uuid.NewString(),
		histories:  standardized,
		stats:      stats,
		currencies: currencies,
		report:     report,
	}
	if cfg.Preprocess.Publish {
		return publish(ctx, res)
	}
	return persist(ctx, res)
}

// persist writes the run straight into DuckDB and drops earlier runs once the
// new one is complete
func persist(ctx context.Context, res *result) error {
	client, err := duckdb.Open(cfg.DuckDBPath)
	if err != nil {
		return fmt.Errorf("failed to open DuckDB: %w", err)
	}
	defer client.Close()

	if reset {
		if err := duckdb.DropAllTables(ctx, client); err != nil {
			return err
		}
		if err := duckdb.InitializeSchema(ctx, client); err != nil {
			return err
		}
		logger.Info("Dropped existing tables", zap.String("duckdb", client.Path()))
	}

	historyRepo := duckdb.NewHistoryRepo(client)
	statsRepo := duckdb.NewStatsRepo(client)
	runRepo := duckdb.NewRunRepo(client)

	size := cfg.Preprocess.BatchSize
	for i := 0; i < len(res.histories); i += size {
		end := min(i+size, len(res.histories))
		if err := historyRepo.InsertBatch(ctx, res.runID, res.histories[i:end]); err != nil {
			return fmt.Errorf("failed to insert histories: %w", err)
		}
		logger.Debug("Inserted histories", zap.Int("done", end), zap.Int("total", len(res.histories)))
	}

	if err := statsRepo.Save(ctx, res.runID, res.stats); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	if err := statsRepo.SaveCurrencies(ctx, res.runID, res.currencies); err != nil {
		return fmt.Errorf("failed to save currencies: %w", err)
	}
	if err := runRepo.SavePreprocess(ctx, duckdb.PreprocessRecord{RunID: res.runID, Report: res.report}); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	if err := runRepo.PruneRuns(ctx, res.runID); err != nil {
		return fmt.Errorf("failed to prune earlier runs: %w", err)
	}

	stored, err := historyRepo.Count(ctx, res.runID)
	if err != nil {
		return err
	}
	logger.Info("Preprocessing completed",
		zap.String("run_id", res.runID),
		zap.String("duckdb", client.Path()),
		zap.Int("companies", len(res.histories)),
		zap.Int64("stored_companies", stored),
	)
	return nil
}

// publish sends the run to the writer through JetStream
func publish(ctx context.Context, res *result) error {
	client, err := nats.NewClient(cfg.NATS)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer client.Close()

	if err := client.CreateStream(ctx, nats.Subjects()); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	batches, err := nats.Batch(res.runID, res.histories, cfg.Preprocess.BatchSize, int(client.MaxPayload()))
	if err != nil {
		return fmt.Errorf("failed to batch histories: %w", err)
	}
	for _, msg := range batches {
		if err := client.PublishMsg(ctx, nats.SubjectHistoryWrite, msg); err != nil {
			return fmt.Errorf("failed to publish batch %d: %w", msg.Seq, err)
		}
	}

	stats := nats.StatsMsg{
		RunID:      res.runID,
		Stats:      res.stats,
		Currencies: res.currencies.Rows(),
		Report:     res.report,
		Companies:  len(res.histories),
		CreatedAt:  time.Now().UTC(),
	}
	if err := client.PublishMsg(ctx, nats.SubjectStatsWrite, stats); err != nil {
		return fmt.Errorf("failed to publish stats: %w", err)
	}

	logger.Info("Preprocessing published",
		zap.String("run_id", res.runID),
		zap.String("stream", cfg.NATS.StreamName),
		zap.Int("batches", len(batches)),
		zap.Int64("max_payload", client.MaxPayload()),
		zap.Int("companies", len(res.histories)),
	)
	return nil
}
