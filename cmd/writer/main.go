package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/elois/pkg/config"
	"github.com/tunogya/elois/pkg/logging"
	"github.com/tunogya/elois/pkg/queue/nats"
	"github.com/tunogya/elois/pkg/schema"
	"github.com/tunogya/elois/pkg/store/duckdb"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "writer",
	Short: "Persist published preprocessing runs into DuckDB",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("duckdb") {
			cfg.DuckDBPath, _ = cmd.Flags().GetString("duckdb")
		}
		if cmd.Flags().Changed("nats") {
			cfg.NATS.URL, _ = cmd.Flags().GetString("nats")
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		logger, err = logging.New(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runWriter,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().String("duckdb", "", "DuckDB file path")
	rootCmd.Flags().String("nats", "", "NATS server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWriter(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	duckClient, err := duckdb.Open(cfg.DuckDBPath)
	if err != nil {
		return fmt.Errorf("failed to open DuckDB: %w", err)
	}
	defer duckClient.Close()
	logger.Info("Starting writer", zap.String("nats", cfg.NATS.URL), zap.String("duckdb", duckClient.Path()))

	historyRepo := duckdb.NewHistoryRepo(duckClient)
	statsRepo := duckdb.NewStatsRepo(duckClient)
	runRepo := duckdb.NewRunRepo(duckClient)

	natsClient, err := nats.NewClient(cfg.NATS)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsClient.Close()

	if err := natsClient.CreateStream(ctx, nats.Subjects()); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	logger.Info("NATS stream ready", zap.String("stream", cfg.NATS.StreamName))

	historyConsumer, err := natsClient.Subscribe(ctx, nats.SubjectHistoryWrite, "history-writer", func(msg jetstream.Msg) error {
		batch, err := nats.DecodeHistoryBatch(msg.Data())
		if err != nil {
			logger.Error("Failed to decode history batch", zap.Error(err))
			return err
		}
		if len(batch.Histories) == 0 {
			return nil
		}

		if err := historyRepo.InsertBatch(ctx, batch.RunID, batch.Histories); err != nil {
			logger.Error("Failed to insert histories", zap.String("run_id", batch.RunID), zap.Int("seq", batch.Seq), zap.Error(err))
			return err
		}

		logger.Info("Inserted histories",
			zap.String("run_id", batch.RunID),
			zap.Int("seq", batch.Seq),
			zap.Int("companies", len(batch.Histories)),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to history writes: %w", err)
	}
	defer historyConsumer.Stop()

	statsConsumer, err := natsClient.Subscribe(ctx, nats.SubjectStatsWrite, "stats-writer", func(msg jetstream.Msg) error {
		m, err := nats.DecodeStats(msg.Data())
		if err != nil {
			logger.Error("Failed to decode stats", zap.Error(err))
			return err
		}
		return saveStats(ctx, historyRepo, statsRepo, runRepo, m)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to stats writes: %w", err)
	}
	defer statsConsumer.Stop()

	logger.Info("Writer started, waiting for messages")
	<-ctx.Done()
	logger.Info("Shutting down writer")
	return nil
}

// errRunIncomplete naks a stats message until every history batch of its run
// has been written, so a run only becomes the latest once it is whole
var errRunIncomplete = errors.New("run histories still arriving")

func saveStats(ctx context.Context, historyRepo *duckdb.HistoryRepo, statsRepo *duckdb.StatsRepo, runRepo *duckdb.RunRepo, m *nats.StatsMsg) error {
	stored, err := historyRepo.Count(ctx, m.RunID)
	if err != nil {
		return err
	}
	if stored < int64(m.Companies) {
		logger.Debug("Waiting for histories", zap.String("run_id", m.RunID), zap.Int64("stored", stored), zap.Int("expected", m.Companies))
		return fmt.Errorf("%w: %d of %d companies", errRunIncomplete, stored, m.Companies)
	}

	if err := statsRepo.Save(ctx, m.RunID, m.Stats); err != nil {
		logger.Error("Failed to save stats", zap.String("run_id", m.RunID), zap.Error(err))
		return err
	}

	if len(m.Currencies) > 0 {
		table, err := schema.NewCurrencyTable(m.Currencies)
		if err != nil {
			logger.Error("Invalid currency table", zap.String("run_id", m.RunID), zap.Error(err))
			return fmt.Errorf("%w: %w", nats.ErrMalformed, err)
		}
		if err := statsRepo.SaveCurrencies(ctx, m.RunID, table); err != nil {
			logger.Error("Failed to save currencies", zap.String("run_id", m.RunID), zap.Error(err))
			return err
		}
	}

	rec := duckdb.PreprocessRecord{RunID: m.RunID, Report: m.Report, CreatedAt: m.CreatedAt}
	if err := runRepo.SavePreprocess(ctx, rec); err != nil {
		logger.Error("Failed to save report", zap.String("run_id", m.RunID), zap.Error(err))
		return err
	}

	// a late redelivery of an older run must not prune a newer one
	latest, err := runRepo.LatestPreprocess(ctx)
	if err != nil {
		return err
	}
	if latest.RunID == m.RunID {
		if err := runRepo.PruneRuns(ctx, m.RunID); err != nil {
			logger.Error("Failed to prune earlier runs", zap.String("run_id", m.RunID), zap.Error(err))
			return err
		}
	}

	logger.Info("Saved preprocessing run",
		zap.String("run_id", m.RunID),
		zap.Int("fields", m.Stats.Width()),
		zap.Int64("companies", stored),
		zap.Bool("latest", latest.RunID == m.RunID),
		zap.Float64("rejection_rate", m.Report.RejectionRate()),
	)
	return nil
}
