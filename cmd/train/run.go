package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/nn"
	"github.com/tunogya/elois/pkg/outcome"
	"github.com/tunogya/elois/pkg/store/duckdb"
	"github.com/tunogya/elois/pkg/train"
	"github.com/tunogya/elois/pkg/window"
)

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, currencies, err := cfg.LoadSchema()
	if err != nil {
		return err
	}

	client, err := duckdb.Open(cfg.DuckDBPath)
	if err != nil {
		return fmt.Errorf("failed to open DuckDB: %w", err)
	}
	defer client.Close()

	runRepo := duckdb.NewRunRepo(client)
	latest, err := runRepo.LatestPreprocess(ctx)
	if err != nil {
		return fmt.Errorf("failed to find a preprocessing run in %s: %w", client.Path(), err)
	}
	logger.Info("Using preprocessing run",
		zap.String("run_id", latest.RunID),
		zap.Time("created_at", latest.CreatedAt),
		zap.Int("total", latest.Report.Total),
		zap.Int("accepted", latest.Report.Accepted),
		zap.Int("invalid", latest.Report.Invalid),
		zap.Int("empty", latest.Report.Empty),
		zap.Float64("rejection_rate", latest.Report.RejectionRate()),
	)

	statsRepo := duckdb.NewStatsRepo(client)
	stats, err := statsRepo.Load(ctx, latest.RunID)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if !slices.Equal(stats.Fields, s.Names()) {
		return fmt.Errorf("stored stats cover %d fields, schema has %d: run preprocess with the same schema",
			len(stats.Fields), s.Len())
	}

	// reported currency codes are only comparable under the snapshot they were normalized with
	stored, err := statsRepo.LoadCurrencies(ctx, latest.RunID)
	if err != nil {
		return fmt.Errorf("failed to load currencies: %w", err)
	}
	if !slices.Equal(stored.Rows(), currencies.Rows()) {
		return fmt.Errorf("run %s was normalized with %d currencies that differ from the configured %d: run preprocess again",
			latest.RunID, stored.Len(), currencies.Len())
	}

	histories, err := duckdb.NewHistoryRepo(client).LoadAll(ctx, latest.RunID)
	if err != nil {
		return fmt.Errorf("failed to load histories: %w", err)
	}

	builder, err := window.NewBuilder(cfg.Train.WindowConfig(), s)
	if err != nil {
		return err
	}
	trainSet, valSet := builder.Split(histories)
	logger.Info("Built windows",
		zap.Int("companies", len(histories)),
		zap.Int("window", cfg.Train.Window),
		zap.Int("input_width", builder.InputWidth()),
		zap.Int("train_samples", len(trainSet)),
		zap.Int("val_samples", len(valSet)),
	)

	net, err := nn.New(cfg.Train.NetConfig(builder.InputWidth()))
	if err != nil {
		return err
	}
	logger.Info("Model ready",
		zap.Int("params", net.NumParams()),
		zap.Int("n_head", net.Config.NHead),
		zap.Int("n_layer", net.Config.NLayer),
	)

	runID := nn.NewRunID()
	tcfg := cfg.Train.TrainerConfig()
	tcfg.Fields = s.Names()
	tcfg.CheckpointPath = filepath.Join(cfg.Train.CheckpointDir, runID+".ckpt.zst")

	params := int64(net.NumParams())
	hook := func(ctx context.Context, ckpt *nn.Checkpoint, path string) error {
		return runRepo.SaveCheckpoint(ctx, duckdb.CheckpointRecord{
			RunID:   ckpt.RunID,
			Epoch:   ckpt.Epoch,
			ValLoss: ckpt.ValLoss,
			Path:    path,
			Params:  params,
		})
	}

	reg := prometheus.NewRegistry()
	trainer := train.NewTrainer(net, tcfg,
		train.WithLogger(logger),
		train.WithMetrics(train.NewMetrics(reg)),
		train.WithCheckpointHook(hook),
		train.WithRunID(runID),
	)

	result, err := runWithMetrics(ctx, reg, func(ctx context.Context) (*train.Result, error) {
		return trainer.Run(ctx, trainSet, valSet)
	})
	if err != nil {
		return err
	}

	return evaluate(result, valSet, stats)
}

// runWithMetrics serves the registry while fn runs when a metrics address is configured
func runWithMetrics(ctx context.Context, reg *prometheus.Registry, fn func(context.Context) (*train.Result, error)) (*train.Result, error) {
	if cfg.Train.MetricsAddr == "" {
		return fn(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Train.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	var result *train.Result
	g.Go(func() error {
		logger.Info("Serving metrics", zap.String("addr", cfg.Train.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		var err error
		result, err = fn(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// evaluate scores the best checkpoint on the validation split in reporting units
func evaluate(result *train.Result, valSet []*model.TrainingSample, stats model.StandardizationStats) error {
	if result.Best == nil {
		return errors.New("training produced no checkpoint")
	}
	best, err := result.Best.Restore()
	if err != nil {
		return err
	}

	preds, err := train.Predict(best, valSet, cfg.Train.BatchSize)
	if err != nil {
		return err
	}

	field := cfg.Train.TargetField
	if _, err := stats.Destandardize(field, 0); err != nil {
		return err
	}
	mapper := func(v float64) float64 {
		out, _ := stats.Destandardize(field, v)
		return out
	}

	summary, err := outcome.EvaluateSamples(valSet, preds, mapper)
	if err != nil {
		return err
	}
	logger.Info("Validation of best checkpoint",
		zap.String("run_id", result.RunID),
		zap.Int("epoch", result.BestEpoch),
		zap.Float64("val_loss", result.BestValLoss),
		zap.Stringer("summary", summary),
	)

	byYear, err := outcome.ByYear(valSet, preds, mapper)
	if err != nil {
		return err
	}
	for _, year := range outcome.Years(byYear) {
		s := byYear[year]
		logger.Info("Validation by target year",
			zap.Int("year", year),
			zap.Int("n", s.N),
			zap.Float64("mae", s.MAE),
			zap.Float64("bias", s.Bias),
		)
	}
	return nil
}
