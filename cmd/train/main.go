package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/elois/pkg/config"
	"github.com/tunogya/elois/pkg/logging"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the yearly forecaster on standardized histories",
	Long: `Loads the standardized histories from DuckDB, builds rolling windows,
trains the network and keeps the checkpoint with the lowest validation loss.
The best checkpoint is then scored on the validation split in reporting units.`,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runTrain,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().String("duckdb", "", "DuckDB file path")
	rootCmd.Flags().Int("epochs", 0, "Number of epochs")
	rootCmd.Flags().Int("batch", 0, "Batch size")
	rootCmd.Flags().Float64("lr", 0, "Learning rate")
	rootCmd.Flags().Int("window", 0, "Years per input window")
	rootCmd.Flags().String("checkpoints", "", "Checkpoint directory")
	rootCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("duckdb") {
		cfg.DuckDBPath, _ = flags.GetString("duckdb")
	}
	if flags.Changed("epochs") {
		cfg.Train.Epochs, _ = flags.GetInt("epochs")
	}
	if flags.Changed("batch") {
		cfg.Train.BatchSize, _ = flags.GetInt("batch")
	}
	if flags.Changed("lr") {
		cfg.Train.LR, _ = flags.GetFloat64("lr")
	}
	if flags.Changed("window") {
		cfg.Train.Window, _ = flags.GetInt("window")
	}
	if flags.Changed("checkpoints") {
		cfg.Train.CheckpointDir, _ = flags.GetString("checkpoints")
	}
	if flags.Changed("metrics-addr") {
		cfg.Train.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if verbose {
		cfg.Log.Level = "debug"
	}
	logger, err = logging.New(cfg.Log)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
