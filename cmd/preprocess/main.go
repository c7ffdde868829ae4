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
	reset      bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "preprocess <shard.json>...",
	Short: "Normalize and standardize raw financial statements",
	Long: `Reads JSON statement dumps, validates and normalizes every company,
fits the standardization statistics and stores the standardized histories
in DuckDB, or publishes them to NATS for the writer to persist.`,
	Args:              cobra.MinimumNArgs(1),
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runPreprocess,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().String("duckdb", "", "DuckDB file path")
	rootCmd.Flags().String("schema", "", "YAML schema override")
	rootCmd.Flags().Bool("reverse", false, "Shards list reports newest first")
	rootCmd.Flags().Int("concurrency", 0, "Shards parsed in parallel")
	rootCmd.Flags().Bool("publish", false, "Publish to NATS instead of writing DuckDB")
	rootCmd.Flags().Int("batch", 0, "Companies per insert or message")
	rootCmd.Flags().BoolVar(&reset, "reset", false, "Drop existing tables before writing")
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
	if flags.Changed("schema") {
		cfg.SchemaFile, _ = flags.GetString("schema")
	}
	if flags.Changed("reverse") {
		cfg.Preprocess.Reverse, _ = flags.GetBool("reverse")
	}
	if flags.Changed("concurrency") {
		cfg.Preprocess.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("publish") {
		cfg.Preprocess.Publish, _ = flags.GetBool("publish")
	}
	if flags.Changed("batch") {
		cfg.Preprocess.BatchSize, _ = flags.GetInt("batch")
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
