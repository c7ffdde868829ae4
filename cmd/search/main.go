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
	Use:   "search",
	Short: "Index company embeddings in Milvus and find similar companies",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("duckdb") {
			cfg.DuckDBPath, _ = flags.GetString("duckdb")
		}
		if flags.Changed("milvus") {
			cfg.Milvus.Address, _ = flags.GetString("milvus")
		}
		if flags.Changed("checkpoint") {
			cfg.Search.Checkpoint, _ = flags.GetString("checkpoint")
		}
		if flags.Changed("topk") {
			cfg.Search.TopK, _ = flags.GetInt("topk")
		}
		if flags.Changed("segments") {
			cfg.Search.Segments, _ = flags.GetBool("segments")
		}
		if flags.Changed("min-score") {
			cfg.Search.MinScore, _ = flags.GetFloat64("min-score")
		}
		if err := cfg.Validate(); err != nil {
			return err
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
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("duckdb", "", "DuckDB file path")
	pf.String("milvus", "", "Milvus server address")
	pf.String("checkpoint", "", "Checkpoint file (default: best recorded checkpoint)")

	queryCmd.Flags().Int("topk", 0, "Number of similar companies")
	queryCmd.Flags().Bool("segments", false, "Weight neighbours by recent/medium/old fiscal-year bands instead of a half-life")
	queryCmd.Flags().Float64("min-score", 0, "Drop neighbours whose reranked score is below this")
	indexCmd.Flags().Bool("recreate", false, "Drop the collection before indexing")

	rootCmd.AddCommand(indexCmd, queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
