// Package config loads command settings from .env files, ELOIS_* environment
// variables and an optional YAML file, then validates them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tunogya/elois/pkg/logging"
	"github.com/tunogya/elois/pkg/nn"
	"github.com/tunogya/elois/pkg/queue/nats"
	"github.com/tunogya/elois/pkg/schema"
	"github.com/tunogya/elois/pkg/store/milvus"
	"github.com/tunogya/elois/pkg/train"
	"github.com/tunogya/elois/pkg/window"
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "ELOIS"

// Config is the settings shared by all commands
type Config struct {
	DuckDBPath string `envconfig:"DUCKDB" default:"elois.duckdb" yaml:"duckdb"`
	SchemaFile string `envconfig:"SCHEMA_FILE" yaml:"schema_file"`

	Log        logging.Config   `envconfig:"LOG" yaml:"log"`
	NATS       nats.Config      `envconfig:"NATS" yaml:"nats"`
	Milvus     milvus.Config    `envconfig:"MILVUS" yaml:"milvus"`
	Preprocess PreprocessConfig `envconfig:"PREPROCESS" yaml:"preprocess"`
	Train      TrainConfig      `envconfig:"TRAIN" yaml:"train"`
	Search     SearchConfig     `envconfig:"SEARCH" yaml:"search"`
}

// PreprocessConfig controls shard loading and publishing
type PreprocessConfig struct {
	Concurrency int  `envconfig:"CONCURRENCY" default:"4" yaml:"concurrency" validate:"min=1"`
	Reverse     bool `envconfig:"REVERSE" default:"false" yaml:"reverse"`
	Publish     bool `envconfig:"PUBLISH" default:"false" yaml:"publish"`
	BatchSize   int  `envconfig:"BATCH_SIZE" default:"500" yaml:"batch_size" validate:"min=1"`
}

// TrainConfig controls windowing, the network shape and optimization
type TrainConfig struct {
	Window         int     `envconfig:"WINDOW" default:"3" yaml:"window" validate:"min=1"`
	TargetField    string  `envconfig:"TARGET_FIELD" default:"netIncome" yaml:"target_field" validate:"required"`
	FeatureVersion int     `envconfig:"FEATURE_VERSION" default:"1" yaml:"feature_version" validate:"min=1"`
	Epochs         int     `envconfig:"EPOCHS" default:"1000" yaml:"epochs" validate:"min=1"`
	BatchSize      int     `envconfig:"BATCH_SIZE" default:"1000" yaml:"batch_size" validate:"min=1"`
	LR             float64 `envconfig:"LR" default:"0.001" yaml:"lr" validate:"gt=0"`
	MaxGradNorm    float64 `envconfig:"MAX_GRAD_NORM" default:"1e7" yaml:"max_grad_norm" validate:"gt=0"`
	NHead          int     `envconfig:"N_HEAD" default:"64" yaml:"n_head" validate:"min=1"`
	NLayer         int     `envconfig:"N_LAYER" default:"1" yaml:"n_layer" validate:"min=1"`
	DropProb       float64 `envconfig:"DROP_PROB" default:"0.3" yaml:"drop_prob" validate:"min=0,max=1"`
	HeadDropout    float64 `envconfig:"HEAD_DROPOUT" default:"0.1" yaml:"head_dropout" validate:"min=0,lt=1"`
	Seed           uint64  `envconfig:"SEED" default:"42" yaml:"seed"`
	LogEvery       int     `envconfig:"LOG_EVERY" default:"10" yaml:"log_every" validate:"min=1"`
	CheckpointDir  string  `envconfig:"CHECKPOINT_DIR" default:"checkpoints" yaml:"checkpoint_dir" validate:"required"`
	MetricsAddr    string  `envconfig:"METRICS_ADDR" yaml:"metrics_addr"`
}

// SearchConfig controls embedding indexing and similarity queries
type SearchConfig struct {
	Checkpoint    string  `envconfig:"CHECKPOINT" yaml:"checkpoint"`
	TopK          int     `envconfig:"TOP_K" default:"10" yaml:"top_k" validate:"min=1"`
	HalfLifeYears float64 `envconfig:"HALF_LIFE_YEARS" default:"3" yaml:"half_life_years" validate:"min=0"`
	BatchSize     int     `envconfig:"BATCH_SIZE" default:"1000" yaml:"batch_size" validate:"min=1"`
	// Segments groups query results into similarity bands
	Segments bool    `envconfig:"SEGMENTS" default:"false" yaml:"segments"`
	MinScore float64 `envconfig:"MIN_SCORE" default:"0" yaml:"min_score" validate:"min=0"`
}

// Load reads .env (when present), then the environment with defaults, then the
// YAML file at path (when non-empty), and validates the result. Values from the
// file override the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field constraint
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// LoadSchema returns the field and currency tables, read from SchemaFile when set
func (c *Config) LoadSchema() (*schema.Schema, *schema.CurrencyTable, error) {
	if c.SchemaFile == "" {
		return schema.Default(), schema.DefaultCurrencies(), nil
	}
	return schema.LoadYAML(c.SchemaFile)
}

// WindowConfig returns the window builder settings
func (t TrainConfig) WindowConfig() window.Config {
	return window.Config{
		W:              t.Window,
		FeatureVersion: t.FeatureVersion,
		TargetField:    t.TargetField,
	}
}

// NetConfig returns the network shape for an input of width nEmbd
func (t TrainConfig) NetConfig(nEmbd int) nn.Config {
	cfg := nn.DefaultConfig(nEmbd)
	cfg.NHead = t.NHead
	cfg.NLayer = t.NLayer
	cfg.DropProb = t.DropProb
	cfg.HeadDropout = t.HeadDropout
	cfg.Seed = t.Seed
	return cfg
}

// TrainerConfig returns the optimization settings
func (t TrainConfig) TrainerConfig() train.Config {
	return train.Config{
		Epochs:      t.Epochs,
		BatchSize:   t.BatchSize,
		LR:          t.LR,
		MaxGradNorm: t.MaxGradNorm,
		LogEvery:    t.LogEvery,
		Seed:        t.Seed,
		Window:      t.Window,
	}
}
