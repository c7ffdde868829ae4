package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "elois.duckdb", cfg.DuckDBPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "elois", cfg.NATS.StreamName)
	assert.Equal(t, 168*time.Hour, cfg.NATS.Retention)
	assert.Equal(t, 2*time.Minute, cfg.NATS.AckWait)
	assert.Equal(t, 5, cfg.NATS.MaxDeliver)
	assert.False(t, cfg.Search.Segments)
	assert.Zero(t, cfg.Search.MinScore)
	assert.Equal(t, "localhost:19530", cfg.Milvus.Address)
	assert.Equal(t, 3, cfg.Train.Window)
	assert.Equal(t, 64, cfg.Train.NHead)
	assert.Equal(t, 1e7, cfg.Train.MaxGradNorm)
	assert.Equal(t, 0.001, cfg.Train.LR)
	assert.Equal(t, uint64(42), cfg.Train.Seed)
	assert.Equal(t, "netIncome", cfg.Train.TargetField)
}

func TestLoadEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ELOIS_TRAIN_EPOCHS", "20")
	t.Setenv("ELOIS_LOG_LEVEL", "debug")

	path := filepath.Join(dir, "elois.yaml")
	require.NoError(t, os.WriteFile(path, []byte("train:\n  batch_size: 64\nduckdb: data.duckdb\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Train.Epochs)
	assert.Equal(t, 64, cfg.Train.BatchSize)
	assert.Equal(t, "data.duckdb", cfg.DuckDBPath)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ELOIS_TRAIN_N_LAYER=2\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ELOIS_TRAIN_N_LAYER") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Train.NLayer)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ELOIS_TRAIN_DROP_PROB", "1.5")

	_, err := Load("")
	assert.ErrorContains(t, err, "validation")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDerivedConfigs(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	w := cfg.Train.WindowConfig()
	assert.Equal(t, 3, w.W)
	assert.Equal(t, "netIncome", w.TargetField)

	n := cfg.Train.NetConfig(48)
	assert.Equal(t, 48, n.NEmbd)
	assert.Equal(t, 64, n.NHead)
	assert.Equal(t, 0.3, n.DropProb)

	tc := cfg.Train.TrainerConfig()
	assert.Equal(t, 1000, tc.Epochs)
	assert.Equal(t, 3, tc.Window)

	s, cur, err := cfg.LoadSchema()
	require.NoError(t, err)
	assert.Positive(t, s.Len())
	assert.Positive(t, cur.Len())
}
