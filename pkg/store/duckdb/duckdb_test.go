package duckdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/elois/pkg/feature"
	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

func openTest(t *testing.T) *Client {
	t.Helper()
	c, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func vector(year int, vals ...float64) model.NormalizedVector {
	return model.NormalizedVector{Year: year, Values: vals, Missing: make([]float64, len(vals))}
}

func TestHistoryRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepo(openTest(t))

	a := model.CompanyHistory{CompanyID: "A", Vectors: []model.NormalizedVector{
		vector(2001, 1.5, -2, 0),
		vector(2002, 3e11, 0.25, 7),
	}}
	a.Vectors[1].Missing[1] = 1
	b := model.CompanyHistory{CompanyID: "B", Vectors: []model.NormalizedVector{vector(2010, 0, 0, 1)}}

	require.NoError(t, repo.InsertBatch(ctx, "run-1", []model.CompanyHistory{b, a, {CompanyID: "EMPTY"}}))

	count, err := repo.Count(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	all, err := repo.LoadAll(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a, all[0])
	assert.Equal(t, b, all[1])

	// replacing a company drops years it no longer has
	shorter := model.CompanyHistory{CompanyID: "A", Vectors: []model.NormalizedVector{vector(2005, 9, 9, 9)}}
	require.NoError(t, repo.InsertBatch(ctx, "run-1", []model.CompanyHistory{shorter}))
	got, err := repo.Get(ctx, "run-1", "A")
	require.NoError(t, err)
	assert.Equal(t, shorter, got)

	missing, err := repo.Get(ctx, "run-1", "NOPE")
	require.NoError(t, err)
	assert.True(t, missing.IsEmpty())

	other, err := repo.LoadAll(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestHistoryRepoReinsertSameYears(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepo(openTest(t))

	a := model.CompanyHistory{CompanyID: "A", Vectors: []model.NormalizedVector{vector(2005, 1, 2, 0), vector(2006, 3, 4, 0)}}
	require.NoError(t, repo.InsertBatch(ctx, "run", []model.CompanyHistory{a}))

	// a redelivered batch carries the same company and years
	require.NoError(t, repo.InsertBatch(ctx, "run", []model.CompanyHistory{a}))

	all, err := repo.LoadAll(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyHistory{a}, all)

	count, err := repo.Count(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestHistoryRepoRepeatedYear(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepo(openTest(t))

	a := model.CompanyHistory{CompanyID: "A", Vectors: []model.NormalizedVector{
		vector(2005, 1, 1, 0),
		vector(2005, 2, 2, 0),
		vector(2006, 3, 3, 0),
	}}
	require.NoError(t, repo.InsertBatch(ctx, "run", []model.CompanyHistory{a}))

	got, err := repo.Get(ctx, "run", "A")
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestHistoryRepoLastDuplicateInBatchWins(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepo(openTest(t))

	first := model.CompanyHistory{CompanyID: "A", Vectors: []model.NormalizedVector{vector(2001, 1, 1, 0)}}
	second := model.CompanyHistory{CompanyID: "A", Vectors: []model.NormalizedVector{vector(2001, 2, 2, 0), vector(2002, 3, 3, 0)}}
	require.NoError(t, repo.InsertBatch(ctx, "run", []model.CompanyHistory{first, second}))

	all, err := repo.LoadAll(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyHistory{second}, all)
}

func TestReplaceRunAndPrune(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)
	histories := NewHistoryRepo(c)
	stats := NewStatsRepo(c)
	runs := NewRunRepo(c)

	a := model.CompanyHistory{CompanyID: "A", Vectors: []model.NormalizedVector{vector(2001, 1, 1, 0)}}
	b := model.CompanyHistory{CompanyID: "B", Vectors: []model.NormalizedVector{vector(2002, 2, 2, 0)}}
	require.NoError(t, histories.ReplaceRun(ctx, "old", []model.CompanyHistory{a, b}))

	// rerunning the same run id replaces its corpus, B is gone
	a2 := model.CompanyHistory{CompanyID: "A", Vectors: []model.NormalizedVector{vector(2001, 5, 5, 0)}}
	require.NoError(t, histories.ReplaceRun(ctx, "old", []model.CompanyHistory{a2}))
	all, err := histories.LoadAll(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyHistory{a2}, all)

	st := model.StandardizationStats{Fields: []string{"x", schema.FieldReportedCurrency}, Mean: []float64{1, 0}, Std: []float64{2, 1}}
	require.NoError(t, stats.Save(ctx, "old", st))
	require.NoError(t, stats.SaveCurrencies(ctx, "old", schema.DefaultCurrencies()))

	require.NoError(t, histories.ReplaceRun(ctx, "new", []model.CompanyHistory{b}))
	require.NoError(t, stats.Save(ctx, "new", st))
	require.NoError(t, runs.PruneRuns(ctx, "new"))

	old, err := histories.LoadAll(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, old)
	_, err = stats.Load(ctx, "old")
	assert.ErrorIs(t, err, ErrNoStats)
	_, err = stats.LoadCurrencies(ctx, "old")
	assert.ErrorIs(t, err, ErrNoStats)

	current, err := histories.LoadAll(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyHistory{b}, current)
	loaded, err := stats.Load(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, st, loaded)
}

func TestStatsRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewStatsRepo(openTest(t))

	_, err := repo.Load(ctx, "run")
	assert.ErrorIs(t, err, ErrNoStats)

	stats := model.StandardizationStats{
		Fields: []string{"revenue", schema.FieldReportedCurrency},
		Mean:   []float64{1e9, 0},
		Std:    []float64{2e9, 1},
	}
	require.NoError(t, repo.Save(ctx, "run", stats))
	require.NoError(t, repo.Save(ctx, "run", stats))

	loaded, err := repo.Load(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, stats, loaded)

	assert.ErrorIs(t, repo.Save(ctx, "run", model.StandardizationStats{Fields: []string{"x"}}), model.ErrShapeMismatch)

	require.NoError(t, repo.SaveCurrencies(ctx, "run", schema.DefaultCurrencies()))
	require.NoError(t, repo.SaveCurrencies(ctx, "run", schema.DefaultCurrencies()))
	table, err := repo.LoadCurrencies(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, schema.DefaultCurrencies().Rows(), table.Rows())
}

func TestRunRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(openTest(t))

	_, err := repo.BestCheckpoint(ctx, "")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
	_, err = repo.LatestPreprocess(ctx)
	assert.ErrorIs(t, err, ErrNoRun)

	rep := feature.Report{Total: 4, Invalid: 1, Empty: 1, Accepted: 2, SkippedYears: 3}
	now := time.Now().UTC()
	require.NoError(t, repo.SavePreprocess(ctx, PreprocessRecord{RunID: "pre-2", Report: rep, CreatedAt: now}))
	require.NoError(t, repo.SavePreprocess(ctx, PreprocessRecord{RunID: "pre-1", Report: rep, CreatedAt: now.Add(-time.Hour)}))
	latest, err := repo.LatestPreprocess(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pre-2", latest.RunID)
	assert.Equal(t, rep, latest.Report)

	require.NoError(t, repo.SaveCheckpoint(ctx, CheckpointRecord{RunID: "r1", Epoch: 3, ValLoss: 0.5, Path: "a", Params: 10}))
	require.NoError(t, repo.SaveCheckpoint(ctx, CheckpointRecord{RunID: "r1", Epoch: 7, ValLoss: 0.2, Path: "a", Params: 10}))
	require.NoError(t, repo.SaveCheckpoint(ctx, CheckpointRecord{RunID: "r2", Epoch: 1, ValLoss: 0.1, Path: "b", Params: 10}))

	best, err := repo.BestCheckpoint(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "r2", best.RunID)

	best, err = repo.BestCheckpoint(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 7, best.Epoch)
	assert.Equal(t, 0.2, best.ValLoss)
}

func TestDropAllTables(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)
	repo := NewHistoryRepo(c)

	require.NoError(t, repo.InsertBatch(ctx, "run", []model.CompanyHistory{
		{CompanyID: "A", Vectors: []model.NormalizedVector{vector(2001, 1, 2, 0)}},
	}))

	require.NoError(t, DropAllTables(ctx, c))
	_, err := repo.Count(ctx, "run")
	assert.Error(t, err)

	require.NoError(t, InitializeSchema(ctx, c))
	count, err := repo.Count(ctx, "run")
	require.NoError(t, err)
	assert.Zero(t, count)
}
