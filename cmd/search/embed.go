package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/nn"
	"github.com/tunogya/elois/pkg/store/duckdb"
	"github.com/tunogya/elois/pkg/store/milvus"
	"github.com/tunogya/elois/pkg/train"
	"github.com/tunogya/elois/pkg/window"
)

// embedder turns company histories into vectors with a restored checkpoint
type embedder struct {
	ckpt    *nn.Checkpoint
	net     *nn.Net
	builder *window.Builder
}

func loadEmbedder(ctx context.Context, client *duckdb.Client) (*embedder, error) {
	path := cfg.Search.Checkpoint
	if path == "" {
		rec, err := duckdb.NewRunRepo(client).BestCheckpoint(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to find checkpoint: %w", err)
		}
		path = rec.Path
	}

	ckpt, err := nn.LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	net, err := ckpt.Restore()
	if err != nil {
		return nil, err
	}

	s, _, err := cfg.LoadSchema()
	if err != nil {
		return nil, err
	}
	if !slices.Equal(ckpt.Fields, s.Names()) {
		return nil, fmt.Errorf("checkpoint %s was trained on %d fields, schema has %d", path, len(ckpt.Fields), s.Len())
	}

	wcfg := cfg.Train.WindowConfig()
	wcfg.W = ckpt.Window
	builder, err := window.NewBuilder(wcfg, s)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded checkpoint",
		zap.String("path", path),
		zap.String("run_id", ckpt.RunID),
		zap.Int("epoch", ckpt.Epoch),
		zap.Float64("val_loss", ckpt.ValLoss),
	)
	return &embedder{ckpt: ckpt, net: net, builder: builder}, nil
}

// latestRun returns the preprocessing run whose histories are embedded
func latestRun(ctx context.Context, client *duckdb.Client) (string, error) {
	rec, err := duckdb.NewRunRepo(client).LatestPreprocess(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find a preprocessing run in %s: %w", client.Path(), err)
	}
	logger.Debug("Using preprocessing run", zap.String("run_id", rec.RunID), zap.Time("created_at", rec.CreatedAt))
	return rec.RunID, nil
}

// Dim returns the embedding dimension
func (e *embedder) Dim() int {
	return e.net.Config.NEmbd
}

// Embed embeds the newest window of every history long enough to fill one.
// Shorter histories are skipped.
func (e *embedder) Embed(histories []model.CompanyHistory) ([]*milvus.CompanyEmbedding, error) {
	var (
		inputs []*model.TrainingSample
		kept   []model.CompanyHistory
	)
	for _, h := range histories {
		s, err := e.builder.LatestInput(h)
		if errors.Is(err, window.ErrShortHistory) {
			logger.Debug("Skipping short history", zap.String("company_id", h.CompanyID), zap.Int("years", h.Len()))
			continue
		}
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, s)
		kept = append(kept, h)
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	values, mask, _, err := train.Collate(inputs)
	if err != nil {
		return nil, err
	}
	out, err := e.net.Embed(values, mask)
	if err != nil {
		return nil, err
	}

	dim := out.Dim(1)
	embeddings := make([]*milvus.CompanyEmbedding, len(kept))
	for i, h := range kept {
		embeddings[i] = &milvus.CompanyEmbedding{
			CompanyID:  h.CompanyID,
			Embedding:  milvus.ToFloat32(out.Data[i*dim : (i+1)*dim]),
			LatestYear: int64(h.Latest().Year),
			Years:      int32(h.Len()),
			ModelEpoch: int32(e.ckpt.Epoch),
		}
	}
	return embeddings, nil
}
