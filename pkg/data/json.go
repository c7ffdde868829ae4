package data

import (
	"context"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/tunogya/elois/pkg/model"
)

var _ StatementProvider = (*JSONProvider)(nil)

// JSONProvider implements StatementProvider for JSON dumps shaped
// {"<company id>": [{...report...}, ...], ...}
type JSONProvider struct {
	cfg       ShardConfig
	progress  ProgressCallback
	companies []model.CompanyStatements
	loaded    bool
}

// NewJSONProvider creates a new shard-based statement provider
func NewJSONProvider(cfg ShardConfig) *JSONProvider {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &JSONProvider{cfg: cfg}
}

// OnProgress registers a callback invoked once per shard, in shard order
func (p *JSONProvider) OnProgress(cb ProgressCallback) {
	p.progress = cb
}

// loadIfNeeded parses all shards if not already loaded
func (p *JSONProvider) loadIfNeeded(ctx context.Context) error {
	if p.loaded {
		return nil
	}

	shards := make([][]model.CompanyStatements, len(p.cfg.Paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, path := range p.cfg.Paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read shard %s: %w", path, err)
			}
			companies, err := ParseShard(data, p.cfg.Reverse)
			if err != nil {
				return fmt.Errorf("shard %s: %w", path, err)
			}
			shards[i] = companies
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.companies = mergeShards(shards)
	if p.progress != nil {
		for i, shard := range shards {
			records := 0
			for _, c := range shard {
				records += len(c.Statements)
			}
			p.progress(ShardProgress{Shard: p.cfg.Paths[i], Companies: len(shard), Records: records})
		}
	}

	p.loaded = true
	return nil
}

// FetchCompanies returns the merged companies of all shards
func (p *JSONProvider) FetchCompanies(ctx context.Context) ([]model.CompanyStatements, error) {
	if err := p.loadIfNeeded(ctx); err != nil {
		return nil, err
	}
	return p.companies, nil
}

// ParseShard parses one dump. Companies keep document order; a company key
// repeated within the document keeps its first position and its last reports.
func ParseShard(data []byte, reverse bool) ([]model.CompanyStatements, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON document")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("expected a JSON object keyed by company, got %s", root.Type)
	}

	var companies []model.CompanyStatements
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			parseErr = fmt.Errorf("company %s: expected a list of reports", key.String())
			return false
		}
		reports := value.Array()
		statements := make([]model.RawStatement, len(reports))
		for i, r := range reports {
			statements[i] = model.NewRawStatement(r)
		}
		if reverse {
			for i, j := 0, len(statements)-1; i < j; i, j = i+1, j-1 {
				statements[i], statements[j] = statements[j], statements[i]
			}
		}
		companies = append(companies, model.CompanyStatements{
			CompanyID:  key.String(),
			Statements: statements,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return mergeShards([][]model.CompanyStatements{companies}), nil
}

// mergeShards concatenates shards in order. A company seen again keeps its first
// position but takes the later shard's reports.
func mergeShards(shards [][]model.CompanyStatements) []model.CompanyStatements {
	var merged []model.CompanyStatements
	position := make(map[string]int)
	for _, shard := range shards {
		for _, c := range shard {
			if i, ok := position[c.CompanyID]; ok {
				merged[i] = c
				continue
			}
			position[c.CompanyID] = len(merged)
			merged = append(merged, c)
		}
	}
	return merged
}
