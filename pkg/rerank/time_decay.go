package rerank

import (
	"math"
	"sort"

	"github.com/tunogya/elois/pkg/store/milvus"
)

// TimeDecayConfig holds configuration for fiscal-year decay reranking
type TimeDecayConfig struct {
	HalfLifeYears float64 // years after which a neighbour's weight halves
	// Segment weights, used instead of the exponential when UseSegments is set
	UseSegments  bool
	RecentYears  float64 // years considered "recent" (e.g. 1)
	MediumYears  float64 // years considered "medium" (e.g. 3)
	RecentWeight float64
	MediumWeight float64
	OldWeight    float64
}

// DefaultTimeDecayConfig returns a default configuration
func DefaultTimeDecayConfig() TimeDecayConfig {
	return TimeDecayConfig{
		HalfLifeYears: 3,
		RecentYears:   1,
		MediumYears:   3,
		RecentWeight:  1.0,
		MediumWeight:  0.7,
		OldWeight:     0.4,
	}
}

// SegmentConfig returns a configuration using segment-based weights
func SegmentConfig() TimeDecayConfig {
	cfg := DefaultTimeDecayConfig()
	cfg.UseSegments = true
	return cfg
}

// RankedResult extends SearchResult with the reranked score
type RankedResult struct {
	milvus.SearchResult
	AgeYears   float64
	TimeWeight float64
	FinalScore float64
}

// Reranker down-weights neighbours whose latest report is far from a reference year
type Reranker struct {
	config TimeDecayConfig
}

// NewReranker creates a new reranker with the given configuration
func NewReranker(config TimeDecayConfig) *Reranker {
	return &Reranker{config: config}
}

// Rerank scores results by similarity times a decay on the fiscal-year distance
// to refYear, best first. Ties keep the search order.
func (r *Reranker) Rerank(results []milvus.SearchResult, refYear int64) []RankedResult {
	ranked := make([]RankedResult, len(results))

	for i, result := range results {
		age := math.Abs(float64(refYear - result.LatestYear))

		var weight float64
		if r.config.UseSegments {
			weight = r.segmentWeight(age)
		} else {
			weight = r.exponentialDecay(age)
		}

		ranked[i] = RankedResult{
			SearchResult: result,
			AgeYears:     age,
			TimeWeight:   weight,
			FinalScore:   float64(result.Score) * weight,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	return ranked
}

func (r *Reranker) exponentialDecay(age float64) float64 {
	if r.config.HalfLifeYears <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 / r.config.HalfLifeYears * age)
}

func (r *Reranker) segmentWeight(age float64) float64 {
	switch {
	case age <= r.config.RecentYears:
		return r.config.RecentWeight
	case age <= r.config.MediumYears:
		return r.config.MediumWeight
	default:
		return r.config.OldWeight
	}
}

// TopN returns the top N results after reranking
func (r *Reranker) TopN(results []milvus.SearchResult, refYear int64, n int) []RankedResult {
	ranked := r.Rerank(results, refYear)
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// FilterByMinScore filters results by minimum final score
func FilterByMinScore(results []RankedResult, minScore float64) []RankedResult {
	var filtered []RankedResult
	for _, r := range results {
		if r.FinalScore >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
