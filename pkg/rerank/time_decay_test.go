package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/elois/pkg/store/milvus"
)

func hits() []milvus.SearchResult {
	return []milvus.SearchResult{
		{CompanyID: "OLD", Score: 0.95, LatestYear: 2014},
		{CompanyID: "NEW", Score: 0.90, LatestYear: 2023},
		{CompanyID: "MID", Score: 0.80, LatestYear: 2021},
	}
}

func TestExponentialDecay(t *testing.T) {
	r := NewReranker(DefaultTimeDecayConfig())
	ranked := r.Rerank(hits(), 2023)

	require.Len(t, ranked, 3)
	assert.Equal(t, "NEW", ranked[0].CompanyID)
	assert.Equal(t, 1.0, ranked[0].TimeWeight)
	assert.Equal(t, "MID", ranked[1].CompanyID)
	assert.InDelta(t, 0.125, ranked[2].TimeWeight, 1e-12, "nine years is three half-lives")
	assert.Equal(t, 9.0, ranked[2].AgeYears)
}

func TestSegmentWeights(t *testing.T) {
	r := NewReranker(SegmentConfig())
	ranked := r.Rerank(hits(), 2023)

	weights := map[string]float64{}
	for _, x := range ranked {
		weights[x.CompanyID] = x.TimeWeight
	}
	assert.Equal(t, 1.0, weights["NEW"])
	assert.Equal(t, 0.7, weights["MID"])
	assert.Equal(t, 0.4, weights["OLD"])
}

func TestTopNAndFilter(t *testing.T) {
	r := NewReranker(TimeDecayConfig{})
	top := r.TopN(hits(), 2023, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "OLD", top[0].CompanyID, "no half-life keeps similarity order")

	assert.Len(t, r.TopN(hits(), 2023, 10), 3)
	assert.Len(t, FilterByMinScore(r.Rerank(hits(), 2023), 0.85), 2)
}
