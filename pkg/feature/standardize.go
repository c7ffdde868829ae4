package feature

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

// ErrEmptyCorpus is returned when no vector is available to fit statistics
var ErrEmptyCorpus = errors.New("no vectors to standardize")

// Standardizer fits per-field mean and standard deviation over a corpus and rescales it
type Standardizer struct {
	schema *schema.Schema
}

// NewStandardizer creates a standardizer for the given schema
func NewStandardizer(s *schema.Schema) *Standardizer {
	return &Standardizer{schema: s}
}

// Fit computes the statistics over every vector of every history.
// Non-finite inputs are replaced by 0 before the moments are taken, and the
// last field is pinned to mean 0, std 1.
func (s *Standardizer) Fit(histories []model.CompanyHistory) (model.StandardizationStats, error) {
	width := s.schema.Len()

	rows := 0
	for _, h := range histories {
		rows += h.Len()
	}
	if rows == 0 {
		return model.StandardizationStats{}, ErrEmptyCorpus
	}

	columns := make([][]float64, width)
	for j := range columns {
		columns[j] = make([]float64, 0, rows)
	}
	for _, h := range histories {
		for _, v := range h.Vectors {
			if v.Width() != width {
				return model.StandardizationStats{}, fmt.Errorf("%w: company %s year %d has %d fields, schema has %d",
					model.ErrShapeMismatch, h.CompanyID, v.Year, v.Width(), width)
			}
			for j, x := range v.Values {
				columns[j] = append(columns[j], model.Finite(x))
			}
		}
	}

	stats := model.StandardizationStats{
		Fields: s.schema.Names(),
		Mean:   make([]float64, width),
		Std:    make([]float64, width),
	}
	for j := 0; j < width-1; j++ {
		stats.Mean[j], stats.Std[j] = stat.MeanStdDev(columns[j], nil)
	}
	stats.Mean[width-1] = 0
	stats.Std[width-1] = 1

	return stats, nil
}

// Transform rescales every history with the given statistics. Inputs are sanitized
// first and any non-finite result (zero variance, single sample) is clamped to 0.
// Empty histories are dropped. Missing flags are carried unchanged.
func (s *Standardizer) Transform(histories []model.CompanyHistory, stats model.StandardizationStats) ([]model.CompanyHistory, error) {
	out := make([]model.CompanyHistory, 0, len(histories))
	for _, h := range histories {
		if h.IsEmpty() {
			continue
		}
		scaled := model.CompanyHistory{
			CompanyID: h.CompanyID,
			Vectors:   make([]model.NormalizedVector, len(h.Vectors)),
		}
		for i, v := range h.Vectors {
			clean := make([]float64, len(v.Values))
			for j, x := range v.Values {
				clean[j] = model.Finite(x)
			}
			values, err := stats.Apply(clean)
			if err != nil {
				return nil, fmt.Errorf("company %s year %d: %w", h.CompanyID, v.Year, err)
			}
			missing := make([]float64, len(v.Missing))
			copy(missing, v.Missing)
			scaled.Vectors[i] = model.NormalizedVector{Year: v.Year, Values: values, Missing: missing}
		}
		out = append(out, scaled)
	}
	return out, nil
}

// FitTransform fits statistics on the corpus and applies them to it
func (s *Standardizer) FitTransform(histories []model.CompanyHistory) ([]model.CompanyHistory, model.StandardizationStats, error) {
	stats, err := s.Fit(histories)
	if err != nil {
		return nil, stats, err
	}
	out, err := s.Transform(histories, stats)
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}
