package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when vectors disagree with the schema width
var ErrShapeMismatch = errors.New("shape mismatch")

// NormalizedVector is one fiscal year of a company in schema order.
// Missing[i] is 1 when field i was absent or not numeric in the raw report.
type NormalizedVector struct {
	Year    int       `json:"year"`
	Values  []float64 `json:"values"`
	Missing []float64 `json:"missing"`
}

// Width returns the number of fields in the vector
func (v NormalizedVector) Width() int {
	return len(v.Values)
}

// Copy creates a deep copy of the vector
func (v NormalizedVector) Copy() NormalizedVector {
	out := NormalizedVector{
		Year:    v.Year,
		Values:  make([]float64, len(v.Values)),
		Missing: make([]float64, len(v.Missing)),
	}
	copy(out.Values, v.Values)
	copy(out.Missing, v.Missing)
	return out
}

// CompanyHistory is the list of valid yearly vectors of one company, oldest first
type CompanyHistory struct {
	CompanyID string             `json:"company_id"`
	Vectors   []NormalizedVector `json:"vectors"`
}

// Len returns the number of years in the history
func (h CompanyHistory) Len() int {
	return len(h.Vectors)
}

// IsEmpty reports whether the company kept no year at all
func (h CompanyHistory) IsEmpty() bool {
	return len(h.Vectors) == 0
}

// Latest returns the most recent vector
func (h CompanyHistory) Latest() *NormalizedVector {
	if len(h.Vectors) == 0 {
		return nil
	}
	return &h.Vectors[len(h.Vectors)-1]
}

// StandardizationStats holds the per-field affine transform fitted on the corpus.
// The last field is a discrete code and always has mean 0 and std 1.
type StandardizationStats struct {
	Fields []string  `json:"fields"`
	Mean   []float64 `json:"mean"`
	Std    []float64 `json:"std"`
}

// Width returns the number of fields covered
func (s StandardizationStats) Width() int {
	return len(s.Mean)
}

// Apply standardizes values into a new slice. Non-finite results become 0.
func (s StandardizationStats) Apply(values []float64) ([]float64, error) {
	if len(values) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d values, stats cover %d", ErrShapeMismatch, len(values), len(s.Mean))
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = Finite((v - s.Mean[i]) / s.Std[i])
	}
	return out, nil
}

// Invert maps standardized values back to the original scale
func (s StandardizationStats) Invert(values []float64) ([]float64, error) {
	if len(values) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d values, stats cover %d", ErrShapeMismatch, len(values), len(s.Mean))
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v*s.Std[i] + s.Mean[i]
	}
	return out, nil
}

// Destandardize maps one standardized value of a named field back to its original scale
func (s StandardizationStats) Destandardize(field string, v float64) (float64, error) {
	for i, name := range s.Fields {
		if name == field {
			return v*s.Std[i] + s.Mean[i], nil
		}
	}
	return 0, fmt.Errorf("field %s not covered by stats", field)
}

// Finite replaces NaN and infinities with 0
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
