package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TrainingSample is one model input: W yearly vectors flattened most recent first,
// their missingness mask, and the value to predict for the following year.
type TrainingSample struct {
	SampleID   string    `json:"sample_id"`
	CompanyID  string    `json:"company_id"`
	TargetYear int       `json:"target_year"`
	Values     []float64 `json:"values"`
	Mask       []float64 `json:"mask"` // 1 = missing, 0 = reported
	Target     []float64 `json:"target"`
}

// GenerateSampleID creates a deterministic sample ID
// Format: hash(company|target_year|W|feature_version)
func GenerateSampleID(companyID string, targetYear, w, featureVersion int) string {
	data := fmt.Sprintf("%s|%d|%d|%d", companyID, targetYear, w, featureVersion)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// Width returns the input width (n_embd)
func (s *TrainingSample) Width() int {
	return len(s.Values)
}

// MissingShare returns the fraction of masked inputs
func (s *TrainingSample) MissingShare() float64 {
	if len(s.Mask) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range s.Mask {
		sum += m
	}
	return sum / float64(len(s.Mask))
}
