package window

import (
	"errors"
	"fmt"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

// ErrShortHistory is returned when a company has fewer years than a window needs
var ErrShortHistory = errors.New("history shorter than window")

// Builder turns a company's yearly vectors into training samples.
// The ring holds W input years plus the target year.
type Builder struct {
	W              int // input years per sample
	FeatureVersion int // version for sample ID generation
	TargetField    string

	fields    int
	target    int
	companyID string
	ring      *yearRing
}

// Config holds configuration for the window builder
type Config struct {
	W              int    `yaml:"w" validate:"min=1"`
	FeatureVersion int    `yaml:"feature_version"`
	TargetField    string `yaml:"target_field"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		W:              3,
		FeatureVersion: 1,
		TargetField:    schema.FieldNetIncome,
	}
}

// NewBuilder creates a new window builder for the given schema
func NewBuilder(cfg Config, s *schema.Schema) (*Builder, error) {
	if cfg.W < 1 {
		return nil, fmt.Errorf("window length must be positive, got %d", cfg.W)
	}
	if cfg.TargetField == "" {
		cfg.TargetField = schema.FieldNetIncome
	}
	if cfg.FeatureVersion == 0 {
		cfg.FeatureVersion = 1
	}
	target, err := s.Index(cfg.TargetField)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target field: %w", err)
	}

	return &Builder{
		W:              cfg.W,
		FeatureVersion: cfg.FeatureVersion,
		TargetField:    cfg.TargetField,
		fields:         s.Len(),
		target:         target,
		ring:           newYearRing(cfg.W + 1),
	}, nil
}

// InputWidth returns the flattened input width (n_embd)
func (b *Builder) InputWidth() int {
	return b.W * b.fields
}

// Reset clears the ring and starts a new company
func (b *Builder) Reset(companyID string) {
	b.ring.reset()
	b.companyID = companyID
}

// Push adds the next year of the current company and emits a sample once W+1
// years are buffered. Years whose target field was missing emit nothing.
func (b *Builder) Push(v model.NormalizedVector) (*model.TrainingSample, bool) {
	b.ring.push(v)
	if !b.ring.full() {
		return nil, false
	}
	return b.sample(b.ring.window())
}

// Split produces one training and one validation sample per company: the newest
// window validates, the window ending one year earlier trains. Companies with
// fewer than W+2 years are skipped.
func (b *Builder) Split(histories []model.CompanyHistory) (train, val []*model.TrainingSample) {
	for _, h := range histories {
		n := h.Len()
		if n < b.W+2 {
			continue
		}

		b.Reset(h.CompanyID)
		tail := h.Vectors[n-b.W-2:]
		for i, v := range tail {
			s, ok := b.Push(v)
			switch {
			case !ok:
			case i == len(tail)-1:
				val = append(val, s)
			default:
				train = append(train, s)
			}
		}
	}
	return train, val
}

// LatestInput returns the newest W years of a history as an input with no target
func (b *Builder) LatestInput(h model.CompanyHistory) (*model.TrainingSample, error) {
	n := h.Len()
	if n < b.W {
		return nil, fmt.Errorf("%w: company %s has %d years, need %d", ErrShortHistory, h.CompanyID, n, b.W)
	}
	years := h.Vectors[n-b.W:]
	values, mask := b.flatten(years)
	latest := years[len(years)-1].Year
	return &model.TrainingSample{
		SampleID:   model.GenerateSampleID(h.CompanyID, latest+1, b.W, b.FeatureVersion),
		CompanyID:  h.CompanyID,
		TargetYear: latest + 1,
		Values:     values,
		Mask:       mask,
	}, nil
}

// sample builds a sample from W+1 consecutive vectors, oldest first
func (b *Builder) sample(years []model.NormalizedVector) (*model.TrainingSample, bool) {
	last := years[len(years)-1]
	if last.Missing[b.target] != 0 {
		return nil, false
	}

	values, mask := b.flatten(years[:len(years)-1])
	return &model.TrainingSample{
		SampleID:   model.GenerateSampleID(b.companyID, last.Year, b.W, b.FeatureVersion),
		CompanyID:  b.companyID,
		TargetYear: last.Year,
		Values:     values,
		Mask:       mask,
		Target:     []float64{last.Values[b.target]},
	}, true
}

// flatten concatenates the input years most recent first
func (b *Builder) flatten(years []model.NormalizedVector) (values, mask []float64) {
	values = make([]float64, 0, len(years)*b.fields)
	mask = make([]float64, 0, len(years)*b.fields)
	for i := len(years) - 1; i >= 0; i-- {
		values = append(values, years[i].Values...)
		mask = append(mask, years[i].Missing...)
	}
	return values, mask
}
