// Package outcome measures forecast quality over a sample set.
package outcome

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/tunogya/elois/pkg/model"
)

// ErrLengthMismatch is returned when predictions and samples do not line up
var ErrLengthMismatch = errors.New("predictions and targets differ in length")

// Summary holds residual statistics (prediction - target) for one output
type Summary struct {
	N      int     `json:"n"`
	MAE    float64 `json:"mae"`
	RMSE   float64 `json:"rmse"`
	Bias   float64 `json:"bias"`
	P10    float64 `json:"p10"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	MaxAbs float64 `json:"max_abs"`
}

// Evaluate computes residual statistics of predictions against targets
func Evaluate(predictions, targets []float64) (Summary, error) {
	if len(predictions) != len(targets) {
		return Summary{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(predictions), len(targets))
	}
	if len(predictions) == 0 {
		return Summary{}, nil
	}

	residuals := make(stats.Float64Data, len(predictions))
	abs := make(stats.Float64Data, len(predictions))
	for i, p := range predictions {
		residuals[i] = p - targets[i]
		abs[i] = math.Abs(residuals[i])
	}

	s := Summary{N: len(residuals)}
	s.MAE, _ = abs.Mean()
	s.MaxAbs, _ = abs.Max()
	s.Bias, _ = residuals.Mean()
	s.P10, _ = residuals.Percentile(10)
	s.P50, _ = residuals.Median()
	s.P90, _ = residuals.Percentile(90)

	sq := 0.0
	for _, r := range residuals {
		sq += r * r
	}
	s.RMSE = math.Sqrt(sq / float64(len(residuals)))
	return s, nil
}

// Mapper converts a value of the target field back to reporting units
type Mapper func(v float64) float64

// EvaluateSamples scores the first output of each prediction against its
// sample target. A non-nil mapper is applied to both sides first.
func EvaluateSamples(samples []*model.TrainingSample, predictions [][]float64, mapper Mapper) (Summary, error) {
	preds, targets, err := pairs(samples, predictions, mapper)
	if err != nil {
		return Summary{}, err
	}
	return Evaluate(preds, targets)
}

// ByYear groups the evaluation by target year
func ByYear(samples []*model.TrainingSample, predictions [][]float64, mapper Mapper) (map[int]Summary, error) {
	preds, targets, err := pairs(samples, predictions, mapper)
	if err != nil {
		return nil, err
	}

	type group struct{ preds, targets []float64 }
	byYear := make(map[int]*group)
	for i, s := range samples {
		g, ok := byYear[s.TargetYear]
		if !ok {
			g = &group{}
			byYear[s.TargetYear] = g
		}
		g.preds = append(g.preds, preds[i])
		g.targets = append(g.targets, targets[i])
	}

	out := make(map[int]Summary, len(byYear))
	for year, g := range byYear {
		s, err := Evaluate(g.preds, g.targets)
		if err != nil {
			return nil, err
		}
		out[year] = s
	}
	return out, nil
}

// Years returns the keys of a ByYear result in ascending order
func Years(m map[int]Summary) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func pairs(samples []*model.TrainingSample, predictions [][]float64, mapper Mapper) ([]float64, []float64, error) {
	if len(samples) != len(predictions) {
		return nil, nil, fmt.Errorf("%w: %d samples, %d predictions", ErrLengthMismatch, len(samples), len(predictions))
	}
	preds := make([]float64, len(samples))
	targets := make([]float64, len(samples))
	for i, s := range samples {
		if len(s.Target) == 0 || len(predictions[i]) == 0 {
			return nil, nil, fmt.Errorf("%w: sample %s has no target or prediction", ErrLengthMismatch, s.SampleID)
		}
		preds[i], targets[i] = predictions[i][0], s.Target[0]
		if mapper != nil {
			preds[i], targets[i] = mapper(preds[i]), mapper(targets[i])
		}
	}
	return preds, targets, nil
}

// String returns a formatted string representation
func (s Summary) String() string {
	return fmt.Sprintf(
		"Samples: %d | MAE: %.4f | RMSE: %.4f | Bias: %.4f | P10: %.4f | P50: %.4f | P90: %.4f | MaxAbs: %.4f",
		s.N, s.MAE, s.RMSE, s.Bias, s.P10, s.P50, s.P90, s.MaxAbs,
	)
}
