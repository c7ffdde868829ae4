package feature

import (
	"github.com/montanaflynn/stats"

	"github.com/tunogya/elois/pkg/model"
)

// Summary describes a normalized corpus for the preprocessing report
type Summary struct {
	Companies    int     `json:"companies"`
	Years        int     `json:"years"`
	MinYears     float64 `json:"min_years"`
	MedianYears  float64 `json:"median_years"`
	P90Years     float64 `json:"p90_years"`
	MaxYears     float64 `json:"max_years"`
	MissingShare float64 `json:"missing_share"`
	EarliestYear int     `json:"earliest_year"`
	LatestYear   int     `json:"latest_year"`
}

// Summarize computes history-length and missingness statistics
func Summarize(histories []model.CompanyHistory) Summary {
	var sum Summary
	lengths := make(stats.Float64Data, 0, len(histories))
	var missing, cells float64

	for _, h := range histories {
		if h.IsEmpty() {
			continue
		}
		sum.Companies++
		sum.Years += h.Len()
		lengths = append(lengths, float64(h.Len()))
		for _, v := range h.Vectors {
			for _, m := range v.Missing {
				missing += m
			}
			cells += float64(len(v.Missing))
			if sum.EarliestYear == 0 || v.Year < sum.EarliestYear {
				sum.EarliestYear = v.Year
			}
			if v.Year > sum.LatestYear {
				sum.LatestYear = v.Year
			}
		}
	}
	if len(lengths) == 0 {
		return sum
	}

	sum.MinYears, _ = lengths.Min()
	sum.MaxYears, _ = lengths.Max()
	sum.MedianYears, _ = lengths.Median()
	sum.P90Years, _ = lengths.Percentile(90)
	if cells > 0 {
		sum.MissingShare = missing / cells
	}
	return sum
}
