package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawStatementCoercion(t *testing.T) {
	s := ParseRawStatement(`{
		"revenue": 1500,
		"grossProfit": "250.5",
		"eps": "n/a",
		"flag": true,
		"empty": null,
		"calendarYear": "2005",
		"reportedCurrency": " EUR "
	}`)

	v, ok := s.Get("revenue")
	assert.True(t, ok)
	assert.Equal(t, 1500.0, v)

	v, ok = s.Get("grossProfit")
	assert.True(t, ok)
	assert.Equal(t, 250.5, v)

	v, ok = s.Get("eps")
	assert.False(t, ok)
	assert.Equal(t, 0.0, v)

	v, ok = s.Get("flag")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = s.Get("empty")
	assert.False(t, ok)
	assert.Equal(t, 0.0, v)
	assert.True(t, s.Has("empty"))

	v, ok = s.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, 0.0, v)
	assert.False(t, s.Has("absent"))

	assert.Equal(t, 2005.0, s.CalendarYear())
	assert.Equal(t, "EUR", s.ReportedCurrency())
}

func TestCalendarYearNotNumeric(t *testing.T) {
	s := ParseRawStatement(`{"calendarYear": "FY"}`)
	assert.Equal(t, 0.0, s.CalendarYear())
}

func TestStatsRoundTrip(t *testing.T) {
	stats := StandardizationStats{
		Fields: []string{"a", "b", "reportedCurrency"},
		Mean:   []float64{10, -3, 0},
		Std:    []float64{2, 0.5, 1},
	}
	in := []float64{14, -2, 7}

	z, err := stats.Apply(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 7}, z)

	back, err := stats.Invert(z)
	require.NoError(t, err)
	for i := range in {
		assert.InDelta(t, in[i], back[i], 1e-12)
	}

	v, err := stats.Destandardize("a", 2)
	require.NoError(t, err)
	assert.Equal(t, 14.0, v)

	_, err = stats.Destandardize("zzz", 1)
	assert.Error(t, err)

	_, err = stats.Apply([]float64{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestStatsApplyZeroStd(t *testing.T) {
	stats := StandardizationStats{Fields: []string{"a", "c"}, Mean: []float64{1, 0}, Std: []float64{0, 1}}
	z, err := stats.Apply([]float64{5, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3}, z)
}

func TestFinite(t *testing.T) {
	assert.Equal(t, 0.0, Finite(math.NaN()))
	assert.Equal(t, 0.0, Finite(math.Inf(1)))
	assert.Equal(t, 0.0, Finite(math.Inf(-1)))
	assert.Equal(t, 1.5, Finite(1.5))
}

func TestGenerateSampleID(t *testing.T) {
	a := GenerateSampleID("AAPL", 2020, 3, 1)
	b := GenerateSampleID("AAPL", 2020, 3, 1)
	c := GenerateSampleID("AAPL", 2021, 3, 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestHistoryHelpers(t *testing.T) {
	h := CompanyHistory{CompanyID: "X"}
	assert.True(t, h.IsEmpty())
	assert.Nil(t, h.Latest())

	h.Vectors = []NormalizedVector{{Year: 2001, Values: []float64{1}}, {Year: 2002, Values: []float64{2}}}
	assert.Equal(t, 2002, h.Latest().Year)

	cp := h.Vectors[0].Copy()
	cp.Values[0] = 99
	assert.Equal(t, 1.0, h.Vectors[0].Values[0])
}

func TestMissingShare(t *testing.T) {
	s := TrainingSample{Mask: []float64{1, 0, 1, 0}}
	assert.Equal(t, 0.5, s.MissingShare())
}
