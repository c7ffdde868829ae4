package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldSpec{
		{Name: schema.FieldNetIncome},
		{Name: schema.FieldCalendarYear},
		{Name: schema.FieldReportedCurrency},
	})
	require.NoError(t, err)
	return s
}

func vec(year int, netIncome float64) model.NormalizedVector {
	return model.NormalizedVector{
		Year:    year,
		Values:  []float64{netIncome, float64(year), 0},
		Missing: []float64{0, 0, 0},
	}
}

func historyOf(id string, from, to int) model.CompanyHistory {
	h := model.CompanyHistory{CompanyID: id}
	for y := from; y <= to; y++ {
		h.Vectors = append(h.Vectors, vec(y, float64(y-2000)))
	}
	return h
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(DefaultConfig(), testSchema(t))
	require.NoError(t, err)
	return b
}

// pushAll runs a whole history through the builder
func pushAll(b *Builder, h model.CompanyHistory) []*model.TrainingSample {
	b.Reset(h.CompanyID)
	var samples []*model.TrainingSample
	for _, v := range h.Vectors {
		if s, ok := b.Push(v); ok {
			samples = append(samples, s)
		}
	}
	return samples
}

func TestYearRing(t *testing.T) {
	r := newYearRing(2)
	assert.False(t, r.full())
	assert.Empty(t, r.window())

	r.push(vec(2001, 1))
	assert.Equal(t, []int{2001}, years(r.window()))

	r.push(vec(2002, 2))
	r.push(vec(2003, 3))
	assert.True(t, r.full())
	assert.Equal(t, []int{2002, 2003}, years(r.window()))

	r.reset()
	assert.False(t, r.full())
	assert.Empty(t, r.window())
}

func years(vs []model.NormalizedVector) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = v.Year
	}
	return out
}

func TestNewBuilderRejectsUnknownTarget(t *testing.T) {
	_, err := NewBuilder(Config{W: 3, TargetField: "nope"}, testSchema(t))
	assert.ErrorIs(t, err, schema.ErrUnknownField)

	_, err = NewBuilder(Config{W: 0}, testSchema(t))
	assert.Error(t, err)
}

func TestPushEmitsSlidingWindows(t *testing.T) {
	b := newBuilder(t)
	assert.Equal(t, 9, b.InputWidth())

	samples := pushAll(b, historyOf("ACME", 2001, 2005))
	require.Len(t, samples, 2)

	first := samples[0]
	assert.Equal(t, "ACME", first.CompanyID)
	assert.Equal(t, 2004, first.TargetYear)
	assert.Equal(t, []float64{4}, first.Target)
	require.Len(t, first.Values, 9)
	// most recent input year first
	assert.Equal(t, []float64{3, 2003, 0, 2, 2002, 0, 1, 2001, 0}, first.Values)
	assert.Equal(t, 2005, samples[1].TargetYear)

	assert.Empty(t, pushAll(b, historyOf("SHORT", 2001, 2003)))
}

func TestMissingTargetIsSkipped(t *testing.T) {
	b := newBuilder(t)
	h := historyOf("ACME", 2001, 2005)
	h.Vectors[4].Missing[0] = 1

	samples := pushAll(b, h)
	require.Len(t, samples, 1)
	assert.Equal(t, 2004, samples[0].TargetYear)
}

func TestSplit(t *testing.T) {
	b := newBuilder(t)
	train, val := b.Split([]model.CompanyHistory{
		historyOf("A", 2001, 2008),
		historyOf("B", 2001, 2004),
		historyOf("C", 2010, 2014),
	})

	require.Len(t, train, 2)
	require.Len(t, val, 2)
	assert.Equal(t, "A", train[0].CompanyID)
	assert.Equal(t, 2007, train[0].TargetYear)
	assert.Equal(t, 2008, val[0].TargetYear)
	assert.Equal(t, "C", val[1].CompanyID)
	assert.Equal(t, 2014, val[1].TargetYear)
	assert.NotEqual(t, train[0].SampleID, val[0].SampleID)
	// inputs of the validation window end on the training target year
	assert.Equal(t, []float64{7, 2007, 0}, val[0].Values[:3])
	assert.Equal(t, []float64{6, 2006, 0}, train[0].Values[:3])
}

func TestSplitMissingTarget(t *testing.T) {
	b := newBuilder(t)
	h := historyOf("A", 2001, 2006)
	h.Vectors[4].Missing[0] = 1

	train, val := b.Split([]model.CompanyHistory{h, historyOf("B", 2001, 2006)})
	require.Len(t, train, 1)
	assert.Equal(t, "B", train[0].CompanyID)
	require.Len(t, val, 2)
	assert.Equal(t, "A", val[0].CompanyID)
	assert.Equal(t, 2006, val[0].TargetYear)
}

func TestLatestInput(t *testing.T) {
	b := newBuilder(t)

	s, err := b.LatestInput(historyOf("A", 2001, 2006))
	require.NoError(t, err)
	assert.Equal(t, 2007, s.TargetYear)
	assert.Equal(t, 2006.0, s.Values[1])
	assert.Nil(t, s.Target)

	_, err = b.LatestInput(historyOf("B", 2001, 2002))
	assert.ErrorIs(t, err, ErrShortHistory)
}
