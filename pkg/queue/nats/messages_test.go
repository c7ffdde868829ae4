package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/elois/pkg/feature"
	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

func histories(n int) []model.CompanyHistory {
	out := make([]model.CompanyHistory, n)
	for i := range out {
		out[i] = model.CompanyHistory{
			CompanyID: string(rune('A' + i)),
			Vectors:   []model.NormalizedVector{{Year: 2001 + i, Values: []float64{0.5, 1}, Missing: []float64{0, 1}}},
		}
	}
	return out
}

// wideHistories builds companies shaped like real preprocessing output
func wideHistories(n, years, width int) []model.CompanyHistory {
	out := make([]model.CompanyHistory, n)
	for i := range out {
		h := model.CompanyHistory{CompanyID: "company-" + string(rune('a'+i%26)) + string(rune('a'+i/26%26))}
		for y := range years {
			v := model.NormalizedVector{Year: 2000 + y, Values: make([]float64, width), Missing: make([]float64, width)}
			for j := range width {
				v.Values[j] = -1.2345678901234 + float64(i*j)/7
			}
			h.Vectors = append(h.Vectors, v)
		}
		out[i] = h
	}
	return out
}

func TestHistoryBatchCodec(t *testing.T) {
	batches, err := Batch("run", histories(5), 2, 0)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, 2, batches[2].Seq)
	assert.Len(t, batches[2].Histories, 1)

	data, err := Encode(batches[0])
	require.NoError(t, err)
	msg, err := DecodeHistoryBatch(data)
	require.NoError(t, err)
	assert.Equal(t, batches[0], *msg)
}

func TestBatchRespectsMaxBytes(t *testing.T) {
	const maxBytes = 64 * 1024
	in := wideHistories(60, 10, 74)

	batches, err := Batch("run", in, 500, maxBytes)
	require.NoError(t, err)
	require.Greater(t, len(batches), 1)

	var got []model.CompanyHistory
	for i, b := range batches {
		assert.Equal(t, i, b.Seq)
		assert.Equal(t, "run", b.RunID)
		assert.NotEmpty(t, b.Histories)

		data, err := Encode(b)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data), maxBytes, "batch %d", i)
		got = append(got, b.Histories...)
	}
	assert.Equal(t, in, got)
}

func TestBatchCountCapStillApplies(t *testing.T) {
	batches, err := Batch("run", wideHistories(7, 2, 4), 3, 1<<20)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Histories, 3)
	assert.Len(t, batches[2].Histories, 1)
}

func TestBatchRejectsOversizeCompany(t *testing.T) {
	_, err := Batch("run", wideHistories(2, 10, 74), 500, 1024)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestBatchEmpty(t *testing.T) {
	batches, err := Batch("run", nil, 500, 1024)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestDecodeHistoryBatchRejectsBadShape(t *testing.T) {
	_, err := DecodeHistoryBatch([]byte(`{"run_id":"r","histories":[{"company_id":"A","vectors":[{"year":1,"values":[1,2],"missing":[0]}]}]}`))
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeHistoryBatch([]byte(`{`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeHistoryBatch([]byte(`{"seq":1,"histories":[]}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestStatsCodec(t *testing.T) {
	in := StatsMsg{
		RunID:      "run",
		Stats:      model.StandardizationStats{Fields: []string{"a", schema.FieldReportedCurrency}, Mean: []float64{1, 0}, Std: []float64{2, 1}},
		Currencies: schema.DefaultCurrencies().Rows(),
		Report:     feature.Report{Total: 3, Invalid: 1},
		Companies:  2,
		CreatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := Encode(in)
	require.NoError(t, err)
	out, err := DecodeStats(data)
	require.NoError(t, err)
	assert.Equal(t, in, *out)
	assert.ElementsMatch(t, []string{SubjectHistoryWrite, SubjectStatsWrite}, Subjects())

	_, err = DecodeStats([]byte(`{"report":{}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}
