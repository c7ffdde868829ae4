package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeShard(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseShardKeepsDocumentOrder(t *testing.T) {
	doc := []byte(`{
		"ZZZ": [{"calendarYear": "2001"}, {"calendarYear": "2002"}],
		"AAA": [{"calendarYear": "2003"}]
	}`)

	companies, err := ParseShard(doc, false)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, "ZZZ", companies[0].CompanyID)
	assert.Equal(t, "AAA", companies[1].CompanyID)
	assert.Equal(t, 2001.0, companies[0].Statements[0].CalendarYear())
}

func TestParseShardReverse(t *testing.T) {
	doc := []byte(`{"X": [{"calendarYear": 2010}, {"calendarYear": 2009}, {"calendarYear": 2008}]}`)

	companies, err := ParseShard(doc, true)
	require.NoError(t, err)
	years := []float64{}
	for _, s := range companies[0].Statements {
		years = append(years, s.CalendarYear())
	}
	assert.Equal(t, []float64{2008, 2009, 2010}, years)
}

func TestParseShardRejectsMalformed(t *testing.T) {
	_, err := ParseShard([]byte(`{"X": [`), false)
	assert.Error(t, err)

	_, err = ParseShard([]byte(`[1, 2]`), false)
	assert.Error(t, err)

	_, err = ParseShard([]byte(`{"X": 3}`), false)
	assert.Error(t, err)
}

func TestJSONProviderMergesShards(t *testing.T) {
	dir := t.TempDir()
	a := writeShard(t, dir, "full_reports_0.json", `{"A": [{"calendarYear": 2001}], "B": [{"calendarYear": 2002}]}`)
	b := writeShard(t, dir, "full_reports_1.json", `{"C": [{"calendarYear": 2003}], "A": [{"calendarYear": 2004}, {"calendarYear": 2005}]}`)

	p := NewJSONProvider(DefaultShardConfig(a, b))
	var seen []ShardProgress
	p.OnProgress(func(sp ShardProgress) { seen = append(seen, sp) })

	companies, err := p.FetchCompanies(context.Background())
	require.NoError(t, err)

	ids := []string{}
	for _, c := range companies {
		ids = append(ids, c.CompanyID)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
	assert.Len(t, companies[0].Statements, 2, "later shard replaces earlier reports")

	require.Len(t, seen, 2)
	assert.Equal(t, a, seen[0].Shard)
	assert.Equal(t, 2, seen[0].Companies)
	assert.Equal(t, 3, seen[1].Records)

	again, err := p.FetchCompanies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, companies, again)
}

func TestJSONProviderMissingFile(t *testing.T) {
	p := NewJSONProvider(DefaultShardConfig(filepath.Join(t.TempDir(), "missing.json")))
	_, err := p.FetchCompanies(context.Background())
	assert.Error(t, err)
}

func TestParseShardRepeatedKeyKeepsLastReports(t *testing.T) {
	doc := []byte(`{
		"A": [{"calendarYear": 2001}],
		"B": [{"calendarYear": 2002}],
		"A": [{"calendarYear": 2005}, {"calendarYear": 2006}]
	}`)

	companies, err := ParseShard(doc, false)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, "A", companies[0].CompanyID)
	assert.Equal(t, "B", companies[1].CompanyID)
	require.Len(t, companies[0].Statements, 2)
	assert.Equal(t, 2005.0, companies[0].Statements[0].CalendarYear())
}
