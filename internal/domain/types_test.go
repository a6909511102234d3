package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneSetDedupesInFirstSeenOrder(t *testing.T) {
	s := NewGeneSet("TP53", "", "MYC", "TP53", "BAX")
	assert.Equal(t, []string{"TP53", "MYC", "BAX"}, s.Genes())
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("MYC"))
	assert.False(t, s.Contains(""))

	genes := s.Genes()
	genes[0] = "changed"
	assert.Equal(t, "TP53", s.Genes()[0])
}

func TestZeroGeneSetIsEmpty(t *testing.T) {
	var s GeneSet
	assert.True(t, s.Empty())
	assert.False(t, s.Contains("A"))
	assert.Empty(t, s.Genes())
}

func TestResultTableNilSafe(t *testing.T) {
	var table *ResultTable
	assert.Equal(t, 0, table.Len())
	assert.Nil(t, table.Head(5))

	table = &ResultTable{Rows: []ResultRow{{Term: "a"}, {Term: "b"}, {Term: "c"}}}
	assert.Len(t, table.Head(2), 2)
	assert.Len(t, table.Head(10), 3)
	assert.Nil(t, table.Head(0))
}

func TestBatchSummaryTotalsAndKeys(t *testing.T) {
	b := BatchSummary{Outcomes: []SampleOutcome{
		{Status: StatusFailed},
		{Status: StatusSuccess, Counts: []SignificantCount{{Key: "kegg_up_significant"}, {Key: "kegg_down_significant"}}},
		{Status: StatusSuccess, Counts: []SignificantCount{{Key: "kegg_up_significant"}}},
	}}
	assert.Equal(t, 2, b.Succeeded())
	assert.Equal(t, 1, b.Failed())
	assert.Equal(t, []string{"kegg_up_significant", "kegg_down_significant"}, b.CountKeys())
}

func TestDirectionShort(t *testing.T) {
	assert.Equal(t, "up", Upregulated.Short())
	assert.Equal(t, "down", Downregulated.Short())
	assert.Equal(t, "biological_process", Category{Name: "Biological_Process"}.Key())
}
