package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/domain"
	apperrors "enrich/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFoldChangeFallbackZeroIsDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "degs.xlsx")
	require.NoError(t, WriteWorkbook(path, []string{"gene", "log2FoldChange"}, [][]any{
		{"A", 2.0}, {"B", -1.0}, {"C", 0.5}, {"D", -3.0}, {"E", 1.5}, {"F", 0.0},
	}))

	up, down, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C", "E"}, up.Genes())
	assert.Equal(t, []string{"B", "D", "F"}, down.Genes())
	assert.Equal(t, 6, up.Len()+down.Len())
	assert.True(t, down.Contains("F"))
}

func TestLoadRegulationColumnPartitions(t *testing.T) {
	path := writeFile(t, "degs.csv", "gene,regulation,log2FoldChange\n"+
		"TP53,Upregulated,-5\n"+
		"MYC,Downregulated,5\n"+
		"EGFR,Upregulated,1\n"+
		"BRCA1,Downregulated,-1\n")

	up, down, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)

	// the regulation column wins over fold change when both exist
	assert.Equal(t, []string{"TP53", "EGFR"}, up.Genes())
	assert.Equal(t, []string{"MYC", "BRCA1"}, down.Genes())
	for _, g := range up.Genes() {
		assert.False(t, down.Contains(g))
	}
}

func TestLoadCustomColumnsTSV(t *testing.T) {
	path := writeFile(t, "degs.tsv", "symbol\tdir\nA\tUpregulated\nB\tDownregulated\nC\tUnchanged\n\tUpregulated\n")
	up, down, err := NewLoader(Options{GeneColumn: "symbol", RegulationColumn: "dir"}, nil).Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, up.Len())
	assert.Equal(t, 1, down.Len())
}

func TestLoadDeduplicatesGenes(t *testing.T) {
	path := writeFile(t, "dup.csv", "gene,log2FoldChange\nA,1\nA,2\nB,-1\n")
	up, down, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, up.Genes())
	assert.Equal(t, []string{"B"}, down.Genes())
}

func TestLoadEmptyFoldChangeIsDown(t *testing.T) {
	path := writeFile(t, "nan.csv", "gene,log2FoldChange\nA,\nB,3\n")
	up, down, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, up.Genes())
	assert.Equal(t, []string{"A"}, down.Genes())
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"missing gene column":       writeFile(t, "a.csv", "symbol,regulation\nA,Upregulated\n"),
		"missing direction columns": writeFile(t, "b.csv", "gene,pval\nA,0.1\n"),
		"bad fold change":           writeFile(t, "c.csv", "gene,log2FoldChange\nA,high\n"),
		"empty file":                writeFile(t, "d.csv", ""),
		"unsupported extension":     writeFile(t, "e.json", "{}"),
		"not a workbook":            writeFile(t, "f.xlsx", "plain text"),
	}
	loader := NewLoader(DefaultOptions(), nil)
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := loader.Load(path)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeDataLoad, apperrors.GetCode(err))
		})
	}

	_, _, err := loader.Load(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDataLoad))
}

func TestClassifyBoundary(t *testing.T) {
	assert.Equal(t, domain.Downregulated, Classify(0))
	assert.Equal(t, domain.Downregulated, Classify(-0.0001))
	assert.Equal(t, domain.Upregulated, Classify(0.0001))
}

func TestWriteTemplateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template_DEGs.xlsx")
	require.NoError(t, WriteTemplate(path))

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, TemplateHeader, table.Header)
	require.Len(t, table.Rows, 5)

	up, down, err := Split(table, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, up.Len())
	assert.Equal(t, 2, down.Len())
}
