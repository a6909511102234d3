package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/artifactstore/memory"
	"enrich/internal/catalog"
	"enrich/internal/dataset"
	"enrich/internal/domain"
)

// fixtureProvider answers every library with two terms, one significant.
// Libraries listed in fail return an error.
type fixtureProvider struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (p *fixtureProvider) Name() string { return "fixture" }

func (p *fixtureProvider) Query(ctx context.Context, genes []string, libraries []string, organism string) (*domain.ResultTable, error) {
	p.mu.Lock()
	p.calls = append(p.calls, libraries[0])
	p.mu.Unlock()
	if p.fail[libraries[0]] {
		return nil, errors.New("provider unavailable")
	}
	return &domain.ResultTable{Rows: []domain.ResultRow{
		{GeneSet: libraries[0], Term: "significant term", AdjustedPValue: 0.001, Genes: genes},
		{GeneSet: libraries[0], Term: "weak term", AdjustedPValue: 0.4, Genes: genes},
	}}, nil
}

func (p *fixtureProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeRenderer struct{}

func (fakeRenderer) Compare(up, down *domain.ResultTable, title string, topN int) ([]byte, error) {
	if len(up.Head(topN))+len(down.Head(topN)) == 0 {
		return nil, nil
	}
	return []byte("png:" + title), nil
}

func writeDEGs(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sixGenes = "gene,log2FoldChange\nA,2.5\nB,1.1\nC,-0.7\nD,0\nE,-3\nF,0.2\n"

// brokenStore rejects every write and delegates reads.
type brokenStore struct {
	*memory.Storage
	mu   sync.Mutex
	puts int
}

func (s *brokenStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return errors.New("read-only file system")
}

func (s *brokenStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func newTestAnalyzer(p domain.EnrichmentProvider, store domain.ArtifactStore, observe func(string, State)) *Analyzer {
	libs, _ := catalog.Builtin().Resolve("human")
	return newCatalogAnalyzer(p, store, libs, observe)
}

func newCatalogAnalyzer(p domain.EnrichmentProvider, store domain.ArtifactStore, libs catalog.Libraries, observe func(string, State)) *Analyzer {
	return NewAnalyzer(
		dataset.NewLoader(dataset.DefaultOptions(), nil),
		NewInvoker(p, "human", 4, nil),
		fakeRenderer{},
		store,
		libs.Categories(),
		AnalyzerOptions{Threshold: 0.05, TopN: 10, QueryConcurrency: 3, Observe: observe},
		nil,
	)
}

func TestAnalyzeSampleSuccess(t *testing.T) {
	path := writeDEGs(t, t.TempDir(), "S1.csv", sixGenes)
	p := &fixtureProvider{}
	store := memory.NewStorage()
	var states []State
	a := newTestAnalyzer(p, store, func(_ string, s State) { states = append(states, s) })

	out := a.Analyze(context.Background(), SampleRequest{Path: path, Name: "S1"})

	assert.Equal(t, domain.StatusSuccess, out.Status)
	assert.Equal(t, 3, out.UpGenes)
	assert.Equal(t, 3, out.DownGenes)
	assert.Empty(t, out.Error)
	assert.Equal(t, []State{StateLoading, StateQuerying, StateFilteringAndPlotting, StateSuccess}, states)
	assert.Equal(t, 10, p.callCount())

	require.Len(t, out.Counts, 10)
	assert.Equal(t, "go_biological_process_up_significant", out.Counts[0].Key)
	assert.Equal(t, "go_biological_process_down_significant", out.Counts[1].Key)
	assert.Equal(t, "wikipathways_up_significant", out.Counts[6].Key)
	assert.Equal(t, "kegg_down_significant", out.Counts[9].Key)
	for _, c := range out.Counts {
		assert.Equal(t, 1, c.Count, c.Key)
	}

	keys, err := store.List(context.Background(), "S1/")
	require.NoError(t, err)
	assert.Contains(t, keys, "S1/go_results/S1_up_GO_Biological_Process.xlsx")
	assert.Contains(t, keys, "S1/go_results/S1_down_GO_Cellular_Component.xlsx")
	assert.Contains(t, keys, "S1/pathway_results/S1_down_KEGG.xlsx")
	assert.Contains(t, keys, "S1/pathway_results/S1_up_WikiPathways.xlsx")
	assert.Contains(t, keys, "S1/plots/S1_GO_molecular_function.png")
	assert.Contains(t, keys, "S1/plots/S1_GO_molecular_function_significant.png")
	assert.Contains(t, keys, "S1/plots/S1_kegg_pathways_significant.png")
	assert.Len(t, keys, 20)
	assert.Equal(t, "png:S1 - KEGG Pathways (Significant)", string(store.Bytes("S1/plots/S1_kegg_pathways_significant.png")))
}

func TestAnalyzeQueryFailureIsAbsorbed(t *testing.T) {
	path := writeDEGs(t, t.TempDir(), "S2.csv", sixGenes)
	p := &fixtureProvider{fail: map[string]bool{"KEGG_2021_Human": true}}
	store := memory.NewStorage()
	a := newTestAnalyzer(p, store, nil)

	out := a.Analyze(context.Background(), SampleRequest{Path: path, Name: "S2"})

	assert.Equal(t, domain.StatusSuccess, out.Status)
	n, ok := out.Count("kegg_up_significant")
	assert.True(t, ok)
	assert.Equal(t, 0, n)
	n, _ = out.Count("wikipathways_up_significant")
	assert.Equal(t, 1, n)

	keys, err := store.List(context.Background(), "S2/")
	require.NoError(t, err)
	assert.NotContains(t, keys, "S2/pathway_results/S2_up_KEGG.xlsx")
	assert.NotContains(t, keys, "S2/plots/S2_kegg_pathways.png")
}

func TestAnalyzeEmptyDirectionSkipsProvider(t *testing.T) {
	path := writeDEGs(t, t.TempDir(), "S3.csv", "gene,log2FoldChange\nA,1\nB,2\n")
	p := &fixtureProvider{}
	a := newTestAnalyzer(p, memory.NewStorage(), nil)

	out := a.Analyze(context.Background(), SampleRequest{Path: path, Name: "S3"})

	assert.Equal(t, domain.StatusSuccess, out.Status)
	assert.Equal(t, 0, out.DownGenes)
	assert.Equal(t, 5, p.callCount())
	n, _ := out.Count("go_cellular_component_down_significant")
	assert.Equal(t, 0, n)
}

func TestAnalyzeLoadFailure(t *testing.T) {
	path := writeDEGs(t, t.TempDir(), "bad.csv", "symbol,score\nA,1\n")
	p := &fixtureProvider{}
	var states []State
	a := newTestAnalyzer(p, memory.NewStorage(), func(_ string, s State) { states = append(states, s) })

	out := a.Analyze(context.Background(), SampleRequest{Path: path, Name: "bad"})

	assert.Equal(t, domain.StatusFailed, out.Status)
	assert.NotEmpty(t, out.Error)
	assert.Empty(t, out.Counts)
	assert.Equal(t, []State{StateLoading, StateFailed}, states)
	assert.Equal(t, 0, p.callCount())
}

func TestCountKey(t *testing.T) {
	assert.Equal(t, "go_molecular_function_up_significant",
		CountKey(catalog.CategoryFor(domain.GroupGO, "GO_Molecular_Function_2018"), domain.Upregulated))
	assert.Equal(t, "wikipathways_down_significant",
		CountKey(catalog.CategoryFor(domain.GroupPathways, "WikiPathways_2019_Human"), domain.Downregulated))
}

func TestAnalyzePersistenceFailureKeepsSuccess(t *testing.T) {
	path := writeDEGs(t, t.TempDir(), "S4.csv", sixGenes)
	p := &fixtureProvider{}
	store := &brokenStore{Storage: memory.NewStorage()}
	a := newTestAnalyzer(p, store, nil)

	out := a.Analyze(context.Background(), SampleRequest{Path: path, Name: "S4"})

	assert.Equal(t, domain.StatusSuccess, out.Status)
	assert.Empty(t, out.Error)
	assert.Equal(t, 10, p.callCount())
	assert.Equal(t, 20, store.putCount())
	n, ok := out.Count("kegg_up_significant")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestAnalyzeCanceledRunFails(t *testing.T) {
	path := writeDEGs(t, t.TempDir(), "S5.csv", sixGenes)
	p := &fixtureProvider{}
	store := memory.NewStorage()
	var states []State
	a := newTestAnalyzer(p, store, func(_ string, s State) { states = append(states, s) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := a.Analyze(ctx, SampleRequest{Path: path, Name: "S5"})

	assert.Equal(t, domain.StatusFailed, out.Status)
	assert.Contains(t, out.Error, "canceled")
	assert.Empty(t, out.Counts)
	assert.Equal(t, []State{StateLoading, StateQuerying, StateFailed}, states)
	assert.Equal(t, 0, p.callCount())
	keys, _ := store.List(context.Background(), "")
	assert.Empty(t, keys)
}

func TestAnalyzeSameStemLibrariesKeepSeparateArtifacts(t *testing.T) {
	path := writeDEGs(t, t.TempDir(), "S6.csv", sixGenes)
	p := &fixtureProvider{}
	store := memory.NewStorage()
	libs := catalog.Libraries{
		GO:       []string{"GO_Biological_Process_2018", "GO_Biological_Process_2021"},
		Pathways: []string{"KEGG_2019_Human", "KEGG_2021_Human"},
	}
	a := newCatalogAnalyzer(p, store, libs, nil)

	out := a.Analyze(context.Background(), SampleRequest{Path: path, Name: "S6"})
	require.Equal(t, domain.StatusSuccess, out.Status)
	assert.Equal(t, 8, p.callCount())

	keys, err := store.List(context.Background(), "S6/")
	require.NoError(t, err)
	assert.Len(t, keys, 16)
	assert.Contains(t, keys, "S6/pathway_results/S6_up_KEGG.xlsx")
	assert.Contains(t, keys, "S6/pathway_results/S6_up_KEGG_2021_Human.xlsx")
	assert.Contains(t, keys, "S6/go_results/S6_down_GO_Biological_Process_2021.xlsx")
	assert.Contains(t, keys, "S6/plots/S6_kegg_2021_human_pathways.png")

	summary := domain.BatchSummary{Outcomes: []domain.SampleOutcome{out}}
	assert.Equal(t, []string{
		"go_biological_process_up_significant",
		"go_biological_process_down_significant",
		"go_biological_process_2021_up_significant",
		"go_biological_process_2021_down_significant",
		"kegg_up_significant",
		"kegg_down_significant",
		"kegg_2021_human_up_significant",
		"kegg_2021_human_down_significant",
	}, summary.CountKeys())
}
