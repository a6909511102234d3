package domain

import (
	"strings"
	"time"
)

// Direction is the regulation direction of a differentially expressed gene.
type Direction string

const (
	Upregulated   Direction = "Upregulated"
	Downregulated Direction = "Downregulated"
)

// Directions lists both directions in the order they are queried and reported.
var Directions = []Direction{Upregulated, Downregulated}

// Short returns the lower-case prefix used in artifact names and count keys.
func (d Direction) Short() string {
	if d == Upregulated {
		return "up"
	}
	return "down"
}

// GeneSet is an immutable, de-duplicated set of gene symbols. Iteration order is
// the order in which genes were first seen.
type GeneSet struct {
	genes []string
	index map[string]struct{}
}

// NewGeneSet builds a set from the given symbols, dropping blanks and duplicates.
func NewGeneSet(genes ...string) GeneSet {
	s := GeneSet{index: make(map[string]struct{}, len(genes))}
	for _, g := range genes {
		if g == "" {
			continue
		}
		if _, ok := s.index[g]; ok {
			continue
		}
		s.index[g] = struct{}{}
		s.genes = append(s.genes, g)
	}
	return s
}

func (s GeneSet) Len() int { return len(s.genes) }

func (s GeneSet) Empty() bool { return len(s.genes) == 0 }

func (s GeneSet) Contains(gene string) bool {
	_, ok := s.index[gene]
	return ok
}

// Genes returns a copy of the members in first-seen order.
func (s GeneSet) Genes() []string {
	out := make([]string, len(s.genes))
	copy(out, s.genes)
	return out
}

// CategoryGroup separates ontology categories from pathway databases.
type CategoryGroup string

const (
	GroupGO       CategoryGroup = "go"
	GroupPathways CategoryGroup = "pathways"
)

// Category is one term category queried per sample: a single gene-set library
// together with the names derived from it.
type Category struct {
	Group   CategoryGroup
	Library string // provider library identifier, e.g. GO_Biological_Process_2021
	Name    string // display name, e.g. Biological_Process or KEGG
}

// Key is the lower-case category identifier, e.g. biological_process or kegg.
func (c Category) Key() string { return strings.ToLower(c.Name) }

// ResultRow is one candidate term returned by the enrichment provider.
type ResultRow struct {
	GeneSet           string
	Term              string
	Overlap           string
	PValue            float64
	AdjustedPValue    float64
	OldPValue         float64
	OldAdjustedPValue float64
	OddsRatio         float64
	CombinedScore     float64
	Genes             []string
}

// ResultTable is the output of one enrichment query. Rows keep the provider's
// ranking. A nil *ResultTable means the query produced no result.
type ResultTable struct {
	Label string
	Rows  []ResultRow
}

// Len is safe on a nil table.
func (t *ResultTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Head returns at most n leading rows.
func (t *ResultTable) Head(n int) []ResultRow {
	if t == nil || n <= 0 {
		return nil
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// Status is the terminal status of a sample.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// SignificantCount is the number of significant terms for one (category, direction) pair.
type SignificantCount struct {
	Key       string // e.g. go_biological_process_up_significant
	Category  string
	Direction Direction
	Count     int
}

// SampleOutcome summarizes one analyzed sample. It becomes one row of the batch summary.
type SampleOutcome struct {
	SampleName string
	Path       string
	Status     Status
	UpGenes    int
	DownGenes  int
	Counts     []SignificantCount
	Error      string
	Duration   time.Duration
}

// Count looks up a significant-term count by key.
func (o SampleOutcome) Count(key string) (int, bool) {
	for _, c := range o.Counts {
		if c.Key == key {
			return c.Count, true
		}
	}
	return 0, false
}

// BatchSummary is the ordered list of outcomes of one batch run.
type BatchSummary struct {
	RunID      string
	Root       string
	Organism   string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []SampleOutcome
}

func (b BatchSummary) Succeeded() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == StatusSuccess {
			n++
		}
	}
	return n
}

func (b BatchSummary) Failed() int { return len(b.Outcomes) - b.Succeeded() }

// CountKeys returns every count key present in the summary in first-seen order.
func (b BatchSummary) CountKeys() []string {
	seen := map[string]struct{}{}
	var keys []string
	for _, o := range b.Outcomes {
		for _, c := range o.Counts {
			if _, ok := seen[c.Key]; ok {
				continue
			}
			seen[c.Key] = struct{}{}
			keys = append(keys, c.Key)
		}
	}
	return keys
}
