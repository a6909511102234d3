package domain

import (
	"context"
	"io"
)

// EnrichmentProvider runs an over-representation query for a gene list against
// one or more gene-set libraries. The statistical test lives behind this interface.
type EnrichmentProvider interface {
	Name() string
	Query(ctx context.Context, genes []string, libraries []string, organism string) (*ResultTable, error)
}

// DatasetLoader reads a DEG table and splits it by regulation direction.
type DatasetLoader interface {
	Load(path string) (up, down GeneSet, err error)
}

// ChartRenderer draws an up-vs-down comparison chart. A nil slice with a nil
// error means there was nothing to draw.
type ChartRenderer interface {
	Compare(up, down *ResultTable, title string, topN int) ([]byte, error)
}

// ArtifactStore persists result tables, charts and summaries under slash-separated keys.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) (bool, error)
	Driver() string
}

// OutcomeRecorder keeps a durable history of batch runs.
type OutcomeRecorder interface {
	Record(ctx context.Context, summary BatchSummary) error
}
