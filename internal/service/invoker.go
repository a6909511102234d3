package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"enrich/internal/domain"
	apperrors "enrich/internal/errors"
)

// Invoker submits one gene set to the enrichment provider and turns every
// failure into "no result". It is safe for concurrent use.
type Invoker struct {
	provider domain.EnrichmentProvider
	organism string
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

// NewInvoker bounds the number of in-flight provider calls to maxInFlight.
func NewInvoker(provider domain.EnrichmentProvider, organism string, maxInFlight int, logger *slog.Logger) *Invoker {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		provider: provider,
		organism: organism,
		sem:      semaphore.NewWeighted(int64(maxInFlight)),
		logger:   logger.With(slog.String("component", "invoker")),
	}
}

// Run returns the provider's result table, or nil when genes is empty or the
// query failed. Failures are logged as QUERY_ERROR and never propagate.
func (i *Invoker) Run(ctx context.Context, genes domain.GeneSet, libraries []string, label string) *domain.ResultTable {
	if genes.Empty() {
		i.logger.Warn("no genes to query", slog.String("label", label))
		return nil
	}
	if err := i.sem.Acquire(ctx, 1); err != nil {
		i.logQueryError(label, err)
		return nil
	}
	defer i.sem.Release(1)

	i.logger.Info("running enrichment",
		slog.String("label", label),
		slog.Int("genes", genes.Len()),
		slog.Any("libraries", libraries),
		slog.String("provider", i.provider.Name()))
	table, err := i.provider.Query(ctx, genes.Genes(), libraries, i.organism)
	if err != nil {
		i.logQueryError(label, err)
		return nil
	}
	if table == nil {
		return nil
	}
	// The provider may share its tables; label a shallow copy.
	labeled := *table
	labeled.Label = label
	return &labeled
}

func (i *Invoker) logQueryError(label string, err error) {
	qerr := apperrors.Query(label, err)
	i.logger.Error("enrichment query failed",
		slog.String("label", label),
		slog.String("code", apperrors.GetCode(qerr)),
		slog.String("error", qerr.Error()))
}
