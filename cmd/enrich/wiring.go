package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"enrich/internal/artifactstore"
	fsstore "enrich/internal/artifactstore/fs"
	"enrich/internal/artifactstore/memory"
	s3store "enrich/internal/artifactstore/s3"
	"enrich/internal/config"
	"enrich/internal/dataset"
	"enrich/internal/domain"
	apperrors "enrich/internal/errors"
	"enrich/internal/ledger"
	"enrich/internal/plot"
	"enrich/internal/provider/enrichr"
	"enrich/internal/service"
)

// pipeline holds the assembled components of one run.
type pipeline struct {
	analyzer    *service.Analyzer
	coordinator *service.Coordinator
	closers     []func() error
}

func (p *pipeline) Close() {
	for _, c := range p.closers {
		_ = c()
	}
}

// build assembles the components selected by cfg. Only an unusable output
// root or an unresolvable catalog stop the run here.
func build(ctx context.Context, cfg *config.AppConfig) (*pipeline, error) {
	logger := slog.Default()

	libs, err := cfg.BuildCatalog().Resolve(cfg.Organism)
	if err != nil {
		return nil, err
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrapf(err, "artifact store (%s)", cfg.Artifacts.Driver)
	}
	logger.Info("artifact store ready", slog.String("driver", store.Driver()))

	p := &pipeline{}
	var recorder domain.OutcomeRecorder
	if cfg.Ledger.Path != "" {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			logger.Warn("ledger disabled", slog.String("path", cfg.Ledger.Path), slog.String("error", err.Error()))
		} else {
			recorder = l
			p.closers = append(p.closers, l.Close)
		}
	}

	loader := dataset.NewLoader(dataset.Options{
		GeneColumn:       cfg.Columns.Gene,
		RegulationColumn: cfg.Columns.Regulation,
		FoldChangeColumn: cfg.Columns.FoldChange,
	}, logger)
	invoker := service.NewInvoker(prov, cfg.Organism, cfg.Concurrency.Queries, logger)
	p.analyzer = service.NewAnalyzer(loader, invoker, plot.NewRenderer(logger), store, libs.Categories(), service.AnalyzerOptions{
		Threshold:        cfg.Threshold,
		TopN:             cfg.TopN,
		QueryConcurrency: cfg.Concurrency.Queries,
	}, logger)
	p.coordinator = service.NewCoordinator(p.analyzer, store, recorder, service.CoordinatorOptions{
		Organism:          cfg.Organism,
		SampleConcurrency: cfg.Concurrency.Samples,
	}, logger)
	return p, nil
}

func buildProvider(cfg *config.AppConfig) (domain.EnrichmentProvider, error) {
	switch cfg.Provider.Type {
	case "enrichr", "":
		e := cfg.Provider.Enrichr
		if e == nil {
			return nil, apperrors.ConfigInvalid("enrichr provider config missing")
		}
		return enrichr.NewClient(enrichr.Config{
			BaseURL:           e.BaseURL,
			Timeout:           time.Duration(e.TimeoutSecs) * time.Second,
			MaxRetries:        e.Retries(),
			RequestsPerSecond: e.RequestsPerSecond,
			Description:       e.Description,
		}), nil
	default:
		return nil, apperrors.ConfigInvalid(fmt.Sprintf("unknown provider: %s", cfg.Provider.Type))
	}
}

// buildStore prepares the output location explicitly; stores never create
// their own roots.
func buildStore(ctx context.Context, cfg *config.AppConfig) (domain.ArtifactStore, error) {
	switch cfg.Artifacts.Driver {
	case artifactstore.DriverFilesystem, "":
		if err := os.MkdirAll(cfg.Artifacts.Root, 0o755); err != nil {
			return nil, err
		}
		return fsstore.New(cfg.Artifacts.Root)
	case artifactstore.DriverS3:
		s3cfg := cfg.Artifacts.S3
		if s3cfg == nil {
			return s3store.OpenFromEnv(ctx)
		}
		return s3store.New(ctx, s3store.Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Prefix:    s3cfg.Prefix,
			Endpoint:  s3cfg.Endpoint,
			PathStyle: s3cfg.PathStyle,
		})
	case artifactstore.DriverMemory:
		return memory.NewStorage(), nil
	default:
		return nil, apperrors.ConfigInvalid(fmt.Sprintf("unknown artifacts driver: %s", cfg.Artifacts.Driver))
	}
}
