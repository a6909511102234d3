package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"enrich/internal/artifactstore"
	"enrich/internal/domain"
	apperrors "enrich/internal/errors"
	"enrich/internal/report"
)

// State is a step of the per-sample analysis.
type State string

const (
	StateLoading              State = "loading"
	StateQuerying             State = "querying"
	StateFilteringAndPlotting State = "filtering_and_plotting"
	StateSuccess              State = "success"
	StateFailed               State = "failed"
)

// SampleRequest names one DEG table to analyze.
type SampleRequest struct {
	Path string
	Name string
}

// AnalyzerOptions are the per-run parameters shared by every sample.
type AnalyzerOptions struct {
	Threshold        float64
	TopN             int
	QueryConcurrency int
	// Observe, when set, is called on every state transition.
	Observe func(sample string, s State)
}

// Analyzer runs the full pipeline for one sample: load, query every
// (category, direction) pair, persist, filter, plot and count.
type Analyzer struct {
	loader     domain.DatasetLoader
	invoker    *Invoker
	renderer   domain.ChartRenderer
	store      domain.ArtifactStore
	categories []domain.Category
	opts       AnalyzerOptions
	logger     *slog.Logger
}

func NewAnalyzer(loader domain.DatasetLoader, invoker *Invoker, renderer domain.ChartRenderer, store domain.ArtifactStore, categories []domain.Category, opts AnalyzerOptions, logger *slog.Logger) *Analyzer {
	if opts.TopN < 1 {
		opts.TopN = 10
	}
	if opts.QueryConcurrency < 1 {
		opts.QueryConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		loader:     loader,
		invoker:    invoker,
		renderer:   renderer,
		store:      store,
		categories: append([]domain.Category(nil), categories...),
		opts:       opts,
		logger:     logger.With(slog.String("component", "analyzer")),
	}
}

// query is one (category, direction) enrichment request and its result.
type query struct {
	category  domain.Category
	direction domain.Direction
	genes     domain.GeneSet
	result    *domain.ResultTable
}

// Analyze never returns an error: a sample either succeeds, possibly with
// missing results, or fails because its table could not be loaded or the
// run was canceled while querying.
func (a *Analyzer) Analyze(ctx context.Context, req SampleRequest) domain.SampleOutcome {
	start := time.Now()
	log := a.logger.With(slog.String("sample", req.Name))
	outcome := domain.SampleOutcome{SampleName: req.Name, Path: req.Path}

	a.enter(req.Name, StateLoading)
	log.Info("starting analysis", slog.String("path", req.Path))
	up, down, err := a.loader.Load(req.Path)
	if err != nil {
		a.enter(req.Name, StateFailed)
		log.Error("failed to load DEGs", slog.String("error", err.Error()))
		outcome.Status = domain.StatusFailed
		outcome.Error = err.Error()
		outcome.Duration = time.Since(start)
		return outcome
	}
	outcome.UpGenes, outcome.DownGenes = up.Len(), down.Len()

	a.enter(req.Name, StateQuerying)
	queries := a.plan(up, down)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.QueryConcurrency)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			label := resultName(req.Name, q.category, q.direction)
			q.result = a.invoker.Run(gctx, q.genes, []string{q.category.Library}, label)
			if q.result != nil {
				a.persistTable(gctx, log, resultKey(req.Name, q.category, q.direction), q.result)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		a.enter(req.Name, StateFailed)
		log.Warn("analysis canceled", slog.String("error", err.Error()))
		outcome.Status = domain.StatusFailed
		outcome.Error = fmt.Sprintf("analysis canceled: %v", err)
		outcome.Duration = time.Since(start)
		return outcome
	}

	a.enter(req.Name, StateFilteringAndPlotting)
	for i, cat := range a.categories {
		upRes, downRes := queries[2*i].result, queries[2*i+1].result
		upSig := FilterSignificant(upRes, a.opts.Threshold)
		downSig := FilterSignificant(downRes, a.opts.Threshold)

		a.plot(ctx, log, upRes, downRes, chartTitle(req.Name, cat, false), chartKey(req.Name, cat, false))
		a.plot(ctx, log, upSig, downSig, chartTitle(req.Name, cat, true), chartKey(req.Name, cat, true))

		outcome.Counts = append(outcome.Counts,
			domain.SignificantCount{Key: CountKey(cat, domain.Upregulated), Category: cat.Key(), Direction: domain.Upregulated, Count: upSig.Len()},
			domain.SignificantCount{Key: CountKey(cat, domain.Downregulated), Category: cat.Key(), Direction: domain.Downregulated, Count: downSig.Len()},
		)
	}

	a.enter(req.Name, StateSuccess)
	outcome.Status = domain.StatusSuccess
	outcome.Duration = time.Since(start)
	log.Info("analysis completed", slog.Duration("duration", outcome.Duration))
	return outcome
}

// plan lays queries out as category-major, up before down.
func (a *Analyzer) plan(up, down domain.GeneSet) []*query {
	out := make([]*query, 0, 2*len(a.categories))
	for _, cat := range a.categories {
		out = append(out,
			&query{category: cat, direction: domain.Upregulated, genes: up},
			&query{category: cat, direction: domain.Downregulated, genes: down},
		)
	}
	return out
}

func (a *Analyzer) enter(sample string, s State) {
	a.logger.Debug("state", slog.String("sample", sample), slog.String("state", string(s)))
	if a.opts.Observe != nil {
		a.opts.Observe(sample, s)
	}
}

func (a *Analyzer) persistTable(ctx context.Context, log *slog.Logger, key string, t *domain.ResultTable) {
	data, err := report.ResultTableXLSX(t)
	if err == nil {
		err = a.store.Put(ctx, key, bytes.NewReader(data), artifactstore.ContentTypeXLSX)
	}
	if err != nil {
		perr := apperrors.Persistence(key, err)
		log.Error("failed to save results", slog.String("code", apperrors.GetCode(perr)), slog.String("error", perr.Error()))
		return
	}
	log.Info("results saved", slog.String("key", key), slog.Int("rows", t.Len()))
}

func (a *Analyzer) plot(ctx context.Context, log *slog.Logger, up, down *domain.ResultTable, title, key string) {
	data, err := a.renderer.Compare(up, down, title, a.opts.TopN)
	if err != nil {
		log.Warn("failed to render chart", slog.String("title", title), slog.String("error", err.Error()))
		return
	}
	if data == nil {
		return
	}
	if err := a.store.Put(ctx, key, bytes.NewReader(data), artifactstore.ContentTypePNG); err != nil {
		perr := apperrors.Persistence(key, err)
		log.Error("failed to save plot", slog.String("code", apperrors.GetCode(perr)), slog.String("error", perr.Error()))
		return
	}
	log.Info("plot saved", slog.String("key", key))
}

// resultName is the base name of a persisted result table, e.g.
// S1_up_GO_Biological_Process or S1_down_KEGG.
func resultName(sample string, cat domain.Category, d domain.Direction) string {
	if cat.Group == domain.GroupGO {
		return fmt.Sprintf("%s_%s_GO_%s", sample, d.Short(), cat.Name)
	}
	return fmt.Sprintf("%s_%s_%s", sample, d.Short(), cat.Name)
}

func resultKey(sample string, cat domain.Category, d domain.Direction) string {
	dir := "pathway_results"
	if cat.Group == domain.GroupGO {
		dir = "go_results"
	}
	return fmt.Sprintf("%s/%s/%s.xlsx", sample, dir, resultName(sample, cat, d))
}

func chartKey(sample string, cat domain.Category, significant bool) string {
	name := fmt.Sprintf("%s_%s_pathways", sample, cat.Key())
	if cat.Group == domain.GroupGO {
		name = fmt.Sprintf("%s_GO_%s", sample, cat.Key())
	}
	if significant {
		name += "_significant"
	}
	return fmt.Sprintf("%s/plots/%s.png", sample, name)
}

func chartTitle(sample string, cat domain.Category, significant bool) string {
	title := fmt.Sprintf("%s - %s Pathways", sample, strings.ToUpper(cat.Name))
	if cat.Group == domain.GroupGO {
		title = fmt.Sprintf("%s - GO %s", sample, strings.ReplaceAll(cat.Name, "_", " "))
	}
	if significant {
		title += " (Significant)"
	}
	return title
}

// CountKey names a significant-term count, e.g. go_biological_process_up_significant
// or kegg_down_significant.
func CountKey(cat domain.Category, d domain.Direction) string {
	if cat.Group == domain.GroupGO {
		return fmt.Sprintf("go_%s_%s_significant", cat.Key(), d.Short())
	}
	return fmt.Sprintf("%s_%s_significant", cat.Key(), d.Short())
}
