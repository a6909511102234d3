package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"enrich/internal/artifactstore"
	"enrich/internal/domain"
	apperrors "enrich/internal/errors"
	"enrich/internal/report"
)

// SummaryKey is where the batch summary workbook is stored.
const SummaryKey = "summary/batch_analysis_summary.xlsx"

// DefaultPattern matches the DEG workbooks of a batch.
const DefaultPattern = "*.xlsx"

// ErrNoInputs is returned when discovery finds nothing to analyze.
var ErrNoInputs = errors.New("no input files found")

// SampleAnalyzer is the per-sample step driven by the coordinator.
type SampleAnalyzer interface {
	Analyze(ctx context.Context, req SampleRequest) domain.SampleOutcome
}

// BatchRequest selects the inputs of one batch run.
type BatchRequest struct {
	Root    string
	Pattern string
}

// CoordinatorOptions configure a batch run.
type CoordinatorOptions struct {
	Organism          string
	SampleConcurrency int
}

// Coordinator runs the analyzer over every discovered file and isolates
// per-sample failures.
type Coordinator struct {
	analyzer SampleAnalyzer
	store    domain.ArtifactStore
	recorder domain.OutcomeRecorder
	opts     CoordinatorOptions
	logger   *slog.Logger
	newID    func() string
	openRoot func(root string) fs.FS
}

// NewCoordinator expects a ready store; recorder may be nil.
func NewCoordinator(analyzer SampleAnalyzer, store domain.ArtifactStore, recorder domain.OutcomeRecorder, opts CoordinatorOptions, logger *slog.Logger) *Coordinator {
	if opts.SampleConcurrency < 1 {
		opts.SampleConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		analyzer: analyzer,
		store:    store,
		recorder: recorder,
		opts:     opts,
		logger:   logger.With(slog.String("component", "coordinator")),
		newID:    newRunID,
		openRoot: dirFS,
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run analyzes every file under req.Root matching req.Pattern. Outcomes keep
// discovery order regardless of completion order. The returned error is
// ErrNoInputs, a discovery error, or a failure to persist the summary; sample
// failures are reported only through their outcomes.
func (c *Coordinator) Run(ctx context.Context, req BatchRequest) (domain.BatchSummary, error) {
	pattern := req.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	summary := domain.BatchSummary{
		RunID:     c.newID(),
		Root:      req.Root,
		Organism:  c.opts.Organism,
		StartedAt: time.Now().UTC(),
	}
	log := c.logger.With(slog.String("run_id", summary.RunID))

	files, skipped, err := discover(c.openRoot(req.Root), req.Root, pattern)
	if err != nil {
		log.Error("discovery failed", slog.String("root", req.Root), slog.String("error", err.Error()))
		return summary, err
	}
	for _, dir := range skipped {
		log.Warn("skipping unreadable directory", slog.String("path", dir))
	}
	if len(files) == 0 {
		log.Error("no files found", slog.String("root", req.Root), slog.String("pattern", pattern))
		summary.FinishedAt = time.Now().UTC()
		return summary, ErrNoInputs
	}
	log.Info("found files for batch analysis", slog.Int("files", len(files)))

	outcomes := make([]domain.SampleOutcome, len(files))
	g := new(errgroup.Group)
	g.SetLimit(c.opts.SampleConcurrency)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			outcomes[i] = c.analyzeIsolated(ctx, log, SampleRequest{Path: path, Name: SampleName(req.Root, path)})
			return nil
		})
	}
	_ = g.Wait()

	summary.Outcomes = outcomes
	summary.FinishedAt = time.Now().UTC()
	log.Info("batch analysis completed",
		slog.Int("succeeded", summary.Succeeded()),
		slog.Int("failed", summary.Failed()),
		slog.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)))

	if c.recorder != nil {
		if err := c.recorder.Record(ctx, summary); err != nil {
			log.Warn("failed to record run in ledger", slog.String("error", err.Error()))
		}
	}
	if err := c.persistSummary(ctx, summary); err != nil {
		log.Error("failed to save batch summary", slog.String("code", apperrors.GetCode(err)), slog.String("error", err.Error()))
		return summary, err
	}
	log.Info("batch summary saved", slog.String("key", SummaryKey))
	return summary, nil
}

// analyzeIsolated turns a panic or cancellation inside one sample into a
// failed outcome for that sample only.
func (c *Coordinator) analyzeIsolated(ctx context.Context, log *slog.Logger, req SampleRequest) (out domain.SampleOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.BatchItem(req.Path, fmt.Errorf("panic: %v", r))
			log.Error("sample panicked",
				slog.String("sample", req.Name),
				slog.String("code", apperrors.GetCode(err)),
				slog.String("error", err.Error()),
				slog.String("stack", string(debug.Stack())))
			out = failedOutcome(req, err, time.Since(start))
		}
	}()
	if err := ctx.Err(); err != nil {
		return failedOutcome(req, apperrors.BatchItem(req.Path, err), 0)
	}
	log.Info("processing file", slog.String("path", req.Path), slog.String("sample", req.Name))
	out = c.analyzer.Analyze(ctx, req)
	if out.SampleName == "" {
		out.SampleName = req.Name
	}
	if out.Status != domain.StatusSuccess {
		log.Error("sample failed", slog.String("sample", req.Name), slog.String("error", out.Error))
	}
	return out
}

func failedOutcome(req SampleRequest, err error, d time.Duration) domain.SampleOutcome {
	return domain.SampleOutcome{
		SampleName: req.Name,
		Path:       req.Path,
		Status:     domain.StatusFailed,
		Error:      err.Error(),
		Duration:   d,
	}
}

func (c *Coordinator) persistSummary(ctx context.Context, s domain.BatchSummary) error {
	data, err := report.SummaryXLSX(s)
	if err == nil {
		err = c.store.Put(ctx, SummaryKey, bytes.NewReader(data), artifactstore.ContentTypeXLSX)
	}
	if err != nil {
		return apperrors.Persistence(SummaryKey, err)
	}
	return nil
}

// Discover walks root recursively and returns the regular files whose base
// name matches pattern, in lexical path order. Subdirectories that cannot be
// read are skipped; only an unreadable root is an error.
func Discover(root, pattern string) ([]string, error) {
	files, _, err := discover(dirFS(root), root, pattern)
	return files, err
}

// dirFS treats an empty root as the working directory.
func dirFS(root string) fs.FS {
	if root == "" {
		root = "."
	}
	return os.DirFS(root)
}

// discover walks fsys and reports matches and skipped directories as paths
// joined onto root.
func discover(fsys fs.FS, root, pattern string) (files, skipped []string, err error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			skipped = append(skipped, filepath.Join(root, filepath.FromSlash(p)))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			files = append(files, filepath.Join(root, filepath.FromSlash(p)))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(files)
	return files, skipped, nil
}

// SampleName derives a sample name from the file path relative to root:
// condA/DEGs_x.xlsx becomes condA_DEGs_x.
func SampleName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	rel = filepath.ToSlash(rel)
	return strings.ReplaceAll(rel, "/", "_")
}
