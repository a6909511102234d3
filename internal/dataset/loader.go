// Package dataset loads differentially expressed gene tables.
package dataset

import (
	"log/slog"
	"math"
	"strconv"

	"enrich/internal/domain"
	apperrors "enrich/internal/errors"
)

// Options names the columns the loader reads.
type Options struct {
	GeneColumn       string
	RegulationColumn string
	FoldChangeColumn string
}

// DefaultOptions returns the column names of a standard DEG export.
func DefaultOptions() Options {
	return Options{
		GeneColumn:       "gene",
		RegulationColumn: "regulation",
		FoldChangeColumn: "log2FoldChange",
	}
}

// Loader implements domain.DatasetLoader.
type Loader struct {
	opts   Options
	logger *slog.Logger
}

func NewLoader(opts Options, logger *slog.Logger) *Loader {
	def := DefaultOptions()
	if opts.GeneColumn == "" {
		opts.GeneColumn = def.GeneColumn
	}
	if opts.RegulationColumn == "" {
		opts.RegulationColumn = def.RegulationColumn
	}
	if opts.FoldChangeColumn == "" {
		opts.FoldChangeColumn = def.FoldChangeColumn
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{opts: opts, logger: logger.With(slog.String("component", "dataset_loader"))}
}

// Load reads path and returns its up- and down-regulated genes.
// Every failure is a DATA_LOAD_ERROR.
func (l *Loader) Load(path string) (up, down domain.GeneSet, err error) {
	table, err := ReadTable(path)
	if err != nil {
		l.logger.Error("read DEG table failed", slog.String("path", path), slog.String("error", err.Error()))
		return domain.GeneSet{}, domain.GeneSet{}, apperrors.DataLoad(path, err)
	}
	l.logger.Info("loaded DEG table", slog.String("path", path), slog.Int("rows", len(table.Rows)))

	up, down, err = Split(table, l.opts)
	if err != nil {
		l.logger.Error("split DEG table failed", slog.String("path", path), slog.String("error", err.Error()))
		return domain.GeneSet{}, domain.GeneSet{}, apperrors.DataLoad(path, err)
	}
	l.logger.Info("split DEGs", slog.String("path", path), slog.Int("up", up.Len()), slog.Int("down", down.Len()))
	return up, down, nil
}

// Split separates the gene column by regulation. When the regulation column is
// absent, direction is derived from the fold-change column with Classify.
func Split(t *Table, opts Options) (up, down domain.GeneSet, err error) {
	geneCol := t.Column(opts.GeneColumn)
	if geneCol < 0 {
		return up, down, apperrors.New(apperrors.CodeDataLoad, "missing gene column "+strconv.Quote(opts.GeneColumn))
	}
	regCol := t.Column(opts.RegulationColumn)
	fcCol := -1
	if regCol < 0 {
		fcCol = t.Column(opts.FoldChangeColumn)
		if fcCol < 0 {
			return up, down, apperrors.New(apperrors.CodeDataLoad,
				"missing both regulation column "+strconv.Quote(opts.RegulationColumn)+
					" and fold-change column "+strconv.Quote(opts.FoldChangeColumn))
		}
	}

	var upGenes, downGenes []string
	for i := range t.Rows {
		gene := t.Cell(i, geneCol)
		if gene == "" {
			continue
		}
		var dir domain.Direction
		if regCol >= 0 {
			dir = domain.Direction(t.Cell(i, regCol))
		} else {
			fc, err := parseFoldChange(t.Cell(i, fcCol))
			if err != nil {
				return up, down, apperrors.New(apperrors.CodeDataLoad,
					"row "+strconv.Itoa(i+2)+": invalid fold change "+strconv.Quote(t.Cell(i, fcCol)))
			}
			dir = Classify(fc)
		}
		switch dir {
		case domain.Upregulated:
			upGenes = append(upGenes, gene)
		case domain.Downregulated:
			downGenes = append(downGenes, gene)
		}
	}
	return domain.NewGeneSet(upGenes...), domain.NewGeneSet(downGenes...), nil
}

// Classify maps a fold change to a direction: strictly positive is up, everything
// else (zero and NaN included) is down.
func Classify(foldChange float64) domain.Direction {
	if foldChange > 0 {
		return domain.Upregulated
	}
	return domain.Downregulated
}

func parseFoldChange(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
