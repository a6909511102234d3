package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"enrich/internal/config"
	"enrich/internal/dataset"
	"enrich/internal/ledger"
	"enrich/internal/report"
	"enrich/internal/service"
	"enrich/internal/tui"
)

type globalFlags struct {
	configPath string
	verbose    bool
	logFile    string
}

// runFlags are the per-run overrides shared by analyze and batch.
type runFlags struct {
	output        string
	organism      string
	geneCol       string
	regulationCol string
	foldChangeCol string
	threshold     float64
	topN          int
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	var closeLog func()
	root := &cobra.Command{
		Use:           "enrich",
		Short:         "GO and pathway enrichment of differentially expressed genes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := setupLogging(g.verbose, g.logFile)
			if err != nil {
				return err
			}
			closeLog = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				closeLog()
			}
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to YAML config file (optional; uses ./enrich.yaml or ~/.config/enrich/config.yaml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Also write logs to this file (e.g. enrichment_analysis.log)")

	root.AddCommand(
		newAnalyzeCmd(g),
		newBatchCmd(g),
		newTemplateCmd(),
		newViewCmd(),
		newHistoryCmd(g),
	)
	return root
}

func setupLogging(verbose bool, logFile string) (func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closeFn, nil
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output root (fs driver) for results, plots and summary")
	cmd.Flags().StringVar(&f.organism, "organism", "", "Organism used to pick gene-set libraries")
	cmd.Flags().StringVar(&f.geneCol, "gene-col", "", "Column with gene symbols")
	cmd.Flags().StringVar(&f.regulationCol, "regulation-col", "", "Column with Upregulated/Downregulated labels")
	cmd.Flags().StringVar(&f.foldChangeCol, "fc-col", "", "Fold-change column used when the regulation column is absent")
	cmd.Flags().Float64Var(&f.threshold, "p-threshold", 0, "Adjusted p-value threshold for significance")
	cmd.Flags().IntVar(&f.topN, "top-n", 0, "Terms per direction shown in each chart")
}

// loadConfig resolves the config file, then env, then flags, and validates the result.
func loadConfig(g *globalFlags, f *runFlags) (*config.AppConfig, error) {
	var cfg *config.AppConfig
	var err error
	if g.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(g.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()
	if f != nil {
		if f.output != "" {
			cfg.Artifacts.Root = f.output
		}
		if f.organism != "" {
			cfg.Organism = f.organism
		}
		if f.geneCol != "" {
			cfg.Columns.Gene = f.geneCol
		}
		if f.regulationCol != "" {
			cfg.Columns.Regulation = f.regulationCol
		}
		if f.foldChangeCol != "" {
			cfg.Columns.FoldChange = f.foldChangeCol
		}
		if f.threshold != 0 {
			cfg.Threshold = f.threshold
		}
		if f.topN != 0 {
			cfg.TopN = f.topN
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	var name string
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Run enrichment analysis on a single DEG table",
		Long: `Run GO and pathway enrichment for one DEG table (xlsx, csv or tsv).

Example: enrich analyze DEGs_condition1_vs_control.xlsx -o quick_results --organism human`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, f)
			if err != nil {
				return err
			}
			p, err := build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()
			if name == "" {
				name = service.SampleName(filepath.Dir(args[0]), args[0])
			}
			outcome := p.analyzer.Analyze(cmd.Context(), service.SampleRequest{Path: args[0], Name: name})
			report.RenderSample(cmd.OutOrStdout(), outcome)
			return nil
		},
	}
	addRunFlags(cmd, f)
	cmd.Flags().StringVar(&name, "name", "", "Sample name used in output names (default: file name)")
	return cmd
}

func newBatchCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	var pattern string
	var samples int
	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Analyze every matching DEG table under a directory",
		Long: `Walk DIR recursively, analyze each file whose name matches --pattern and
write a batch summary. A failing file is reported and never stops the batch.

Example: enrich batch data/ -o batch_results --pattern "*.xlsx"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, f)
			if err != nil {
				return err
			}
			if pattern != "" {
				cfg.Pattern = pattern
			}
			if samples > 0 {
				cfg.Concurrency.Samples = samples
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			p, err := build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			summary, err := p.coordinator.Run(cmd.Context(), service.BatchRequest{Root: args[0], Pattern: cfg.Pattern})
			if errors.Is(err, service.ErrNoInputs) {
				fmt.Fprintf(cmd.OutOrStdout(), "No files matching %q found in %s\n", cfg.Pattern, args[0])
				return nil
			}
			if len(summary.Outcomes) > 0 {
				report.RenderBatch(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}
	addRunFlags(cmd, f)
	cmd.Flags().StringVar(&pattern, "pattern", "", "Glob matched against file names (default *.xlsx)")
	cmd.Flags().IntVar(&samples, "samples", 0, "Samples analyzed in parallel")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template [PATH]",
		Short: "Write an example DEG workbook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "template_DEGs.xlsx"
			if len(args) == 1 {
				path = args[0]
			}
			if err := dataset.WriteTemplate(path); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template created: %s\n", path)
			return nil
		},
	}
}

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view SUMMARY.xlsx",
		Short: "Browse a batch summary in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			summary, err := report.ReadSummaryXLSX(f)
			if err != nil {
				return fmt.Errorf("read summary: %w", err)
			}
			_, err = tea.NewProgram(tui.New(args[0], summary), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List recorded batch runs, or the outcomes of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, nil)
			if err != nil {
				return err
			}
			if cfg.Ledger.Path == "" {
				return fmt.Errorf("ledger.path is not configured")
			}
			l, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer l.Close()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				outcomes, err := l.Outcomes(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, o := range outcomes {
					report.RenderSample(out, o)
				}
				return nil
			}
			runs, err := l.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %-10s ok=%d failed=%d  %s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Organism, r.Succeeded, r.Failed, r.Root)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Runs to list")
	return cmd
}
