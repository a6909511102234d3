package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"enrich/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	rule       = strings.Repeat("=", 50)
)

// RenderSample prints the result of a single-sample run.
func RenderSample(w io.Writer, o domain.SampleOutcome) {
	if o.Status != domain.StatusSuccess {
		fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("✗ Analysis failed for %s: %s", o.SampleName, o.Error)))
		return
	}
	fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✓ Analysis completed for %s", o.SampleName)))
	fmt.Fprintf(w, "  Upregulated genes: %d\n", o.UpGenes)
	fmt.Fprintf(w, "  Downregulated genes: %d\n", o.DownGenes)
	for _, c := range o.Counts {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %s: %d", c.Key, c.Count)))
	}
}

// RenderBatch prints the batch report: one status line per sample, totals,
// then the gene counts of every successful sample.
func RenderBatch(w io.Writer, s domain.BatchSummary) {
	fmt.Fprintln(w, titleStyle.Render("BATCH ANALYSIS SUMMARY"))
	fmt.Fprintln(w, rule)
	for _, o := range s.Outcomes {
		if o.Status == domain.StatusSuccess {
			fmt.Fprintln(w, okStyle.Render("✓ "+o.SampleName))
		} else {
			fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("✗ %s: %s", o.SampleName, o.Error)))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Successful: %d/%d\n", s.Succeeded(), len(s.Outcomes))
	fmt.Fprintf(w, "Failed: %d/%d\n", s.Failed(), len(s.Outcomes))
	if s.Succeeded() == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Gene counts per sample:"))
	for _, o := range s.Outcomes {
		if o.Status != domain.StatusSuccess {
			continue
		}
		fmt.Fprintf(w, "  %s: %d up, %d down\n", o.SampleName, o.UpGenes, o.DownGenes)
	}
}
