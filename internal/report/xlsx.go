// Package report encodes result tables and batch summaries as workbooks and
// renders them for the terminal.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"enrich/internal/domain"
)

const sheet = "Sheet1"

// ResultColumns is the header of a persisted result table.
var ResultColumns = []string{
	"Gene_set", "Term", "Overlap", "P-value", "Adjusted P-value",
	"Old P-value", "Old Adjusted P-value", "Odds Ratio", "Combined Score", "Genes",
}

const (
	colSample = "sample_name"
	colStatus = "status"
	colUp     = "up_genes_count"
	colDown   = "down_genes_count"
	colError  = "error"
)

// ResultTableXLSX encodes one enrichment result as a single-sheet workbook.
func ResultTableXLSX(t *domain.ResultTable) ([]byte, error) {
	rows := make([][]any, 0, t.Len())
	if t != nil {
		for _, r := range t.Rows {
			rows = append(rows, []any{
				r.GeneSet, r.Term, r.Overlap, r.PValue, r.AdjustedPValue,
				r.OldPValue, r.OldAdjustedPValue, r.OddsRatio, r.CombinedScore,
				strings.Join(r.Genes, ";"),
			})
		}
	}
	return Workbook(ResultColumns, rows)
}

// SummaryXLSX encodes a batch summary, one row per sample in batch order.
// Count columns follow the order in which they first appear in the outcomes.
func SummaryXLSX(s domain.BatchSummary) ([]byte, error) {
	keys := s.CountKeys()
	header := append([]string{colSample, colStatus, colUp, colDown}, keys...)
	header = append(header, colError)

	rows := make([][]any, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		row := []any{o.SampleName, string(o.Status), o.UpGenes, o.DownGenes}
		for _, k := range keys {
			if n, ok := o.Count(k); ok {
				row = append(row, n)
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, o.Error)
		rows = append(rows, row)
	}
	return Workbook(header, rows)
}

// ReadSummaryXLSX decodes a workbook written by SummaryXLSX.
func ReadSummaryXLSX(r io.Reader) (domain.BatchSummary, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return domain.BatchSummary{}, err
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return domain.BatchSummary{}, err
	}
	if len(rows) == 0 {
		return domain.BatchSummary{}, fmt.Errorf("summary workbook is empty")
	}
	header := rows[0]
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, c := range []string{colSample, colStatus, colUp, colDown} {
		if _, ok := idx[c]; !ok {
			return domain.BatchSummary{}, fmt.Errorf("summary workbook missing column %q", c)
		}
	}
	var countCols []int
	for i := idx[colDown] + 1; i < len(header); i++ {
		if header[i] == colError {
			break
		}
		countCols = append(countCols, i)
	}

	var summary domain.BatchSummary
	for _, row := range rows[1:] {
		cell := func(i int) string {
			if i < len(row) {
				return row[i]
			}
			return ""
		}
		o := domain.SampleOutcome{
			SampleName: cell(idx[colSample]),
			Status:     domain.Status(cell(idx[colStatus])),
			UpGenes:    atoi(cell(idx[colUp])),
			DownGenes:  atoi(cell(idx[colDown])),
		}
		if i, ok := idx[colError]; ok {
			o.Error = cell(i)
		}
		for _, i := range countCols {
			v := cell(i)
			if v == "" {
				continue
			}
			o.Counts = append(o.Counts, domain.SignificantCount{Key: header[i], Count: atoi(v)})
		}
		summary.Outcomes = append(summary.Outcomes, o)
	}
	return summary, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// Workbook encodes header and rows as a single-sheet xlsx file.
func Workbook(header []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
