package service

import "enrich/internal/domain"

// FilterSignificant keeps the rows whose adjusted p-value is strictly below
// threshold, in input order. The input is never modified; a nil or
// empty input yields an empty table.
func FilterSignificant(table *domain.ResultTable, threshold float64) *domain.ResultTable {
	if table == nil {
		return &domain.ResultTable{}
	}
	out := &domain.ResultTable{Label: table.Label}
	for _, r := range table.Rows {
		if r.AdjustedPValue < threshold {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}
