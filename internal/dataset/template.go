package dataset

// TemplateHeader is the column layout of the example DEG sheet.
var TemplateHeader = []string{"gene", "p_val", "avg_log2FC", "pct.1", "pct.2", "p_val_adj", "regulation"}

// WriteTemplate writes an example DEG workbook showing the expected input format.
func WriteTemplate(path string) error {
	rows := [][]any{
		{"gene1", 0.001, 2.5, 0.8, 0.1, 0.01, "Upregulated"},
		{"gene2", 0.01, -1.8, 0.3, 0.7, 0.05, "Downregulated"},
		{"gene3", 0.005, 3.2, 0.9, 0.1, 0.03, "Upregulated"},
		{"gene4", 0.0001, -2.1, 0.2, 0.8, 0.001, "Downregulated"},
		{"gene5", 0.02, 1.5, 0.7, 0.2, 0.08, "Upregulated"},
	}
	return WriteWorkbook(path, TemplateHeader, rows)
}
