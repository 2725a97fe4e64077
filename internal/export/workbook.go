package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

// WorkbookWriter produces a remediation workbook for a permanently failed
// batch: the full journal line set plus the ledger's last reply, ready for
// finance to post manually.
type WorkbookWriter struct {
	dir    string
	logger *zap.Logger
}

// NewWorkbookWriter creates a workbook writer targeting dir
func NewWorkbookWriter(dir string, logger *zap.Logger) *WorkbookWriter {
	return &WorkbookWriter{
		dir:    dir,
		logger: logger,
	}
}

// Write renders the workbook and returns its path
func (w *WorkbookWriter) Write(batch *models.NetsuiteBatch, lines []*models.JournalLine) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create remediation dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Journal Lines"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", fmt.Errorf("failed to drop default sheet: %w", err)
	}

	w.setCell(f, sheet, "A1", "Batch reference")
	w.setCell(f, sheet, "B1", batch.BatchReference)
	w.setCell(f, sheet, "A2", "Finalized by")
	w.setCell(f, sheet, "B2", batch.FinalizedBy)
	w.setCell(f, sheet, "A3", "Finalized at")
	w.setCell(f, sheet, "B3", batch.FinalizedAt.Format("2006-01-02 15:04:05"))
	w.setCell(f, sheet, "A4", "Last ledger reply")
	w.setCell(f, sheet, "B4", batch.RawResponse)

	headers := []string{"Line", "Report", "GL Account", "Amount", "Department", "Class", "Memo", "Tax Code"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 6)
		w.setCell(f, sheet, cell, header)
	}

	var totalCents int64
	for i, line := range lines {
		row := i + 7
		totalCents += line.AmountCents
		values := []any{
			line.LineNumber,
			line.ReportID,
			line.GLAccount,
			centsToDecimal(line.AmountCents),
			line.Department,
			line.Class,
			line.Memo,
			line.TaxCode,
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			w.setCell(f, sheet, cell, value)
		}
	}

	totalRow := len(lines) + 8
	w.setCell(f, sheet, fmt.Sprintf("C%d", totalRow), "Total")
	w.setCell(f, sheet, fmt.Sprintf("D%d", totalRow), centsToDecimal(totalCents))

	path := filepath.Join(w.dir, batch.BatchReference+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Info("Remediation workbook written",
		zap.String("batch_reference", batch.BatchReference),
		zap.String("path", path),
		zap.Int("lines", len(lines)))
	return path, nil
}

func (w *WorkbookWriter) setCell(f *excelize.File, sheet, cell string, value any) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		w.logger.Warn("Failed to set workbook cell",
			zap.String("cell", cell), zap.Error(err))
	}
}

func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
