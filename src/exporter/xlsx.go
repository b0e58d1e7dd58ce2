// Package exporter writes the cleaned transactions and the P/L summary of
// an upload as an Excel workbook.
package exporter

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/username/tradeclean/src/models"
	"github.com/username/tradeclean/src/security/validation"
)

const (
	TransactionsSheet = "Transactions"
	SummarySheet      = "PL Summary"
)

// WorkbookBytes builds a workbook with a Transactions sheet and, when summary
// is non-nil, a PL Summary sheet. Amounts are numeric cells; the missing
// amount is an empty cell. Text is sanitized against formula injection.
func WorkbookBytes(table *models.Table, summary []models.PLSummaryRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TransactionsSheet); err != nil {
		return nil, fmt.Errorf("failed to name transactions sheet: %w", err)
	}
	if err := writeTransactions(f, table); err != nil {
		return nil, err
	}

	if summary != nil {
		if _, err := f.NewSheet(SummarySheet); err != nil {
			return nil, fmt.Errorf("failed to add summary sheet: %w", err)
		}
		if err := writeSummary(f, summary); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTransactions(f *excelize.File, table *models.Table) error {
	header := make([]interface{}, len(table.Schema))
	for i, c := range table.Schema {
		header[i] = textCell(c.Name)
	}
	if err := setRow(f, TransactionsSheet, 1, header); err != nil {
		return err
	}

	for r, row := range table.Rows {
		cells := make([]interface{}, len(row))
		for i, col := range table.Schema {
			v := row[i]
			switch {
			case col.Kind != models.KindAmount:
				cells[i] = textCell(v.Text)
			case v.Amount.Valid:
				cells[i] = v.Amount.Decimal.InexactFloat64()
			default:
				cells[i] = nil
			}
		}
		if err := setRow(f, TransactionsSheet, r+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, summary []models.PLSummaryRow) error {
	header := make([]interface{}, len(models.SummaryHeader))
	for i, h := range models.SummaryHeader {
		header[i] = h
	}
	if err := setRow(f, SummarySheet, 1, header); err != nil {
		return err
	}
	for r, s := range summary {
		cells := []interface{}{
			textCell(s.Description),
			s.TotalSell.InexactFloat64(),
			s.TotalBuy.InexactFloat64(),
			s.PL.InexactFloat64(),
		}
		if err := setRow(f, SummarySheet, r+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func textCell(s string) string {
	return validation.SanitizeForFormulaInjection(validation.StripUnprintable(s))
}
