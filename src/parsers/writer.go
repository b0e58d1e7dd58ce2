package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/username/tradeclean/src/models"
)

// WriteTable writes a header row with the schema's column names followed by
// every row. Missing amounts are written as empty cells.
func WriteTable(w io.Writer, t *models.Table) error {
	cw := csv.NewWriter(w)
	if err := writeRecord(cw, w, t.Schema.Names()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, rec := range t.Records() {
		if err := writeRecord(cw, w, rec); err != nil {
			return fmt.Errorf("failed to write CSV record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeRecord writes rec through cw. csv.Writer renders a record holding a
// single empty field as a blank line, which csv.Reader skips, so that record
// is written as a quoted empty field instead.
func writeRecord(cw *csv.Writer, w io.Writer, rec []string) error {
	if len(rec) != 1 || rec[0] != "" {
		return cw.Write(rec)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}

// WriteSummary writes P/L summary rows under models.SummaryHeader.
func WriteSummary(w io.Writer, rows []models.PLSummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.SummaryHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("failed to write summary row %q: %w", r.Description, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeTable is WriteTable into a byte slice.
func EncodeTable(t *models.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeSummary is WriteSummary into a byte slice.
func EncodeSummary(rows []models.PLSummaryRow) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
