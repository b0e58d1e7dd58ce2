package processors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/username/tradeclean/src/models"
	"github.com/username/tradeclean/src/parsers"
)

// RequiredColumns must all be present for Aggregate to run.
var RequiredColumns = []string{models.ColDescription, models.ColAmount, models.ColTransCode}

var ErrMissingColumns = errors.New("missing required columns")

// MissingColumnsError lists the required columns a table lacks.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingColumns, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Is(target error) bool {
	return target == ErrMissingColumns
}

// plProcessorImpl implements the PLProcessor interface.
type plProcessorImpl struct{}

// NewPLProcessor creates a new instance of PLProcessor.
func NewPLProcessor() PLProcessor {
	return &plProcessorImpl{}
}

// Aggregate groups the whole table by Description and sums Amount over the
// sell (STO/STC) and buy (BTO/BTC) rows of each group. Groups are emitted in
// the order their Description first appears. Rows with a null Description
// (empty or an NA token) belong to no group. Missing amounts count as zero.
// A nil or empty table yields an empty, non-nil slice.
func (p *plProcessorImpl) Aggregate(table *models.Table) ([]models.PLSummaryRow, error) {
	summary := []models.PLSummaryRow{}
	if table == nil {
		return summary, nil
	}
	if missing := table.Schema.Missing(RequiredColumns...); len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	descIdx, _ := table.Schema.Index(models.ColDescription)
	codeIdx, _ := table.Schema.Index(models.ColTransCode)
	amountIdx, _ := table.Schema.Index(models.ColAmount)
	amountCol := table.Schema[amountIdx]

	groupIndex := make(map[string]int)
	for _, row := range table.Rows {
		desc := row[descIdx].Text
		if parsers.IsNull(desc) {
			continue
		}
		gi, ok := groupIndex[desc]
		if !ok {
			gi = len(summary)
			groupIndex[desc] = gi
			summary = append(summary, models.PLSummaryRow{
				Description: desc,
				TotalSell:   decimal.Zero,
				TotalBuy:    decimal.Zero,
			})
		}

		side := models.ClassifyTransCode(row[codeIdx].Text)
		if side == models.SideOther {
			continue
		}
		amount, ok := amountOf(amountCol, row[amountIdx])
		if !ok {
			continue
		}
		if side == models.SideSell {
			summary[gi].TotalSell = summary[gi].TotalSell.Add(amount)
		} else {
			summary[gi].TotalBuy = summary[gi].TotalBuy.Add(amount)
		}
	}

	for i := range summary {
		summary[i].PL = summary[i].TotalSell.Sub(summary[i].TotalBuy)
	}
	return summary, nil
}

// amountOf reads an Amount cell. Tables that were not normalized still carry
// text there, which is coerced with the same currency rule.
func amountOf(col models.Column, v models.Value) (decimal.Decimal, bool) {
	if col.Kind == models.KindAmount {
		return v.Amount.Decimal, v.Amount.Valid
	}
	d, err := parsers.ParseAmount(v.Text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
