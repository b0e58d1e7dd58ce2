package parsers

import (
	"bytes"
	"errors"
	"strings"

	"github.com/username/tradeclean/src/models"
)

// DroppedColumns are removed from every normalized table when present.
var DroppedColumns = []string{models.ColProcessDate, models.ColSettleDate}

// Tokens read as a missing value, besides the empty string.
var nullTokens = map[string]struct{}{
	"NA": {}, "N/A": {}, "NaN": {}, "nan": {}, "null": {}, "NULL": {},
	"None": {}, "#N/A": {}, "<NA>": {},
}

// IsNull reports whether a raw cell holds no value.
func IsNull(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	_, ok := nullTokens[s]
	return ok
}

// AmountWarning records an Amount cell that could not be parsed and was
// replaced with the missing value. Row is the index in the normalized table.
type AmountWarning struct {
	Row int    `json:"row"`
	Raw string `json:"raw"`
}

// NormalizeResult is the successful outcome of Normalize.
type NormalizeResult struct {
	Table    *models.Table
	Warnings []AmountWarning
}

// Normalizer turns a raw export into the canonical transaction table.
type Normalizer interface {
	Normalize(raw []byte) (*NormalizeResult, error)
}

type normalizerImpl struct {
	parser Parser
}

func NewNormalizer() Normalizer {
	return &normalizerImpl{parser: NewCSVParser()}
}

// Normalize runs the default Normalizer over raw CSV bytes.
func Normalize(raw []byte) (*NormalizeResult, error) {
	return NewNormalizer().Normalize(raw)
}

// Normalize drops the Process/Settle Date columns, drops rows without an
// Instrument and coerces Amount to numbers. Absent columns turn the
// matching step into a no-op. Any failure is a *NormalizationError and no
// partial table is returned.
func (n *normalizerImpl) Normalize(raw []byte) (*NormalizeResult, error) {
	table, err := n.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &NormalizationError{Err: err}
	}

	table = dropColumns(table, DroppedColumns)
	table = dropNullInstruments(table)
	warnings := coerceAmounts(table)

	return &NormalizeResult{Table: table, Warnings: warnings}, nil
}

func dropColumns(t *models.Table, names []string) *models.Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	var keep []int
	out := &models.Table{}
	for i, c := range t.Schema {
		if !drop[c.Name] {
			keep = append(keep, i)
			out.Schema = append(out.Schema, c)
		}
	}
	if len(keep) == len(t.Schema) {
		return t
	}

	out.Rows = make([][]models.Value, len(t.Rows))
	for r, row := range t.Rows {
		projected := make([]models.Value, len(keep))
		for j, i := range keep {
			projected[j] = row[i]
		}
		out.Rows[r] = projected
	}
	return out
}

func dropNullInstruments(t *models.Table) *models.Table {
	idx, ok := t.Schema.Index(models.ColInstrument)
	if !ok {
		return t
	}
	kept := t.Rows[:0:0]
	for _, row := range t.Rows {
		if !IsNull(row[idx].Text) {
			kept = append(kept, row)
		}
	}
	return &models.Table{Schema: t.Schema, Rows: kept}
}

// coerceAmounts converts the Amount column in place. Null cells become the
// missing value silently; unparsable text also becomes missing and is
// reported back as a warning.
func coerceAmounts(t *models.Table) []AmountWarning {
	idx, ok := t.Schema.Index(models.ColAmount)
	if !ok || t.Schema[idx].Kind == models.KindAmount {
		return nil
	}

	var warnings []AmountWarning
	for r, row := range t.Rows {
		raw := row[idx].Text
		d, err := ParseAmount(raw)
		switch {
		case err == nil:
			row[idx] = models.AmountValue(d)
		case errors.Is(err, ErrEmptyAmount):
			row[idx] = models.MissingAmount()
		default:
			row[idx] = models.MissingAmount()
			warnings = append(warnings, AmountWarning{Row: r, Raw: raw})
		}
	}
	t.Schema[idx].Kind = models.KindAmount
	return warnings
}
