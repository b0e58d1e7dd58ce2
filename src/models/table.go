package models

import (
	"github.com/shopspring/decimal"
)

// Column names of the brokerage export the pipeline reads or drops.
const (
	ColProcessDate = "Process Date"
	ColSettleDate  = "Settle Date"
	ColInstrument  = "Instrument"
	ColDescription = "Description"
	ColTransCode   = "Trans Code"
	ColAmount      = "Amount"
)

// ColumnKind tells how the values of a column are stored.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindAmount
)

func (k ColumnKind) String() string {
	switch k {
	case KindAmount:
		return "amount"
	default:
		return "text"
	}
}

// Column is a named, typed column of a Table.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// Schema is the ordered list of columns of a Table.
type Schema []Column

// Index returns the position of the named column.
func (s Schema) Index(name string) (int, bool) {
	for i, c := range s {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Has reports whether every named column is present.
func (s Schema) Has(names ...string) bool {
	return len(s.Missing(names...)) == 0
}

// Missing returns the names not present in the schema, in argument order.
func (s Schema) Missing(names ...string) []string {
	var missing []string
	for _, n := range names {
		if _, ok := s.Index(n); !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Value is one cell. Text columns use Text; amount columns use Amount,
// where an invalid NullDecimal is the missing value.
type Value struct {
	Text   string
	Amount decimal.NullDecimal
}

// TextValue builds a cell for a text column.
func TextValue(s string) Value {
	return Value{Text: s}
}

// AmountValue builds a present amount cell.
func AmountValue(d decimal.Decimal) Value {
	return Value{Amount: decimal.NullDecimal{Decimal: d, Valid: true}}
}

// MissingAmount is the cell of an amount that could not be parsed.
func MissingAmount() Value {
	return Value{}
}

// Table is a typed, ordered table. Row i of Rows is row index i, so the
// index is always contiguous from 0.
type Table struct {
	Schema Schema
	Rows   [][]Value
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Cell returns the value of the named column on row i.
func (t *Table) Cell(i int, name string) (Value, bool) {
	idx, ok := t.Schema.Index(name)
	if !ok || i < 0 || i >= len(t.Rows) {
		return Value{}, false
	}
	return t.Rows[i][idx], true
}

// Format renders a cell the way it is written to CSV: amounts in plain
// decimal notation, the missing amount as an empty string.
func (c Column) Format(v Value) string {
	if c.Kind != KindAmount {
		return v.Text
	}
	if !v.Amount.Valid {
		return ""
	}
	return v.Amount.Decimal.String()
}

// Records renders the table as string records, without the header.
func (t *Table) Records() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(t.Schema))
		for j, col := range t.Schema {
			rec[j] = col.Format(row[j])
		}
		out[i] = rec
	}
	return out
}
