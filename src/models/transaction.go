package models

import (
	"github.com/shopspring/decimal"
)

// Side is the direction a Trans Code contributes to realized P/L.
type Side int

const (
	SideOther Side = iota
	SideSell
	SideBuy
)

func (s Side) String() string {
	switch s {
	case SideSell:
		return "SELL"
	case SideBuy:
		return "BUY"
	default:
		return "OTHER"
	}
}

// Known option trans codes.
const (
	TransCodeSellToOpen  = "STO"
	TransCodeSellToClose = "STC"
	TransCodeBuyToOpen   = "BTO"
	TransCodeBuyToClose  = "BTC"
)

// ClassifyTransCode maps a Trans Code to its side. Only the exact codes
// match; anything else (CDIV, ACH, "sto", ...) is SideOther.
func ClassifyTransCode(code string) Side {
	switch code {
	case TransCodeSellToOpen, TransCodeSellToClose:
		return SideSell
	case TransCodeBuyToOpen, TransCodeBuyToClose:
		return SideBuy
	default:
		return SideOther
	}
}

// PLSummaryRow is the realized P/L of one Description.
type PLSummaryRow struct {
	Description string          `json:"description"`
	TotalSell   decimal.Decimal `json:"total_sell"`
	TotalBuy    decimal.Decimal `json:"total_buy"`
	PL          decimal.Decimal `json:"pl"`
}

// SummaryHeader is the CSV header of a P/L summary.
var SummaryHeader = []string{ColDescription, "Total Sell", "Total Buy", "P/L"}

// Record renders the row in SummaryHeader order.
func (r PLSummaryRow) Record() []string {
	return []string{r.Description, r.TotalSell.String(), r.TotalBuy.String(), r.PL.String()}
}
