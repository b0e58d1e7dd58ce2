package parsers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrEmptyAmount = errors.New("empty amount")

var amountCleaner = strings.NewReplacer("$", "", ",", "")

// ParseAmount converts a currency string such as "$1,234.56" or "($500.00)"
// to a decimal. A value wrapped in one matched pair of parentheses is
// negative; any other parenthesis makes the amount invalid.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if IsNull(s) {
		return decimal.Zero, ErrEmptyAmount
	}
	cleaned, negative := s, false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned, negative = cleaned[1:len(cleaned)-1], true
	}
	cleaned = strings.TrimSpace(amountCleaner.Replace(cleaned))
	if strings.ContainsAny(cleaned, "()") {
		return decimal.Zero, fmt.Errorf("invalid amount %q: unbalanced parentheses", s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
