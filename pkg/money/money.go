// Package money formats exact amounts for display. Formatting never feeds
// back into pricing.
package money

import (
	"github.com/leekchan/accounting"
	"github.com/shopspring/decimal"
)

// Currency describes how amounts are displayed.
type Currency struct {
	Symbol    string `default:"Rp" usage:"Currency symbol"`
	Precision int    `default:"0" usage:"Fraction digits shown"`
	Thousand  string `default:"." usage:"Thousands separator"`
	Decimal   string `default:"," usage:"Decimal separator"`
}

// Formatter renders decimals in a currency.
type Formatter struct {
	ac accounting.Accounting
}

// NewFormatter creates a Formatter for c.
func NewFormatter(c Currency) *Formatter {
	return &Formatter{ac: accounting.Accounting{
		Symbol:         c.Symbol,
		Precision:      c.Precision,
		Thousand:       c.Thousand,
		Decimal:        c.Decimal,
		Format:         "%s%v",
		FormatNegative: "-%s%v",
		FormatZero:     "%s%v",
	}}
}

// Format rounds v half away from zero to the configured precision and
// renders it.
func (f *Formatter) Format(v decimal.Decimal) string {
	return f.ac.FormatMoneyDecimal(v.Round(int32(f.ac.Precision)))
}
