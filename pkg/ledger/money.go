package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

var oneCent = decimal.New(1, -2)

// RoundUpToCents rounds d up to the next currency sub-unit, so the lender
// never under-collects because of rounding.
func RoundUpToCents(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(2)
}

// FormatAmount renders d with two decimals and comma thousands separators,
// e.g. FormatAmount(-1234.5, "₹") == "-₹1,234.50".
func FormatAmount(d decimal.Decimal, symbol string) string {
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(symbol)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
