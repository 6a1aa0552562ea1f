package money

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders amounts for display with locale digit grouping.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// NewFormatter builds a Formatter for the given BCP 47 locale. Unknown tags
// fall back to English.
func NewFormatter(locale, symbol string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{printer: message.NewPrinter(tag), symbol: symbol}
}

// Format renders d as e.g. "₹1,750.00"; negative values get a leading minus.
func (f *Formatter) Format(d decimal.Decimal) string {
	if f == nil {
		return Round(d).StringFixed(Scale)
	}
	d = Round(d)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	// The printer only groups the integer part; the fraction is kept exact.
	fixed := d.StringFixed(Scale)
	whole, frac, _ := strings.Cut(fixed, ".")
	intPart, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + f.symbol + fixed
	}
	return sign + f.symbol + f.printer.Sprint(number.Decimal(intPart)) + "." + frac
}
