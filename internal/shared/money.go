package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders whole rupees with Indian digit grouping, e.g. ₹1,25,000.
// Fractions are truncated toward zero.
func FormatINR(amount decimal.Decimal) string {
	whole := amount.Truncate(0).IntPart()
	if whole < 0 {
		return "-" + FormatINR(decimal.NewFromInt(-whole))
	}
	return "₹" + inrPrinter.Sprint(number.Decimal(whole))
}

// SetCurrencyLocale switches the digit grouping used by FormatINR. It is not
// safe to call while requests are being served.
func SetCurrencyLocale(tag string) error {
	parsed, err := language.Parse(tag)
	if err != nil {
		return fmt.Errorf("%w: currency locale %q", ErrValidation, tag)
	}
	inrPrinter = message.NewPrinter(parsed)
	return nil
}
