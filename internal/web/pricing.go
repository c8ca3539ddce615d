package web

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatPrice renders an amount in minor units (kobo, pesewas, cents) for
// tag, e.g. "NGN 5,000.00" in English.
func FormatPrice(tag language.Tag, minor int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %.2f", code, float64(minor)/100)
	}
	scale, _ := currency.Standard.Rounding(unit)
	major := float64(minor) / 100
	if scale == 0 {
		major = math.Round(major)
	}
	p := message.NewPrinter(tag)
	return p.Sprintf("%s %v", unit.String(), number.Decimal(major,
		number.MinFractionDigits(scale),
		number.MaxFractionDigits(scale),
	))
}
