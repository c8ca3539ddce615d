package web

import (
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestFormatPriceEnglish(t *testing.T) {
	got := FormatPrice(language.English, 500000, "ngn")
	if got != "NGN 5,000.00" {
		t.Fatalf("unexpected price %q", got)
	}
}

func TestFormatPriceFrenchUsesCommaDecimal(t *testing.T) {
	got := FormatPrice(language.French, 123456, "GHS")
	if !strings.HasPrefix(got, "GHS ") || !strings.HasSuffix(got, ",56") {
		t.Fatalf("unexpected price %q", got)
	}
}

func TestFormatPriceUnknownCurrency(t *testing.T) {
	got := FormatPrice(language.English, 250, "XYZ1")
	if got != "XYZ1 2.50" {
		t.Fatalf("unexpected price %q", got)
	}
}
