package textnorm

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/unicode/norm"
)

// Price is a parsed free-text price. Amount is nil when no usable number
// could be read, and Currency is empty when no currency was recognized.
type Price struct {
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

// HasAmount reports whether a numeric amount was parsed.
func (p Price) HasAmount() bool {
	return p.Amount != nil
}

// Complete reports whether both the amount and the currency are known.
func (p Price) Complete() bool {
	return p.Amount != nil && p.Currency != ""
}

// Symbols are checked in order; the first one present in the text wins.
var currencySymbols = []struct {
	symbol string
	unit   currency.Unit
}{
	{"€", currency.EUR},
	{"$", currency.USD},
	{"£", currency.GBP},
}

var currencyCodes = []currency.Unit{currency.EUR, currency.USD, currency.GBP}

var (
	nonNumeric   = regexp.MustCompile(`[^0-9.,]`)
	leadingFloat = regexp.MustCompile(`^[0-9]*\.?[0-9]*`)
)

// ParsePrice reads an amount and an ISO currency code out of text such as
// "€1,234.50" or "USD 1200". Continental grouping with a comma decimal is
// not recognised: "1.234,00 EUR" reads as 1.234.
func ParsePrice(text string) Price {
	var p Price
	if strings.TrimSpace(text) == "" {
		return p
	}
	text = norm.NFKC.String(text)

	p.Currency = detectCurrency(text)

	cleaned := nonNumeric.ReplaceAllString(text, "")
	if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	if amount, ok := parseLeadingFloat(cleaned); ok {
		p.Amount = &amount
	}
	return p
}

func detectCurrency(text string) string {
	for _, s := range currencySymbols {
		if strings.Contains(text, s.symbol) {
			return s.unit.String()
		}
	}

	upper := strings.ToUpper(text)
	for _, unit := range currencyCodes {
		if strings.Contains(upper, unit.String()) {
			return unit.String()
		}
	}
	return ""
}

// parseLeadingFloat parses the longest numeric prefix, so "1.234.56" reads
// as 1.234 rather than failing outright.
func parseLeadingFloat(s string) (float64, bool) {
	prefix := leadingFloat.FindString(s)
	if prefix == "" || prefix == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
