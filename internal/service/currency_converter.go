package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/shopspring/decimal"
)

// RateTableConverter converts amounts using a fixed table of rates quoted
// against a base currency (units of the currency per one base unit).
// It holds no mutable state and is safe for concurrent use.
type RateTableConverter struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewRateTableConverter creates a converter from a base currency and its rate table
func NewRateTableConverter(base string, rates map[string]decimal.Decimal) (*RateTableConverter, error) {
	base = NormalizeCurrency(base)
	table := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", code)
		}
		table[NormalizeCurrency(code)] = rate
	}
	if rate, ok := table[base]; !ok {
		table[base] = decimal.NewFromInt(1)
	} else if !rate.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("base currency %s must have rate 1, got %s", base, rate)
	}
	if len(table) < 2 {
		return nil, fmt.Errorf("rate table needs at least two currencies")
	}
	return &RateTableConverter{base: base, rates: table}, nil
}

// NormalizeCurrency upper-cases and trims a currency code
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Supports reports whether the code is in the rate table
func (c *RateTableConverter) Supports(code string) bool {
	_, ok := c.rates[NormalizeCurrency(code)]
	return ok
}

// Currencies returns the supported codes in sorted order
func (c *RateTableConverter) Currencies() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Convert converts amount from one currency to another, rounded to cents.
// Same-currency conversions return the amount untouched.
func (c *RateTableConverter) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if NormalizeCurrency(from) == NormalizeCurrency(to) {
		return amount, nil
	}
	converted, err := c.ConvertExact(amount, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return converted.Round(moneyPlaces), nil
}

// ConvertExact converts without rounding. Callers summing many amounts
// round once, after the sum.
func (c *RateTableConverter) ConvertExact(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	if from == to {
		return amount, nil
	}
	fromRate, okFrom := c.rates[from]
	toRate, okTo := c.rates[to]
	if !okFrom || !okTo {
		return decimal.Zero, domain.UnsupportedCurrencyPairError{From: from, To: to}
	}
	return amount.Mul(toRate).Div(fromRate), nil
}
