package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Rates is the currency table used for conversions.
// Each rate is the number of units of that currency per one unit of Base.
type Rates struct {
	Base  string
	Rates map[string]decimal.Decimal
}

// ratesFile is the on-disk TOML layout:
//
//	base = "USD"
//	[rates]
//	USD = 1.0
//	IDR = "16250.00"
//
// Rates may be written as TOML numbers or as decimal strings.
type ratesFile struct {
	Base  string         `toml:"base"`
	Rates map[string]any `toml:"rates"`
}

// DefaultRates returns the built-in table used when no rates file is configured
func DefaultRates() Rates {
	return Rates{
		Base: "USD",
		Rates: map[string]decimal.Decimal{
			"USD": decimal.NewFromInt(1),
			"EUR": decimal.RequireFromString("0.92"),
			"IDR": decimal.NewFromInt(16250),
		},
	}
}

// LoadRates reads a TOML rate table. An empty path returns DefaultRates.
func LoadRates(path string) (Rates, error) {
	if path == "" {
		return DefaultRates(), nil
	}

	var raw ratesFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return Rates{}, fmt.Errorf("read rates file %s: %w", path, err)
	}
	return parseRates(raw)
}

// ParseRates decodes a TOML rate table from a string
func ParseRates(data string) (Rates, error) {
	var raw ratesFile
	if _, err := toml.Decode(data, &raw); err != nil {
		return Rates{}, fmt.Errorf("decode rates: %w", err)
	}
	return parseRates(raw)
}

func parseRates(raw ratesFile) (Rates, error) {
	if raw.Base == "" {
		return Rates{}, fmt.Errorf("rates: base currency is required")
	}
	if len(raw.Rates) < 2 {
		return Rates{}, fmt.Errorf("rates: at least two currencies are required")
	}

	rates := Rates{Base: strings.ToUpper(raw.Base), Rates: make(map[string]decimal.Decimal, len(raw.Rates))}
	for code, value := range raw.Rates {
		rate, err := toDecimal(value)
		if err != nil {
			return Rates{}, fmt.Errorf("rates: invalid rate for %s: %w", code, err)
		}
		rates.Rates[strings.ToUpper(code)] = rate
	}
	return rates, nil
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T", value)
	}
}
