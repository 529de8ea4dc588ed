package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents lists ISO 4217 currencies whose minor unit is not 2.
var currencyExponents = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
}

// CurrencyExponent returns the number of minor unit digits of currency.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// FormatAmount renders a minor unit amount, e.g. 1050 EUR as "10.50 EUR".
func FormatAmount(minor int64, currency string) string {
	exp := CurrencyExponent(currency)
	value := decimal.New(minor, -exp).StringFixed(exp)
	if currency == "" {
		return value
	}
	return value + " " + strings.ToUpper(currency)
}

// ParseAmount converts a major unit string such as "10.5" into minor units.
func ParseAmount(value, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	minor := d.Shift(CurrencyExponent(currency))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more precision than %s allows", value, strings.ToUpper(currency))
	}
	return minor.IntPart(), nil
}

// FormattedTotal renders the order total, or the empty string when unknown.
func (o *Order) FormattedTotal() string {
	if o == nil || o.TotalOrderAmount == nil {
		return ""
	}
	return FormatAmount(*o.TotalOrderAmount, o.CurrencyCode)
}
