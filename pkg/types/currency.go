package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// currencyExponents maps ISO-4217 codes to the number of minor-unit digits.
var currencyExponents = map[string]int{
	"SAR": 2,
	"USD": 2,
	"AED": 2,
	"EUR": 2,
	"QAR": 2,
	"EGP": 2,
	"KWD": 3,
	"BHD": 3,
	"OMR": 3,
	"JOD": 3,
	"JPY": 0,
}

// NormalizeCurrency upper-cases code and checks it is supported.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := currencyExponents[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	return c, nil
}

func CurrencyExponent(code string) (int, error) {
	c, err := NormalizeCurrency(code)
	if err != nil {
		return 0, err
	}
	return currencyExponents[c], nil
}

// MinorToMajor converts 10000 SAR minor units to 100.00.
func MinorToMajor(amount int64, currency string) (float64, error) {
	exp, err := CurrencyExponent(currency)
	if err != nil {
		return 0, err
	}
	return float64(amount) / math.Pow10(exp), nil
}

// MajorToMinor is the inverse of MinorToMajor, rounding to the nearest unit.
func MajorToMinor(amount float64, currency string) (int64, error) {
	exp, err := CurrencyExponent(currency)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(amount * math.Pow10(exp))), nil
}
