// Package money holds the currency list and the conversion table used to roll
// amounts recorded in different currencies up into the reporting currency.
package money

import (
	"strings"

	"go-ops-dashboard/internal/apperr"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	MAD Currency = "MAD"
	AED Currency = "AED"
	SAR Currency = "SAR"
	XOF Currency = "XOF"
	NGN Currency = "NGN"
	EGP Currency = "EGP"
)

var supported = map[Currency]bool{
	USD: true, EUR: true, GBP: true, MAD: true, AED: true,
	SAR: true, XOF: true, NGN: true, EGP: true,
}

// Parse normalises a currency code and checks it is supported.
func Parse(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !supported[c] {
		return "", apperr.Wrap(apperr.ErrInvalidInput, "unsupported currency %q", code)
	}
	return c, nil
}

// IsSupported reports whether code is a known currency.
func IsSupported(code string) bool {
	_, err := Parse(code)
	return err == nil
}

// Supported lists every known currency.
func Supported() []Currency {
	return []Currency{USD, EUR, GBP, MAD, AED, SAR, XOF, NGN, EGP}
}

// Round rounds to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Rates converts amounts into a single base currency. A rate is the value of
// one unit of the currency expressed in the base currency.
type Rates struct {
	base  Currency
	rates map[Currency]decimal.Decimal
}

// NewRates creates a table for base. The base rate is always one.
func NewRates(base Currency) *Rates {
	return &Rates{
		base:  base,
		rates: map[Currency]decimal.Decimal{base: decimal.NewFromInt(1)},
	}
}

// Base returns the reporting currency.
func (r *Rates) Base() Currency {
	return r.base
}

// Set records the rate for c. Setting the base currency is ignored.
func (r *Rates) Set(c Currency, rate decimal.Decimal) error {
	if c == r.base {
		return nil
	}
	if !rate.IsPositive() {
		return apperr.Wrap(apperr.ErrInvalidInput, "rate for %s must be positive", c)
	}
	r.rates[c] = rate
	return nil
}

// Rate returns the stored rate for c.
func (r *Rates) Rate(c Currency) (decimal.Decimal, bool) {
	rate, ok := r.rates[c]
	return rate, ok
}

// Convert expresses amount (in from) in the base currency.
func (r *Rates) Convert(amount decimal.Decimal, from Currency) (decimal.Decimal, error) {
	if from == "" {
		from = r.base
	}
	rate, ok := r.rates[from]
	if !ok {
		return decimal.Zero, apperr.Wrap(apperr.ErrInvalidInput, "no exchange rate for %s", from)
	}
	return amount.Mul(rate), nil
}
