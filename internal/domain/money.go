package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits every balance and amount carries.
const AmountScale = 4

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Money pairs a fixed-point amount with its ISO 4217 currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney creates a Money value normalised to AmountScale.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{
		Amount:   amount.Round(AmountScale),
		Currency: currency,
	}
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", FormatAmount(m.Amount), m.Currency)
}

// ParseAmount parses a decimal string, rejecting anything that would not
// survive storage at AmountScale without rounding.
func ParseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, &ValidationError{Field: field, Reason: "amount is required"}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "amount is not a decimal number"}
	}
	if err := CheckScale(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckScale rejects values with more than AmountScale fractional digits.
func CheckScale(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(AmountScale)) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("at most %d fractional digits are allowed", AmountScale)}
	}
	return nil
}

// FormatAmount renders d with exactly AmountScale fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// NormalizeCurrency upper-cases and validates an ISO 4217 code. An empty
// code falls back to DefaultCurrency.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if !currencyPattern.MatchString(code) {
		return "", &ValidationError{Field: "currency", Reason: "currency must be a 3-letter ISO code"}
	}
	return code, nil
}
