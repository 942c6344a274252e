package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with currency and precision handling
type Money struct {
	amount   decimal.Decimal
	currency string
}

// Common currency codes (ISO 4217)
const (
	VND = "VND"
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	JPY = "JPY"
)

// NewMoney creates a new Money value object
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if err := validateCurrency(currency); err != nil {
		return Money{}, err
	}

	return Money{
		amount:   amount,
		currency: strings.ToUpper(currency),
	}, nil
}

// NewMoneyFromString creates Money from string amount and currency
func NewMoneyFromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount: %w", err)
	}

	return NewMoney(dec, currency)
}

// NewMoneyFromInt creates Money from an integer amount in whole currency units
func NewMoneyFromInt(amount int64, currency string) (Money, error) {
	return NewMoney(decimal.NewFromInt(amount), currency)
}

// MustNewMoney creates Money and panics on error (for constants/tests)
func MustNewMoney(amount decimal.Decimal, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// MustNewMoneyFromInt creates Money from an integer and panics on error (for constants/tests)
func MustNewMoneyFromInt(amount int64, currency string) Money {
	m, err := NewMoneyFromInt(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero Money value in the given currency
func Zero(currency string) Money {
	return MustNewMoney(decimal.Zero, currency)
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() string {
	return m.currency
}

// String returns the amount with currency code (e.g., "1300000 VND")
func (m Money) String() string {
	return m.amount.String() + " " + m.currency
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive checks if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Equal checks if two Money values are equal (same amount and currency)
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount) && m.currency == other.currency
}

// Compare returns -1, 0, or 1 based on comparison with other Money.
// Panics if currencies don't match.
func (m Money) Compare(other Money) int {
	if m.currency != other.currency {
		panic(fmt.Sprintf("cannot compare different currencies: %s vs %s", m.currency, other.currency))
	}
	return m.amount.Cmp(other.amount)
}

// LessThan reports whether m < other
func (m Money) LessThan(other Money) bool {
	return m.Compare(other) < 0
}

// GreaterThan reports whether m > other
func (m Money) GreaterThan(other Money) bool {
	return m.Compare(other) > 0
}

// Add adds two Money values (must have same currency)
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add different currencies: %s and %s", m.currency, other.currency)
	}

	return Money{
		amount:   m.amount.Add(other.amount),
		currency: m.currency,
	}, nil
}

// Sub subtracts other Money from this Money (must have same currency)
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract different currencies: %s and %s", m.currency, other.currency)
	}

	return Money{
		amount:   m.amount.Sub(other.amount),
		currency: m.currency,
	}, nil
}

// MustAdd adds two Money values and panics on currency mismatch.
// Intended for callers that have already verified both sides share a currency.
func (m Money) MustAdd(other Money) Money {
	sum, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return sum
}

// MustSub subtracts other from m and panics on currency mismatch.
func (m Money) MustSub(other Money) Money {
	diff, err := m.Sub(other)
	if err != nil {
		panic(err)
	}
	return diff
}

// Min returns the smaller of m and other
func (m Money) Min(other Money) Money {
	if m.Compare(other) <= 0 {
		return m
	}
	return other
}

// IsMultipleOf reports whether the amount is an exact non-negative multiple
// of step. A zero amount counts as a multiple.
func (m Money) IsMultipleOf(step Money) bool {
	if m.currency != step.currency || !step.amount.IsPositive() {
		return false
	}
	if m.amount.IsNegative() {
		return false
	}
	return m.amount.Mod(step.amount).IsZero()
}

// FloorToStep returns the largest value <= m that sits on the step grid
// anchored at base. Panics on currency mismatch.
func (m Money) FloorToStep(base, step Money) Money {
	delta := m.MustSub(base)
	steps := delta.amount.Div(step.amount).Floor()
	return Money{
		amount:   base.amount.Add(steps.Mul(step.amount)),
		currency: m.currency,
	}
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	data := struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{
		Amount:   m.amount.String(),
		Currency: m.currency,
	}
	return json.Marshal(data)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var temp struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(temp.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	money, err := NewMoney(amount, temp.Currency)
	if err != nil {
		return err
	}

	*m = money
	return nil
}

// Scan implements sql.Scanner. Amounts are stored as plain numerics; the
// currency column is scanned separately by the repositories.
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Money{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return m.scanFromString(string(v))
	case string:
		return m.scanFromString(v)
	case int64:
		m.amount = decimal.NewFromInt(v)
		return nil
	case float64:
		m.amount = decimal.NewFromFloat(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

// Value implements driver.Valuer
func (m Money) Value() (driver.Value, error) {
	return m.amount.String(), nil
}

func (m *Money) scanFromString(s string) error {
	if strings.HasPrefix(s, "{") {
		return m.UnmarshalJSON([]byte(s))
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money format: %w", err)
	}

	m.amount = amount
	return nil
}

// WithCurrency returns a copy of m carrying the given currency. Used when
// rehydrating from storage where amount and currency live in separate columns.
func (m Money) WithCurrency(currency string) Money {
	m.currency = strings.ToUpper(currency)
	return m
}

func validateCurrency(currency string) error {
	if currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}

	currency = strings.ToUpper(currency)

	if len(currency) != 3 {
		return fmt.Errorf("currency code must be 3 characters")
	}

	validCurrencies := map[string]bool{
		VND: true, USD: true, EUR: true, GBP: true, JPY: true,
		"AUD": true, "CAD": true, "CHF": true, "CNY": true, "SGD": true,
	}

	if !validCurrencies[currency] {
		return fmt.Errorf("unsupported currency: %s", currency)
	}

	return nil
}
