// Package money keeps prices as integer cents and renders them as two-decimal numbers on the wire.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Money struct{ Cents int64 }

func FromCents(c int64) Money { return Money{Cents: c} }

// FromDecimal rounds d to the nearest cent.
func FromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Shift(2).Round(0).IntPart()}
}

func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Mul(qty int) Money  { return Money{Cents: m.Cents * int64(qty)} }

func (m Money) IsZero() bool { return m.Cents == 0 }

// Discount applies a percentage off, rounding half up to the cent.
func (m Money) Discount(pct int) Money {
	if pct <= 0 {
		return m
	}
	factor := decimal.NewFromInt(int64(100 - pct)).Div(decimal.NewFromInt(100))
	return FromDecimal(m.Decimal().Mul(factor))
}

func (m Money) Decimal() decimal.Decimal { return decimal.New(m.Cents, -2) }

func (m Money) Float64() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) String() string { return m.Decimal().StringFixed(2) }

// MarshalJSON writes a bare JSON number ("19.99"), the shape the storefront pages expect.
func (m Money) MarshalJSON() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalJSON accepts JSON numbers as well as quoted decimals.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	*m = FromDecimal(d)
	return nil
}
