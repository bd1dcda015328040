/*
Package generic provides the domain-agnostic building blocks of the settlement engine.

PURPOSE:
  Payroll settlement needs a handful of primitives that have nothing to do with
  drivers or deliveries: exact quantities, half-month periods, clocks, error
  taxonomy and keyed locking. They live here so the payroll package reads as
  business rules only.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A decimal quantity with a unit (currency units, tons)
  - Unit:   What an Amount measures

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64 arithmetic
  2. Explicit units: tonnage and money cannot be confused in signatures
  3. Value semantics: every operation returns a new Amount

USAGE:
  tonnage := generic.NewAmount(12.5, generic.UnitTons)
  pay := generic.Money(tonnage.Value.Mul(rate))

SEE ALSO:
  - period.go: Half-month pay periods
  - errors.go: Sentinel and structured errors
  - lock.go:   Keyed advisory locking
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitCurrency Unit = "currency"
	UnitTons     Unit = "tons"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: unit}
}

// Money wraps a decimal as a currency amount.
func Money(value decimal.Decimal) Amount { return Amount{Value: value, Unit: UnitCurrency} }

// Tons wraps a decimal as a tonnage amount.
func Tons(value decimal.Decimal) Amount { return Amount{Value: value, Unit: UnitTons} }

func ZeroAmount(unit Unit) Amount { return Amount{Value: decimal.Zero, Unit: unit} }

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Unit == b.Unit && a.Value.Equal(b.Value) }

// NonNegative clamps negative quantities to zero.
func (a Amount) NonNegative() Amount {
	if a.Value.IsNegative() {
		return a.Zero()
	}
	return a
}

// String renders the value with two decimals for currency, as-is otherwise.
func (a Amount) String() string {
	if a.Unit == UnitCurrency {
		return a.Value.StringFixed(2)
	}
	return a.Value.String()
}
