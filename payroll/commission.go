package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// COMMISSION POLICY
// =============================================================================

var (
	// DefaultCommissionRate is paid per ton delivered.
	DefaultCommissionRate = decimal.NewFromInt(15)

	// DefaultSeniorBaseAmount is the fixed stipend for senior drivers, per period.
	DefaultSeniorBaseAmount = decimal.NewFromInt(500)
)

// CommissionConfig is the flat-rate compensation policy.
type CommissionConfig struct {
	Rate             decimal.Decimal
	SeniorBaseAmount decimal.Decimal
}

func DefaultCommissionConfig() CommissionConfig {
	return CommissionConfig{
		Rate:             DefaultCommissionRate,
		SeniorBaseAmount: DefaultSeniorBaseAmount,
	}
}

func (c CommissionConfig) Validate() error {
	if c.Rate.IsNegative() {
		return fmt.Errorf("commission rate %s: %w", c.Rate, generic.ErrInvalidAmount)
	}
	if c.SeniorBaseAmount.IsNegative() {
		return fmt.Errorf("senior base amount %s: %w", c.SeniorBaseAmount, generic.ErrInvalidAmount)
	}
	return nil
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Computation is the pay computed for one driver and one period.
type Computation struct {
	DeliveryCount    int
	TotalTonnage     generic.Amount
	CommissionRate   decimal.Decimal
	CommissionAmount generic.Amount
	BaseAmount       generic.Amount
	BaseType         BaseType
}

// Details converts the computation into the audit payload of a record.
func (c Computation) Details() Details {
	return Details{
		DeliveryCount:  c.DeliveryCount,
		TotalTonnage:   c.TotalTonnage.Value,
		CommissionRate: c.CommissionRate,
		BaseType:       c.BaseType,
	}
}

// MoneyPlaces is the scale every stored amount is rounded to.
const MoneyPlaces = 2

// Calculator turns eligible deliveries into pay. Deterministic, no I/O.
type Calculator struct {
	Config CommissionConfig
}

func NewCalculator(cfg CommissionConfig) *Calculator {
	return &Calculator{Config: cfg}
}

// Calculate expects events already filtered by EligibleEvents.
func (c *Calculator) Calculate(events []DeliveryEvent, driver Driver) Computation {
	tonnage := generic.ZeroAmount(generic.UnitTons)
	for _, e := range events {
		tonnage = tonnage.Add(e.Tonnage())
	}

	comp := Computation{
		DeliveryCount:    len(events),
		TotalTonnage:     tonnage,
		CommissionRate:   c.Config.Rate,
		CommissionAmount: generic.Money(tonnage.Value.Mul(c.Config.Rate).Round(MoneyPlaces)),
		BaseAmount:       generic.ZeroAmount(generic.UnitCurrency),
		BaseType:         BaseCommissionOnly,
	}
	if driver.Tier == TierSenior {
		comp.BaseAmount = generic.Money(c.Config.SeniorBaseAmount.Round(MoneyPlaces))
		comp.BaseType = BaseSeniorStipend
	}
	return comp
}
