// Package payroll implements bi-monthly driver commission settlement.
// It uses the generic primitives with delivery-specific eligibility,
// a flat-rate commission policy and idempotent salary records.
package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DriverID string
type RecordID string

// =============================================================================
// DRIVERS (read-only, owned by HR)
// =============================================================================

type Role string

const RoleDriver Role = "driver"

// SalaryTier selects the fixed base amount paid on top of commission.
type SalaryTier string

const (
	TierStandard SalaryTier = "standard"
	TierSenior   SalaryTier = "senior"
)

// ParseSalaryTier maps free-form tier labels onto the two known tiers.
// Anything that is not "senior" is treated as standard.
func ParseSalaryTier(s string) SalaryTier {
	if strings.EqualFold(strings.TrimSpace(s), string(TierSenior)) {
		return TierSenior
	}
	return TierStandard
}

type Driver struct {
	ID     DriverID
	Name   string
	Role   Role
	Tier   SalaryTier
	Active bool
}

// OnPayroll reports whether the driver takes part in settlement runs.
func (d Driver) OnPayroll() bool { return d.Active && d.Role == RoleDriver }

// =============================================================================
// DELIVERY EVENTS (read-only, owned by delivery management)
// =============================================================================

// DeliveryStatus is the lifecycle state of a delivery order.
type DeliveryStatus uint8

const (
	DeliveryPending DeliveryStatus = iota + 1
	DeliveryAssigned
	DeliveryInProgress
	DeliveryDelivered
	DeliveryInvoiced
)

var deliveryStatusNames = map[DeliveryStatus]string{
	DeliveryPending:    "pending",
	DeliveryAssigned:   "assigned",
	DeliveryInProgress: "in-progress",
	DeliveryDelivered:  "delivered",
	DeliveryInvoiced:   "invoiced",
}

func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	for st, name := range deliveryStatusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown delivery status %q", s)
}

func (s DeliveryStatus) String() string {
	if name, ok := deliveryStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DeliveryStatus(%d)", uint8(s))
}

// Completed reports whether the delivery has actually been carried out.
func (s DeliveryStatus) Completed() bool {
	return s == DeliveryDelivered || s == DeliveryInvoiced
}

func (s DeliveryStatus) MarshalText() ([]byte, error) {
	if _, ok := deliveryStatusNames[s]; !ok {
		return nil, fmt.Errorf("invalid delivery status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *DeliveryStatus) UnmarshalText(b []byte) error {
	st, err := ParseDeliveryStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// DeliveryEvent is a delivery as seen by payroll.
type DeliveryEvent struct {
	ID              string
	DriverID        DriverID // empty when unassigned
	Status          DeliveryStatus
	ExpectedTonnage decimal.NullDecimal
	DeliveryDate    *time.Time
	CreatedAt       time.Time
}

// EffectiveDate is the delivery date, or the creation time when none was recorded.
func (e DeliveryEvent) EffectiveDate() time.Time {
	if e.DeliveryDate != nil && !e.DeliveryDate.IsZero() {
		return *e.DeliveryDate
	}
	return e.CreatedAt
}

// Tonnage returns the expected tonnage, treating absent or negative values as zero.
func (e DeliveryEvent) Tonnage() generic.Amount {
	if !e.ExpectedTonnage.Valid {
		return generic.ZeroAmount(generic.UnitTons)
	}
	return generic.Tons(e.ExpectedTonnage.Decimal).NonNegative()
}

// =============================================================================
// SALARY RECORDS
// =============================================================================

// RecordStatus is the settlement state of a salary record.
type RecordStatus uint8

const (
	StatusDraft RecordStatus = iota + 1
	StatusProcessed
)

func ParseRecordStatus(s string) (RecordStatus, error) {
	switch s {
	case "draft":
		return StatusDraft, nil
	case "processed":
		return StatusProcessed, nil
	}
	return 0, fmt.Errorf("unknown record status %q", s)
}

func (s RecordStatus) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusProcessed:
		return "processed"
	}
	return fmt.Sprintf("RecordStatus(%d)", uint8(s))
}

func (s RecordStatus) MarshalText() ([]byte, error) {
	if s != StatusDraft && s != StatusProcessed {
		return nil, fmt.Errorf("invalid record status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *RecordStatus) UnmarshalText(b []byte) error {
	st, err := ParseRecordStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// BaseType records which base-pay rule produced BaseAmount.
type BaseType string

const (
	BaseCommissionOnly BaseType = "commission_only"
	BaseSeniorStipend  BaseType = "senior_stipend"
)

// Details is the audit payload stored with every salary record.
type Details struct {
	DeliveryCount  int             `json:"delivery_count"`
	TotalTonnage   decimal.Decimal `json:"total_tonnage"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	BaseType       BaseType        `json:"base_type"`
}

// SalaryRecord is one driver's pay for one period.
// At most one exists per (DriverID, PeriodStart).
type SalaryRecord struct {
	ID               RecordID
	DriverID         DriverID
	PeriodStart      time.Time
	PeriodEnd        time.Time
	BaseAmount       generic.Amount
	CommissionAmount generic.Amount
	Deductions       generic.Amount
	TotalAmount      generic.Amount
	Status           RecordStatus
	Details          Details

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
	ProcessedBy string
}

// Recompute derives TotalAmount from its components.
func (r *SalaryRecord) Recompute() {
	r.TotalAmount = TotalFor(r.BaseAmount, r.CommissionAmount, r.Deductions)
}

func (r SalaryRecord) IsProcessed() bool { return r.Status == StatusProcessed }

func (r SalaryRecord) Key() RecordKey {
	return RecordKey{DriverID: r.DriverID, PeriodStart: generic.ToMillis(r.PeriodStart)}
}

// TotalFor is base + commission - deductions.
func TotalFor(base, commission, deductions generic.Amount) generic.Amount {
	return generic.Money(base.Value.Add(commission.Value).Sub(deductions.Value))
}

// RecordKey is the uniqueness key of a salary record.
type RecordKey struct {
	DriverID    DriverID
	PeriodStart int64 // milliseconds since epoch
}

func (k RecordKey) String() string {
	return fmt.Sprintf("salary:%s:%d", k.DriverID, k.PeriodStart)
}
