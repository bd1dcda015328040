/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types carry
  decimal.Decimal and time.Time; the wire format carries money as fixed
  two-decimal strings and period bounds as epoch milliseconds.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request / *Params: Inputs from clients, validated with validator tags

SEE ALSO:
  - handlers.go: Uses these types
  - payroll/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// INPUTS
// =============================================================================

// PeriodParams are the {year}/{month}/{half} path segments.
type PeriodParams struct {
	Year  int `json:"year" validate:"min=1,max=9999"`
	Month int `json:"month" validate:"min=1,max=12"`
	Half  int `json:"half" validate:"oneof=1 2"`
}

type YearParams struct {
	Year int `json:"year" validate:"min=1,max=9999"`
}

// AdjustDeductionsRequest replaces the manual deductions of a draft.
type AdjustDeductionsRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type ListRunsParams struct {
	Limit int `json:"limit" validate:"min=1,max=200"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// SALARY RECORDS
// =============================================================================

type DetailsDTO struct {
	DeliveryCount  int    `json:"delivery_count"`
	TotalTonnage   string `json:"total_tonnage"`
	CommissionRate string `json:"commission_rate"`
	BaseType       string `json:"base_type"`
}

type RecordDTO struct {
	ID               string     `json:"id"`
	DriverID         string     `json:"driver_id"`
	Period           string     `json:"period"`
	PeriodStart      int64      `json:"period_start"`
	PeriodEnd        int64      `json:"period_end"`
	BaseAmount       string     `json:"base_amount"`
	CommissionAmount string     `json:"commission_amount"`
	Deductions       string     `json:"deductions"`
	TotalAmount      string     `json:"total_amount"`
	Status           string     `json:"status"`
	Details          DetailsDTO `json:"details"`
	CreatedAt        string     `json:"created_at"`
	UpdatedAt        string     `json:"updated_at"`
	ProcessedAt      *string    `json:"processed_at,omitempty"`
	ProcessedBy      string     `json:"processed_by,omitempty"`
}

func toRecordDTO(r payroll.SalaryRecord, loc *time.Location) RecordDTO {
	dto := RecordDTO{
		ID:               string(r.ID),
		DriverID:         string(r.DriverID),
		Period:           generic.PeriodContaining(r.PeriodStart.In(loc)).Key(),
		PeriodStart:      generic.ToMillis(r.PeriodStart),
		PeriodEnd:        generic.ToMillis(r.PeriodEnd),
		BaseAmount:       r.BaseAmount.String(),
		CommissionAmount: r.CommissionAmount.String(),
		Deductions:       r.Deductions.String(),
		TotalAmount:      r.TotalAmount.String(),
		Status:           r.Status.String(),
		Details: DetailsDTO{
			DeliveryCount:  r.Details.DeliveryCount,
			TotalTonnage:   r.Details.TotalTonnage.String(),
			CommissionRate: r.Details.CommissionRate.String(),
			BaseType:       string(r.Details.BaseType),
		},
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
		ProcessedBy: r.ProcessedBy,
	}
	if r.ProcessedAt != nil {
		at := r.ProcessedAt.Format(time.RFC3339)
		dto.ProcessedAt = &at
	}
	return dto
}

func toRecordDTOs(records []payroll.SalaryRecord, loc *time.Location) []RecordDTO {
	dtos := make([]RecordDTO, len(records))
	for i, r := range records {
		dtos[i] = toRecordDTO(r, loc)
	}
	return dtos
}

// PeriodRecordsDTO is the list of records of one period plus its totals.
type PeriodRecordsDTO struct {
	Period      string      `json:"period"`
	PeriodStart int64       `json:"period_start"`
	PeriodEnd   int64       `json:"period_end"`
	Records     []RecordDTO `json:"records"`
	TotalAmount string      `json:"total_amount"`
	Drafts      int         `json:"drafts"`
}

// =============================================================================
// RUNS
// =============================================================================

type DriverFailureDTO struct {
	DriverID string `json:"driver_id"`
	Error    string `json:"error"`
}

type RunResultDTO struct {
	RunID     string             `json:"run_id"`
	Period    string             `json:"period"`
	Status    string             `json:"status"`
	Drivers   int                `json:"drivers"`
	Processed int                `json:"processed"`
	Created   int                `json:"created"`
	Updated   int                `json:"updated"`
	Skipped   int                `json:"skipped"`
	Failures  []DriverFailureDTO `json:"failures"`
	StartedAt string             `json:"started_at"`
	ElapsedMs int64              `json:"elapsed_ms"`
}

func toRunResultDTO(r payroll.RunResult) RunResultDTO {
	status := payroll.RunCompleted
	if len(r.Failures) > 0 {
		status = payroll.RunCompletedWithErrors
	}
	failures := make([]DriverFailureDTO, len(r.Failures))
	for i, f := range r.Failures {
		failures[i] = DriverFailureDTO{DriverID: string(f.DriverID), Error: f.Err.Error()}
	}
	return RunResultDTO{
		RunID:     r.RunID,
		Period:    r.Period.Key(),
		Status:    string(status),
		Drivers:   r.Drivers,
		Processed: r.Processed,
		Created:   r.Created,
		Updated:   r.Updated,
		Skipped:   r.Skipped,
		Failures:  failures,
		StartedAt: r.StartedAt.Format(time.RFC3339),
		ElapsedMs: r.Elapsed.Milliseconds(),
	}
}

type FinalizeResultDTO struct {
	Period    string `json:"period"`
	Processed int    `json:"processed"`
}

type MarkProcessedDTO struct {
	Record  RecordDTO `json:"record"`
	Changed bool      `json:"changed"`
}

// BatchRunDTO is one entry of the run audit log.
type BatchRunDTO struct {
	ID          string `json:"id"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
	Status      string `json:"status"`
	Drivers     int    `json:"drivers"`
	Processed   int    `json:"processed"`
	Failed      int    `json:"failed"`
	Error       string `json:"error,omitempty"`
	TriggeredBy string `json:"triggered_by"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}

func toBatchRunDTO(r payroll.BatchRun) BatchRunDTO {
	return BatchRunDTO{
		ID:          r.ID,
		PeriodStart: generic.ToMillis(r.PeriodStart),
		PeriodEnd:   generic.ToMillis(r.PeriodEnd),
		Status:      string(r.Status),
		Drivers:     r.Drivers,
		Processed:   r.Processed,
		Failed:      r.Failed,
		Error:       r.Error,
		TriggeredBy: r.TriggeredBy,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		CompletedAt: r.CompletedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SUMMARY
// =============================================================================

type YearStatsDTO struct {
	PaidThisYear string `json:"paid_this_year"`
	Pending      int    `json:"pending"`
	ThisMonth    string `json:"this_month"`
	AvgMonthly   string `json:"avg_monthly"`
}

type TrendPointDTO struct {
	Month  string `json:"month"` // YYYY-MM
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

type MonthlyAggregateDTO struct {
	Year        int      `json:"year"`
	Month       int      `json:"month"`       // 1..12
	MonthIndex  int      `json:"month_index"` // 0..11
	TotalAmount string   `json:"total_amount"`
	DriverIDs   []string `json:"driver_ids"`
	Employees   int      `json:"employees"`
	Records     int      `json:"records"`
	Status      string   `json:"status"`
}

type YearSummaryDTO struct {
	Year           int                   `json:"year"`
	Stats          YearStatsDTO          `json:"stats"`
	Trend          []TrendPointDTO       `json:"trend"`
	MonthlyRecords []MonthlyAggregateDTO `json:"monthly_records"`
}

func toYearSummaryDTO(s payroll.YearSummary) YearSummaryDTO {
	dto := YearSummaryDTO{
		Year: s.Year,
		Stats: YearStatsDTO{
			PaidThisYear: s.Stats.PaidThisYear.StringFixed(2),
			Pending:      s.Stats.Pending,
			ThisMonth:    s.Stats.ThisMonth.StringFixed(2),
			AvgMonthly:   s.Stats.AvgMonthly.StringFixed(2),
		},
		Trend:          make([]TrendPointDTO, len(s.Trend)),
		MonthlyRecords: make([]MonthlyAggregateDTO, len(s.MonthlyRecords)),
	}
	for i, p := range s.Trend {
		dto.Trend[i] = TrendPointDTO{
			Month:  monthKey(p.Year, p.Month),
			Label:  p.Label,
			Amount: p.Amount.StringFixed(2),
		}
	}
	for i, m := range s.MonthlyRecords {
		ids := make([]string, len(m.DriverIDs))
		for j, id := range m.DriverIDs {
			ids[j] = string(id)
		}
		dto.MonthlyRecords[i] = MonthlyAggregateDTO{
			Year:        m.Year,
			Month:       int(m.Month),
			MonthIndex:  m.MonthIndex,
			TotalAmount: m.TotalAmount.StringFixed(2),
			DriverIDs:   ids,
			Employees:   m.Employees,
			Records:     m.Records,
			Status:      string(m.Status),
		}
	}
	return dto
}

func monthKey(year int, month time.Month) string {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// =============================================================================
// DRIVERS & SCENARIOS
// =============================================================================

type DriverDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tier   string `json:"tier"`
	Active bool   `json:"active"`
}

// ScenarioDTO describes a demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Drivers     int    `json:"drivers"`
	Deliveries  int    `json:"deliveries"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
