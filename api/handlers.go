/*
handlers.go - HTTP API handlers for payroll settlement

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the payroll package. Authorization is
  enforced by the payroll operations themselves; handlers never read or write
  before the operation has checked the caller.

ENDPOINTS:
  Periods:
    POST   /api/payroll/periods/{year}/{month}/{half}/run      Recompute drafts
    POST   /api/payroll/periods/{year}/{month}/{half}/process  Finalize period
    GET    /api/payroll/periods/{year}/{month}/{half}/records  List records
    GET    /api/payroll/periods/{year}/{month}/{half}/export   XLSX workbook

  Records:
    GET    /api/payroll/records/{id}             Single record
    POST   /api/payroll/records/{id}/process     Finalize one record
    PUT    /api/payroll/records/{id}/deductions  Set manual deductions

  Reporting:
    GET    /api/payroll/summary/{year}           Year summary
    GET    /api/payroll/summary/{year}/export    Year summary workbook
    GET    /api/payroll/runs                     Recent batch runs
    GET    /api/drivers                          Active drivers

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid period selector, invalid amount, validation errors
  - 401: No authenticated caller
  - 403: Caller lacks the permission
  - 404: Record not found
  - 409: Record already processed, lost concurrent write
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/export"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/payroll"
)

const defaultRunsLimit = 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Orchestrator *payroll.Orchestrator
	Settlement   *payroll.Settlement
	Aggregator   *payroll.Aggregator
	Directory    payroll.DriverDirectory
	Authorizer   payroll.Authorizer

	Runs     payroll.RunLog // nil hides run history
	Seeder   payroll.Seeder // nil disables demo scenarios
	Location *time.Location
	Logger   *zap.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires handlers around an orchestrator and an aggregator sharing
// the same store.
func NewHandler(o *payroll.Orchestrator, agg *payroll.Aggregator) *Handler {
	return &Handler{
		Orchestrator: o,
		Settlement:   o.Settlement,
		Aggregator:   agg,
		Directory:    o.Directory,
		Authorizer:   payroll.ContextAuthorizer{},
		Runs:         o.RunLog,
		Location:     o.Location,
		Logger:       zap.NewNop(),
		validate:     newValidator(),
	}
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// RunPeriod recomputes the drafts of every active driver for the period.
// Per-driver failures are reported in the body, not as an error status.
func (h *Handler) RunPeriod(w http.ResponseWriter, r *http.Request) {
	p, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	result, err := h.Orchestrator.RunPeriod(r.Context(), p.Year, time.Month(p.Month), generic.Half(p.Half))
	if err != nil {
		h.fail(w, r, "Failed to run payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(result))
}

// FinalizePeriod flips every draft of the period to processed.
func (h *Handler) FinalizePeriod(w http.ResponseWriter, r *http.Request) {
	p, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	n, err := h.Orchestrator.FinalizePeriod(r.Context(), p.Year, time.Month(p.Month), generic.Half(p.Half))
	if err != nil {
		h.fail(w, r, "Failed to process period", err)
		return
	}
	period, _ := h.resolve(p)
	writeJSON(w, http.StatusOK, FinalizeResultDTO{Period: period.Key(), Processed: n})
}

// ListPeriodRecords returns the records of one period with totals.
func (h *Handler) ListPeriodRecords(w http.ResponseWriter, r *http.Request) {
	period, records, ok := h.periodRecords(w, r)
	if !ok {
		return
	}

	total := decimal.Zero
	drafts := 0
	for _, rec := range records {
		total = total.Add(rec.TotalAmount.Value)
		if !rec.IsProcessed() {
			drafts++
		}
	}
	writeJSON(w, http.StatusOK, PeriodRecordsDTO{
		Period:      period.Key(),
		PeriodStart: period.StartMillis(),
		PeriodEnd:   period.EndMillis(),
		Records:     toRecordDTOs(records, h.location()),
		TotalAmount: generic.Money(total).String(),
		Drafts:      drafts,
	})
}

// ExportPeriod streams the period's records as an XLSX workbook.
func (h *Handler) ExportPeriod(w http.ResponseWriter, r *http.Request) {
	period, records, ok := h.periodRecords(w, r)
	if !ok {
		return
	}
	names, err := h.driverNames(r)
	if err != nil {
		h.fail(w, r, "Failed to list drivers", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WritePeriod(&buf, period, records, names, h.location()); err != nil {
		h.fail(w, r, "Failed to build workbook", err)
		return
	}
	writeFile(w, export.PeriodFilename(period), buf.Bytes())
}

func (h *Handler) periodRecords(w http.ResponseWriter, r *http.Request) (generic.Period, []payroll.SalaryRecord, bool) {
	p, ok := h.periodParams(w, r)
	if !ok {
		return generic.Period{}, nil, false
	}
	period, err := h.resolve(p)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return generic.Period{}, nil, false
	}
	records, err := h.Settlement.Records(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Failed to list records", err)
		return generic.Period{}, nil, false
	}
	return period, records, true
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Settlement.Record(r.Context(), payroll.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get record", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec, h.location()))
}

// ProcessRecord finalizes one record. Finalizing a processed record is a
// no-op reported with changed=false.
func (h *Handler) ProcessRecord(w http.ResponseWriter, r *http.Request) {
	id := payroll.RecordID(chi.URLParam(r, "id"))
	rec, changed, err := h.Settlement.Finalize(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to process record", err)
		return
	}
	writeJSON(w, http.StatusOK, MarkProcessedDTO{Record: toRecordDTO(rec, h.location()), Changed: changed})
}

func (h *Handler) AdjustDeductions(w http.ResponseWriter, r *http.Request) {
	var req AdjustDeductionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !h.valid(w, req) {
		return
	}

	rec, err := h.Settlement.AdjustDeductions(r.Context(), payroll.RecordID(chi.URLParam(r, "id")), *req.Amount)
	if err != nil {
		h.fail(w, r, "Failed to adjust deductions", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec, h.location()))
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.yearSummary(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toYearSummaryDTO(summary))
}

func (h *Handler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.yearSummary(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteSummary(&buf, summary); err != nil {
		h.fail(w, r, "Failed to build workbook", err)
		return
	}
	writeFile(w, export.SummaryFilename(summary.Year), buf.Bytes())
}

func (h *Handler) yearSummary(w http.ResponseWriter, r *http.Request) (payroll.YearSummary, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return payroll.YearSummary{}, false
	}
	if !h.valid(w, YearParams{Year: year}) {
		return payroll.YearSummary{}, false
	}
	summary, err := h.Aggregator.YearSummary(r.Context(), year)
	if err != nil {
		h.fail(w, r, "Failed to build summary", err)
		return payroll.YearSummary{}, false
	}
	return summary, true
}

// ListRuns returns the most recent batch runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Authorizer.Authorize(r.Context(), payroll.PermView); err != nil {
		h.fail(w, r, "Failed to list runs", err)
		return
	}
	params := ListRunsParams{Limit: defaultRunsLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		params.Limit = n
	}
	if !h.valid(w, params) {
		return
	}
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, []BatchRunDTO{})
		return
	}

	runs, err := h.Runs.ListRuns(r.Context(), params.Limit)
	if err != nil {
		h.fail(w, r, "Failed to list runs", err)
		return
	}
	dtos := make([]BatchRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toBatchRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListDrivers returns the active drivers known to the directory.
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Authorizer.Authorize(r.Context(), payroll.PermView); err != nil {
		h.fail(w, r, "Failed to list drivers", err)
		return
	}
	drivers, err := h.Directory.ActiveDrivers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list drivers", err)
		return
	}
	dtos := make([]DriverDTO, 0, len(drivers))
	for _, d := range drivers {
		if !d.OnPayroll() {
			continue
		}
		dtos = append(dtos, DriverDTO{ID: string(d.ID), Name: d.Name, Tier: string(d.Tier), Active: d.Active})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) driverNames(r *http.Request) (map[payroll.DriverID]string, error) {
	drivers, err := h.Directory.ActiveDrivers(r.Context())
	if err != nil {
		return nil, err
	}
	names := make(map[payroll.DriverID]string, len(drivers))
	for _, d := range drivers {
		names[d.ID] = d.Name
	}
	return names, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) periodParams(w http.ResponseWriter, r *http.Request) (PeriodParams, bool) {
	var p PeriodParams
	var err error
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"year", &p.Year},
		{"month", &p.Month},
		{"half", &p.Half},
	} {
		if *f.dst, err = strconv.Atoi(chi.URLParam(r, f.name)); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+f.name, err)
			return PeriodParams{}, false
		}
	}
	return p, h.valid(w, p)
}

func (h *Handler) resolve(p PeriodParams) (generic.Period, error) {
	return generic.ResolvePeriod(p.Year, time.Month(p.Month), generic.Half(p.Half), h.location())
}

func (h *Handler) location() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.Local
}

// valid writes a 400 listing the failed fields when v does not validate.
func (h *Handler) valid(w http.ResponseWriter, v any) bool {
	if h.validate == nil {
		h.validate = newValidator()
	}
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	writeError(w, http.StatusBadRequest, "Validation failed", describeValidation(err))
	return false
}

// fail maps err to a status and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.Logger).Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	var authErr *generic.AuthorizationError
	switch {
	case errors.As(err, &authErr):
		if authErr.Unauthenticated() {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrRecordProcessed), generic.IsRetryable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeFile(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
