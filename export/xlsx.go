// Package export renders salary records and year summaries as XLSX
// workbooks for accounting.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

const (
	SheetRecords = "Records"
	SheetSummary = "Summary"
	SheetMonthly = "Monthly"
	SheetTrend   = "Trend"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout = "2006-01-02 15:04:05.000"
)

var recordHeader = []any{
	"Driver ID", "Driver", "Period Start", "Period End", "Deliveries", "Tonnage", "Rate",
	"Base Type", "Base", "Commission", "Deductions", "Total", "Status", "Processed At",
}

// PeriodFilename is the download name of a period workbook, e.g. payroll-2024-03-H1.xlsx.
func PeriodFilename(p generic.Period) string {
	return fmt.Sprintf("payroll-%s.xlsx", p.Key())
}

func SummaryFilename(year int) string {
	return fmt.Sprintf("payroll-summary-%d.xlsx", year)
}

// =============================================================================
// PERIOD WORKBOOK
// =============================================================================

// PeriodWorkbook builds one row per record and a totals row. names maps
// driver ids to display names; a driver missing from it (deactivated since
// settlement) is shown by id.
func PeriodWorkbook(p generic.Period, records []payroll.SalaryRecord, names map[payroll.DriverID]string, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.Local
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetRecords); err != nil {
		f.Close()
		return nil, err
	}

	w := &sheetWriter{f: f, sheet: SheetRecords}
	w.row(recordHeader...)

	totals := struct{ base, commission, deductions, total decimal.Decimal }{
		decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero,
	}
	for _, r := range records {
		processedAt := ""
		if r.ProcessedAt != nil {
			processedAt = r.ProcessedAt.In(loc).Format(dateLayout)
		}
		w.row(
			string(r.DriverID),
			displayName(names, r.DriverID),
			r.PeriodStart.In(loc).Format(dateLayout),
			r.PeriodEnd.In(loc).Format(dateLayout),
			r.Details.DeliveryCount,
			number(r.Details.TotalTonnage),
			number(r.Details.CommissionRate),
			string(r.Details.BaseType),
			money(r.BaseAmount.Value),
			money(r.CommissionAmount.Value),
			money(r.Deductions.Value),
			money(r.TotalAmount.Value),
			r.Status.String(),
			processedAt,
		)
		totals.base = totals.base.Add(r.BaseAmount.Value)
		totals.commission = totals.commission.Add(r.CommissionAmount.Value)
		totals.deductions = totals.deductions.Add(r.Deductions.Value)
		totals.total = totals.total.Add(r.TotalAmount.Value)
	}
	w.row("TOTAL", p.Key(), "", "", "", "", "", "",
		money(totals.base), money(totals.commission), money(totals.deductions), money(totals.total))

	w.boldRow(1, len(recordHeader))
	w.boldRow(w.next-1, len(recordHeader))
	if w.err == nil {
		w.err = f.SetColWidth(SheetRecords, "A", "N", 16)
	}
	if w.err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to build period workbook: %w", w.err)
	}
	return f, nil
}

func displayName(names map[payroll.DriverID]string, id payroll.DriverID) string {
	if name := names[id]; name != "" {
		return name
	}
	return string(id)
}

// WritePeriod streams a period workbook to out.
func WritePeriod(out io.Writer, p generic.Period, records []payroll.SalaryRecord, names map[payroll.DriverID]string, loc *time.Location) error {
	f, err := PeriodWorkbook(p, records, names, loc)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(out)
}

// =============================================================================
// YEAR SUMMARY WORKBOOK
// =============================================================================

func SummaryWorkbook(s payroll.YearSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetMonthly, SheetTrend} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	summary := &sheetWriter{f: f, sheet: SheetSummary}
	summary.row("Year", s.Year)
	summary.row("Paid this year", money(s.Stats.PaidThisYear))
	summary.row("Pending records", s.Stats.Pending)
	summary.row("This month", money(s.Stats.ThisMonth))
	summary.row("Average monthly", money(s.Stats.AvgMonthly))

	monthly := &sheetWriter{f: f, sheet: SheetMonthly}
	monthly.row("Month", "Employees", "Records", "Total", "Status")
	for _, m := range s.MonthlyRecords {
		monthly.row(fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)), m.Employees, m.Records, money(m.TotalAmount), string(m.Status))
	}
	monthly.boldRow(1, 5)

	trend := &sheetWriter{f: f, sheet: SheetTrend}
	trend.row("Month", "Label", "Amount")
	for _, p := range s.Trend {
		trend.row(fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)), p.Label, money(p.Amount))
	}
	trend.boldRow(1, 3)

	for _, w := range []*sheetWriter{summary, monthly, trend} {
		if w.err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to build summary workbook: %w", w.err)
		}
	}
	return f, nil
}

func WriteSummary(out io.Writer, s payroll.YearSummary) error {
	f, err := SummaryWorkbook(s)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(out)
}

// =============================================================================
// HELPERS
// =============================================================================

// sheetWriter appends rows and keeps the first error.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	next  int
	err   error
	bold  int
}

func (w *sheetWriter) row(values ...any) {
	if w.err != nil {
		return
	}
	if w.next == 0 {
		w.next = 1
	}
	cell, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(w.sheet, cell, &values)
	w.next++
}

func (w *sheetWriter) boldRow(row, cols int) {
	if w.err != nil {
		return
	}
	if w.bold == 0 {
		style, err := w.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			w.err = err
			return
		}
		w.bold = style
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(cols, row)
	w.err = w.f.SetCellStyle(w.sheet, first, last, w.bold)
}

// money rounds to cents; spreadsheets store numbers as float64.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
