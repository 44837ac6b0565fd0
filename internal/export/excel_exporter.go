// Package export renders analysis reports as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pesio-ai/be-p2p-workflow/internal/reasoning"
)

// Sheet names, in workbook order.
const (
	SheetSummary       = "Summary"
	SheetFraud         = "Fraud Patterns"
	SheetVendorRisk    = "Vendor Risk"
	SheetThreeWayMatch = "Three-Way Match"
	SheetDelays        = "Approval Delays"
	SheetConsolidation = "Consolidation"
	SheetOutliers      = "Outliers"
)

// ExcelOptions configures workbook styling.
type ExcelOptions struct {
	FreezeHeader   bool
	AutoFilter     bool
	CurrencyFormat string
	HeaderFill     string
	HeaderFont     string
	MinColWidth    float64
	MaxColWidth    float64
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		FreezeHeader:   true,
		AutoFilter:     true,
		CurrencyFormat: "$#,##0.00",
		HeaderFill:     "4472C4",
		HeaderFont:     "FFFFFF",
		MinColWidth:    10,
		MaxColWidth:    50,
	}
}

// ReportExporter writes a reasoning.Report as a multi-sheet workbook.
type ReportExporter struct {
	options ExcelOptions
}

// NewReportExporter creates a new report exporter
func NewReportExporter(options ExcelOptions) *ReportExporter {
	return &ReportExporter{options: options}
}

// table is one sheet's content. Columns listed in money hold cents and are
// written as dollars with the currency format.
type table struct {
	name    string
	columns []string
	money   map[int]bool
	rows    [][]any
}

// Export writes the workbook for report to w.
func (e *ReportExporter) Export(report *reasoning.Report, w io.Writer) error {
	f, err := e.build(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveAs writes the workbook for report to path.
func (e *ReportExporter) SaveAs(report *reasoning.Report, path string) error {
	f, err := e.build(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (e *ReportExporter) build(report *reasoning.Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	tables := []table{
		summaryTable(report),
		fraudTable(report.FraudPatterns),
		vendorRiskTable(report.VendorRisks),
		matchTable(report.ThreeWayMatchIssues),
		delayTable(report.ApprovalDelays),
		consolidationTable(report.ConsolidationOpportunities),
		outlierTable(report.Outliers.Outliers),
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: e.options.HeaderFont},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	currency := e.options.CurrencyFormat
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &currency})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create currency style: %w", err)
	}

	for _, t := range tables {
		if t.name != SheetSummary {
			if _, err := f.NewSheet(t.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to create sheet %s: %w", t.name, err)
			}
		}
		if err := e.writeTable(f, t, headerStyle, moneyStyle); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func (e *ReportExporter) writeTable(f *excelize.File, t table, headerStyle, moneyStyle int) error {
	widths := make([]float64, len(t.columns))

	for i, col := range t.columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(t.name, cell, col); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		widths[i] = float64(len(col)) * 1.2
	}
	first, _ := excelize.CoordinatesToCellName(1, 1)
	last, _ := excelize.CoordinatesToCellName(len(t.columns), 1)
	if err := f.SetCellStyle(t.name, first, last, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for r, row := range t.rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if t.money[c] {
				if cents, ok := val.(int64); ok {
					val = float64(cents) / 100
					if err := f.SetCellStyle(t.name, cell, cell, moneyStyle); err != nil {
						return fmt.Errorf("failed to style cell: %w", err)
					}
				}
			}
			if err := f.SetCellValue(t.name, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			if w := float64(len(fmt.Sprintf("%v", val))) * 1.2; c < len(widths) && w > widths[c] {
				widths[c] = w
			}
		}
	}

	if e.options.FreezeHeader {
		if err := f.SetPanes(t.name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}
	if e.options.AutoFilter && len(t.rows) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(t.columns), len(t.rows)+1)
		if err := f.AutoFilter(t.name, "A1:"+lastCell, nil); err != nil {
			return fmt.Errorf("failed to set auto filter: %w", err)
		}
	}

	for i, w := range widths {
		if w < e.options.MinColWidth {
			w = e.options.MinColWidth
		}
		if e.options.MaxColWidth > 0 && w > e.options.MaxColWidth {
			w = e.options.MaxColWidth
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(t.name, col, col, w); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	return nil
}

// ── Sheet builders ───────────────────────────────────────────────────────────

func summaryTable(r *reasoning.Report) table {
	rows := [][]any{
		{"Generated At", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Revision", r.Revision},
		{"Graph Nodes", r.GraphStats.Nodes},
		{"Graph Edges", r.GraphStats.Edges},
		{"Fraud Patterns", len(r.FraudPatterns)},
		{"Vendors Scored", len(r.VendorRisks)},
		{"Three-Way Match Issues", len(r.ThreeWayMatchIssues)},
		{"Pending Approvals Scored", len(r.ApprovalDelays)},
		{"Consolidation Opportunities", len(r.ConsolidationOpportunities)},
		{"Amount Outliers", len(r.Outliers.Outliers)},
	}
	for _, level := range []reasoning.Level{reasoning.LevelCritical, reasoning.LevelHigh, reasoning.LevelMedium, reasoning.LevelLow} {
		rows = append(rows, []any{"Documents " + string(level), r.RiskDistribution.Counts[level]})
	}
	return table{name: SheetSummary, columns: []string{"Metric", "Value"}, rows: rows}
}

func fraudTable(findings []reasoning.FraudFinding) table {
	t := table{
		name:    SheetFraud,
		columns: []string{"Type", "Severity", "Vendor ID", "Vendor", "Documents", "Amount", "Total Amount", "Reason"},
		money:   map[int]bool{5: true, 6: true},
	}
	for _, f := range findings {
		t.rows = append(t.rows, []any{
			f.Type, string(f.Severity), f.VendorID, f.VendorName,
			strings.Join(f.DocumentIDs, ", "), f.Amount, f.TotalAmount, f.Reason,
		})
	}
	return t
}

func vendorRiskTable(risks []reasoning.VendorRisk) table {
	t := table{
		name: SheetVendorRisk,
		columns: []string{"Vendor ID", "Vendor", "Risk Score", "Risk Level", "Transactions",
			"Blocked", "Quality Rejections", "Overdue Invoices", "Factors"},
	}
	for _, r := range risks {
		t.rows = append(t.rows, []any{
			r.VendorID, r.VendorName, r.RiskScore, string(r.RiskLevel), r.TransactionCount,
			r.BlockedDocuments, r.QualityRejections, r.OverdueInvoices, strings.Join(r.Factors, "; "),
		})
	}
	return t
}

func matchTable(issues []reasoning.MatchIssue) table {
	t := table{
		name:    SheetThreeWayMatch,
		columns: []string{"Invoice ID", "PO ID", "GR ID", "Severity", "Issue", "Invoice Amount", "PO Amount", "Variance %"},
		money:   map[int]bool{5: true, 6: true},
	}
	for _, i := range issues {
		t.rows = append(t.rows, []any{
			i.InvoiceID, i.POID, i.GRID, string(i.Severity), i.Issue, i.InvoiceAmount, i.POAmount, i.VariancePct,
		})
	}
	return t
}

func delayTable(delays []reasoning.DelayPrediction) table {
	t := table{
		name: SheetDelays,
		columns: []string{"Document ID", "Document Type", "Vendor ID", "Amount", "Policy",
			"Delay Risk Score", "Risk Level", "Pending Approvers", "Factors"},
		money: map[int]bool{3: true},
	}
	for _, d := range delays {
		t.rows = append(t.rows, []any{
			d.DocumentID, string(d.DocumentType), d.VendorID, d.Amount, d.PolicyName,
			d.DelayRiskScore, string(d.RiskLevel), strings.Join(d.PendingApprovers, ", "), strings.Join(d.Factors, "; "),
		})
	}
	return t
}

func consolidationTable(opps []reasoning.ConsolidationOpportunity) table {
	t := table{
		name:    SheetConsolidation,
		columns: []string{"Category", "Vendor Count", "Total Spend", "Vendor ID", "Vendor", "Vendor Spend", "Transactions"},
		money:   map[int]bool{2: true, 5: true},
	}
	for _, o := range opps {
		for _, v := range o.Vendors {
			t.rows = append(t.rows, []any{
				o.Category, o.VendorCount, o.TotalSpend, v.VendorID, v.VendorName, v.Spend, v.TransactionCount,
			})
		}
	}
	return t
}

func outlierTable(outliers []reasoning.Outlier) table {
	t := table{
		name:    SheetOutliers,
		columns: []string{"Document ID", "Document Type", "Vendor ID", "Amount", "Z-Score"},
		money:   map[int]bool{3: true},
	}
	for _, o := range outliers {
		t.rows = append(t.rows, []any{o.DocumentID, string(o.DocumentType), o.VendorID, o.Amount, o.ZScore})
	}
	return t
}
