package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
	"github.com/pesio-ai/be-p2p-workflow/internal/reasoning"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

func sampleReport() *reasoning.Report {
	return &reasoning.Report{
		GeneratedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		Revision:    42,
		FraudPatterns: []reasoning.FraudFinding{{
			Type:        reasoning.PatternUnusualAmount,
			Severity:    reasoning.LevelHigh,
			VendorID:    "V1",
			VendorName:  "Acme",
			DocumentIDs: []string{"INV-1"},
			Amount:      5_000_000,
			Reason:      "Invoice amount is 3.3x the vendor average",
		}},
		VendorRisks: []reasoning.VendorRisk{{
			VendorID: "V1", VendorName: "Acme", RiskScore: 65, RiskLevel: reasoning.LevelHigh,
			Factors: []string{"Blocked documents: +20", "Quality rejections: +30"},
		}},
		ThreeWayMatchIssues: []reasoning.MatchIssue{{
			InvoiceID: "INV-1", POID: "PO-1", GRID: "GR-1", Issue: "Invoice amount differs",
			Severity: reasoning.LevelMedium, InvoiceAmount: 1_050_000, POAmount: 1_000_000, VariancePct: 5,
		}},
		ConsolidationOpportunities: []reasoning.ConsolidationOpportunity{{
			Category: graph.CategoryITEquipment, VendorCount: 3, TotalSpend: 900,
			Vendors: []reasoning.VendorSpend{
				{VendorID: "V1", VendorName: "Acme", Spend: 500, TransactionCount: 2},
				{VendorID: "V2", VendorName: "Globex", Spend: 300, TransactionCount: 1},
				{VendorID: "V3", VendorName: "Initech", Spend: 100, TransactionCount: 1},
			},
		}},
		RiskDistribution: reasoning.RiskDistribution{
			Counts: map[reasoning.Level]int{reasoning.LevelHigh: 2, reasoning.LevelLow: 5},
		},
		Outliers: reasoning.OutlierReport{Outliers: []reasoning.Outlier{{
			DocumentID: "PO-9", DocumentType: repository.DocumentPurchaseOrder, VendorID: "V2", Amount: 10_000_000, ZScore: 2.76,
		}}},
		GraphStats: graph.Stats{Nodes: 12, Edges: 20},
	}
}

func open(t *testing.T, report *reasoning.Report) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewReportExporter(DefaultExcelOptions()).Export(report, &buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestExport_SheetLayout(t *testing.T) {
	f := open(t, sampleReport())

	assert.Equal(t, []string{
		SheetSummary, SheetFraud, SheetVendorRisk, SheetThreeWayMatch,
		SheetDelays, SheetConsolidation, SheetOutliers,
	}, f.GetSheetList())
}

func TestExport_SummaryAndRows(t *testing.T) {
	f := open(t, sampleReport())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value"}, summary[0])
	assert.Equal(t, []string{"Generated At", "2025-03-03 09:00:00"}, summary[1])
	assert.Equal(t, []string{"Revision", "42"}, summary[2])

	fraud, err := f.GetRows(SheetFraud)
	require.NoError(t, err)
	require.Len(t, fraud, 2)
	assert.Equal(t, reasoning.PatternUnusualAmount, fraud[1][0])
	assert.Equal(t, "HIGH", fraud[1][1])
	assert.Equal(t, "INV-1", fraud[1][4])

	consolidation, err := f.GetRows(SheetConsolidation)
	require.NoError(t, err)
	require.Len(t, consolidation, 4)
	assert.Equal(t, graph.CategoryITEquipment, consolidation[1][0])
	assert.Equal(t, "Acme", consolidation[1][4])
	assert.Equal(t, "Initech", consolidation[3][4])

	amount, err := f.GetCellValue(SheetOutliers, "D2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "100000", amount)
}

func TestExport_EmptyReport(t *testing.T) {
	f := open(t, &reasoning.Report{})

	delays, err := f.GetRows(SheetDelays)
	require.NoError(t, err)
	require.Len(t, delays, 1)
	assert.Equal(t, "Document ID", delays[0][0])
}

func TestSaveAs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, NewReportExporter(DefaultExcelOptions()).SaveAs(sampleReport(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 7)
}
