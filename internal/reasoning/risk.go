package reasoning

import (
	"fmt"
	"sort"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
)

// Vendor risk weights.
const (
	weightBlocked    = 20
	weightRejection  = 30
	weightOverdue    = 15
	highVolumeCredit = 10
)

// VendorRisk is a vendor's weighted risk score.
type VendorRisk struct {
	VendorID          string   `json:"vendor_id"`
	VendorName        string   `json:"vendor_name"`
	RiskScore         int      `json:"risk_score"`
	RiskLevel         Level    `json:"risk_level"`
	Factors           []string `json:"factors"`
	TransactionCount  int      `json:"transaction_count"`
	BlockedDocuments  int      `json:"blocked_documents"`
	QualityRejections int      `json:"quality_rejections"`
	OverdueInvoices   int      `json:"overdue_invoices"`
}

// VendorRiskScores scores every vendor as 20 per blocked document, 30 per
// quality rejection and 15 per overdue invoice, minus 10 for high-volume
// vendors without any issue, floored at 0. Ordered by score descending, then
// vendor id.
func (e *Engine) VendorRiskScores(g *graph.Graph) []VendorRisk {
	facts := collectVendors(g)
	out := make([]VendorRisk, 0, len(facts))
	for _, f := range facts {
		out = append(out, e.scoreVendor(f))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].VendorID < out[j].VendorID
	})
	return out
}

func (e *Engine) scoreVendor(f *vendorFacts) VendorRisk {
	score := 0
	factors := make([]string, 0)

	if n := len(f.blocked); n > 0 {
		score += n * weightBlocked
		factors = append(factors, fmt.Sprintf("Blocked documents: +%d", n*weightBlocked))
	}
	if n := len(f.rejected); n > 0 {
		score += n * weightRejection
		factors = append(factors, fmt.Sprintf("Quality rejections: +%d", n*weightRejection))
	}
	if n := len(f.overdue); n > 0 {
		score += n * weightOverdue
		factors = append(factors, fmt.Sprintf("Overdue invoices: +%d", n*weightOverdue))
	}
	if len(f.pos) >= e.thresholds.HighVolumeTransactions && f.issues() == 0 {
		score -= highVolumeCredit
		factors = append(factors, fmt.Sprintf("High transaction volume: -%d", highVolumeCredit))
	}
	if score < 0 {
		score = 0
	}

	return VendorRisk{
		VendorID:          f.vendor.ID,
		VendorName:        f.vendor.Name,
		RiskScore:         score,
		RiskLevel:         riskLevel(score),
		Factors:           factors,
		TransactionCount:  len(f.pos),
		BlockedDocuments:  len(f.blocked),
		QualityRejections: len(f.rejected),
		OverdueInvoices:   len(f.overdue),
	}
}
