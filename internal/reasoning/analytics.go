package reasoning

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// Amount bands for document risk, in cents.
const (
	highValueAmount   = 5_000_000 // $50,000
	mediumValueAmount = 1_000_000 // $10,000
)

// DocumentRisk is a purchase order or invoice in the HIGH or CRITICAL band.
type DocumentRisk struct {
	DocumentID   string                  `json:"document_id"`
	DocumentType repository.DocumentType `json:"document_type"`
	Amount       int64                   `json:"amount"`
	Level        Level                   `json:"level"`
	Score        int                     `json:"score"`
	Factors      []string                `json:"factors"`
}

// RiskDistribution buckets purchase orders and invoices by a small additive
// score of value, status and overdue state.
type RiskDistribution struct {
	Counts        map[Level]int   `json:"counts"`
	Amounts       map[Level]int64 `json:"amounts"`
	HighRiskDocs  []DocumentRisk  `json:"high_risk_docs"`
	DocumentCount int             `json:"document_count"`
}

// DocumentRiskDistribution scores each document: +3 above $50,000 (+1 above
// $10,000), +5 when blocked, +2 when pending approval, +4 for unpaid invoices
// past due. CRITICAL ≥ 7, HIGH ≥ 4, MEDIUM ≥ 2.
func (e *Engine) DocumentRiskDistribution(g *graph.Graph) RiskDistribution {
	dist := RiskDistribution{
		Counts:       map[Level]int{LevelLow: 0, LevelMedium: 0, LevelHigh: 0, LevelCritical: 0},
		Amounts:      map[Level]int64{LevelLow: 0, LevelMedium: 0, LevelHigh: 0, LevelCritical: 0},
		HighRiskDocs: make([]DocumentRisk, 0),
	}
	now := e.now()

	score := func(n graph.Node, docType repository.DocumentType) {
		s := 0
		factors := make([]string, 0)
		switch {
		case n.Amount > highValueAmount:
			s += 3
			factors = append(factors, "High value")
		case n.Amount > mediumValueAmount:
			s++
			factors = append(factors, "Medium value")
		}
		switch {
		case n.Blocked:
			s += 5
			factors = append(factors, "Blocked")
		case n.Status == string(repository.POStatusPendingApproval):
			s += 2
			factors = append(factors, "Pending approval")
		}
		if docType == repository.DocumentInvoice && n.Status != string(repository.InvoiceStatusPaid) &&
			!n.DueDate.IsZero() && n.DueDate.Before(now) {
			s += 4
			factors = append(factors, "Overdue")
		}

		var level Level
		switch {
		case s >= 7:
			level = LevelCritical
		case s >= 4:
			level = LevelHigh
		case s >= 2:
			level = LevelMedium
		default:
			level = LevelLow
		}
		dist.Counts[level]++
		dist.Amounts[level] += n.Amount
		dist.DocumentCount++
		if level == LevelHigh || level == LevelCritical {
			dist.HighRiskDocs = append(dist.HighRiskDocs, DocumentRisk{
				DocumentID:   n.ID,
				DocumentType: docType,
				Amount:       n.Amount,
				Level:        level,
				Score:        s,
				Factors:      factors,
			})
		}
	}

	for _, n := range g.Nodes(graph.KindPurchaseOrder) {
		score(n, repository.DocumentPurchaseOrder)
	}
	for _, n := range g.Nodes(graph.KindInvoice) {
		score(n, repository.DocumentInvoice)
	}
	return dist
}

// AmountStats describes the amount distribution of one document kind.
type AmountStats struct {
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	StdDev       float64 `json:"std_dev"`
	OutlierCount int     `json:"outlier_count"`
}

// Outlier is a document whose amount lies far from its kind's mean.
type Outlier struct {
	DocumentID   string                  `json:"document_id"`
	DocumentType repository.DocumentType `json:"document_type"`
	VendorID     string                  `json:"vendor_id"`
	Amount       int64                   `json:"amount"`
	ZScore       float64                 `json:"z_score"`
}

// OutlierReport lists amount outliers for purchase orders and invoices.
type OutlierReport struct {
	PurchaseOrders AmountStats `json:"purchase_orders"`
	Invoices       AmountStats `json:"invoices"`
	Outliers       []Outlier   `json:"outliers"`
}

// AmountOutliers flags documents whose amount z-score (population standard
// deviation) exceeds the threshold, strongest first.
func (e *Engine) AmountOutliers(g *graph.Graph) OutlierReport {
	report := OutlierReport{Outliers: make([]Outlier, 0)}

	var poOutliers, invOutliers []Outlier
	report.PurchaseOrders, poOutliers = e.outliers(g.Nodes(graph.KindPurchaseOrder), repository.DocumentPurchaseOrder)
	report.Invoices, invOutliers = e.outliers(g.Nodes(graph.KindInvoice), repository.DocumentInvoice)

	report.Outliers = append(report.Outliers, poOutliers...)
	report.Outliers = append(report.Outliers, invOutliers...)
	sort.SliceStable(report.Outliers, func(i, j int) bool {
		return report.Outliers[i].ZScore > report.Outliers[j].ZScore
	})
	if limit := e.thresholds.MaxOutliers; limit > 0 && len(report.Outliers) > limit {
		report.Outliers = report.Outliers[:limit]
	}
	return report
}

func (e *Engine) outliers(nodes []graph.Node, docType repository.DocumentType) (AmountStats, []Outlier) {
	if len(nodes) == 0 {
		return AmountStats{}, nil
	}
	amounts := make(stats.Float64Data, 0, len(nodes))
	for _, n := range nodes {
		amounts = append(amounts, float64(n.Amount))
	}
	mean, _ := stats.Mean(amounts)
	median, _ := stats.Median(amounts)
	std, _ := stats.StandardDeviationPopulation(amounts)

	summary := AmountStats{
		Count:  len(nodes),
		Mean:   round2(mean),
		Median: round2(median),
		StdDev: round2(std),
	}
	if std == 0 {
		return summary, nil
	}

	var out []Outlier
	for _, n := range nodes {
		z := math.Abs(float64(n.Amount)-mean) / std
		if z <= e.thresholds.OutlierZScore {
			continue
		}
		out = append(out, Outlier{
			DocumentID:   n.ID,
			DocumentType: docType,
			VendorID:     n.VendorID,
			Amount:       n.Amount,
			ZScore:       round2(z),
		})
	}
	summary.OutlierCount = len(out)
	return summary, out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
