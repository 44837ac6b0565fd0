package reasoning

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
)

// VendorRecommendation ranks a vendor supplying a category.
type VendorRecommendation struct {
	VendorID         string  `json:"vendor_id"`
	VendorName       string  `json:"vendor_name"`
	Category         string  `json:"category"`
	AvgUnitPrice     float64 `json:"avg_unit_price"`
	LineCount        int     `json:"line_count"`
	RiskScore        int     `json:"risk_score"`
	RiskLevel        Level   `json:"risk_level"`
	QualityIssues    int     `json:"quality_issues"`
	BlockedCount     int     `json:"blocked_count"`
	TransactionCount int     `json:"transaction_count"`
}

// VendorSpend is one vendor's share of a category.
type VendorSpend struct {
	VendorID         string `json:"vendor_id"`
	VendorName       string `json:"vendor_name"`
	Spend            int64  `json:"spend"`
	TransactionCount int    `json:"transaction_count"`
}

// ConsolidationOpportunity is a category bought from many vendors.
type ConsolidationOpportunity struct {
	Category       string        `json:"category"`
	VendorCount    int           `json:"vendor_count"`
	TotalSpend     int64         `json:"total_spend"`
	Vendors        []VendorSpend `json:"vendors"`
	Recommendation string        `json:"recommendation"`
}

const consolidationMinVendors = 3

// categorySupply aggregates the contains edges of one category per vendor.
type categorySupply struct {
	vendorID string
	prices   stats.Float64Data
	spend    int64
	pos      map[string]bool
}

func supplyByVendor(g *graph.Graph, category graph.Node) []*categorySupply {
	var order []string
	byVendor := make(map[string]*categorySupply)
	for _, e := range g.In(category, graph.RelContains) {
		po := g.Node(e.From)
		s, ok := byVendor[po.VendorID]
		if !ok {
			s = &categorySupply{vendorID: po.VendorID, pos: make(map[string]bool)}
			byVendor[po.VendorID] = s
			order = append(order, po.VendorID)
		}
		s.prices = append(s.prices, float64(e.UnitPrice))
		s.spend += e.Amount
		s.pos[po.ID] = true
	}
	out := make([]*categorySupply, 0, len(order))
	for _, id := range order {
		out = append(out, byVendor[id])
	}
	return out
}

func vendorName(g *graph.Graph, id string) string {
	if v, ok := g.Lookup(graph.KindVendor, id); ok {
		return v.Name
	}
	return id
}

// RecommendVendors ranks the vendors that supplied category by ascending
// average unit price, then ascending risk score, then descending transaction
// count. HIGH-risk vendors are dropped when excludeHighRisk is set.
func (e *Engine) RecommendVendors(g *graph.Graph, category string, excludeHighRisk bool) []VendorRecommendation {
	out := make([]VendorRecommendation, 0)
	cat, ok := g.Lookup(graph.KindCategory, category)
	if !ok {
		return out
	}

	risks := make(map[string]VendorRisk)
	for _, r := range e.VendorRiskScores(g) {
		risks[r.VendorID] = r
	}

	for _, s := range supplyByVendor(g, cat) {
		risk := risks[s.vendorID]
		if excludeHighRisk && risk.RiskLevel == LevelHigh {
			continue
		}
		avg, err := stats.Mean(s.prices)
		if err != nil {
			continue
		}
		out = append(out, VendorRecommendation{
			VendorID:         s.vendorID,
			VendorName:       vendorName(g, s.vendorID),
			Category:         category,
			AvgUnitPrice:     avg,
			LineCount:        len(s.prices),
			RiskScore:        risk.RiskScore,
			RiskLevel:        risk.RiskLevel,
			QualityIssues:    risk.QualityRejections,
			BlockedCount:     risk.BlockedDocuments,
			TransactionCount: risk.TransactionCount,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AvgUnitPrice != b.AvgUnitPrice {
			return a.AvgUnitPrice < b.AvgUnitPrice
		}
		if a.RiskScore != b.RiskScore {
			return a.RiskScore < b.RiskScore
		}
		return a.TransactionCount > b.TransactionCount
	})
	return out
}

// FindConsolidationOpportunities reports categories supplied by at least
// three distinct vendors, ordered by category name. Spend is the sum of the
// category's line totals.
func (e *Engine) FindConsolidationOpportunities(g *graph.Graph) []ConsolidationOpportunity {
	out := make([]ConsolidationOpportunity, 0)
	for _, cat := range g.Nodes(graph.KindCategory) {
		supply := supplyByVendor(g, cat)
		if len(supply) < consolidationMinVendors {
			continue
		}

		opp := ConsolidationOpportunity{
			Category:    cat.ID,
			VendorCount: len(supply),
			Vendors:     make([]VendorSpend, 0, len(supply)),
		}
		for _, s := range supply {
			opp.TotalSpend += s.spend
			opp.Vendors = append(opp.Vendors, VendorSpend{
				VendorID:         s.vendorID,
				VendorName:       vendorName(g, s.vendorID),
				Spend:            s.spend,
				TransactionCount: len(s.pos),
			})
		}
		sort.SliceStable(opp.Vendors, func(i, j int) bool {
			if opp.Vendors[i].Spend != opp.Vendors[j].Spend {
				return opp.Vendors[i].Spend > opp.Vendors[j].Spend
			}
			return opp.Vendors[i].VendorID < opp.Vendors[j].VendorID
		})
		opp.Recommendation = fmt.Sprintf("Consider consolidating %d vendors for %s", opp.VendorCount, opp.Category)
		out = append(out, opp)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Categories lists the category names present in the graph.
func Categories(g *graph.Graph) []string {
	nodes := g.Nodes(graph.KindCategory)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	sort.Strings(out)
	return out
}
