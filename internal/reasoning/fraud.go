package reasoning

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// Fraud pattern names.
const (
	PatternUnusualAmount  = "Unusual Invoice Amount"
	PatternSplitInvoicing = "Split Invoicing"
	PatternBlockedDocs    = "Blocked Document Pattern"
)

// FraudFinding is one suspicious pattern.
type FraudFinding struct {
	Type         string   `json:"type"`
	Severity     Level    `json:"severity"`
	VendorID     string   `json:"vendor_id"`
	VendorName   string   `json:"vendor_name"`
	DocumentIDs  []string `json:"document_ids"`
	Amount       int64    `json:"amount,omitempty"`
	Average      float64  `json:"average,omitempty"`
	Ratio        float64  `json:"ratio,omitempty"`
	InvoiceCount int      `json:"invoice_count,omitempty"`
	TotalAmount  int64    `json:"total_amount,omitempty"`
	BracketLimit int64    `json:"bracket_limit,omitempty"`
	Policy       string   `json:"policy,omitempty"`
	BlockedCount int      `json:"blocked_count,omitempty"`
	Reason       string   `json:"reason"`
}

// DetectFraudPatterns flags unusual invoice amounts, split invoicing and
// vendors with repeated blocked documents. Findings are grouped by pattern,
// then ordered by vendor.
func (e *Engine) DetectFraudPatterns(g *graph.Graph) []FraudFinding {
	vendors := collectVendors(g)
	findings := make([]FraudFinding, 0)

	for _, v := range vendors {
		findings = append(findings, e.unusualAmounts(v)...)
	}
	for _, v := range vendors {
		findings = append(findings, e.splitInvoicing(v)...)
	}
	for _, v := range vendors {
		if len(v.blocked) >= e.thresholds.BlockedPatternMinCount {
			findings = append(findings, FraudFinding{
				Type:         PatternBlockedDocs,
				Severity:     LevelHigh,
				VendorID:     v.vendor.ID,
				VendorName:   v.vendor.Name,
				DocumentIDs:  append([]string(nil), v.blocked...),
				BlockedCount: len(v.blocked),
				Reason:       fmt.Sprintf("Vendor has %d blocked documents", len(v.blocked)),
			})
		}
	}
	return findings
}

// unusualAmounts flags invoices at or above ratio × the vendor's mean invoice
// amount. The mean includes the flagged invoice itself.
func (e *Engine) unusualAmounts(v *vendorFacts) []FraudFinding {
	if len(v.invoices) < 2 {
		return nil
	}
	amounts := make(stats.Float64Data, 0, len(v.invoices))
	for _, inv := range v.invoices {
		amounts = append(amounts, float64(inv.Amount))
	}
	mean, err := stats.Mean(amounts)
	if err != nil || mean <= 0 {
		return nil
	}

	var out []FraudFinding
	for _, inv := range v.invoices {
		ratio := float64(inv.Amount) / mean
		if ratio < e.thresholds.UnusualAmountRatio {
			continue
		}
		out = append(out, FraudFinding{
			Type:        PatternUnusualAmount,
			Severity:    LevelHigh,
			VendorID:    v.vendor.ID,
			VendorName:  v.vendor.Name,
			DocumentIDs: []string{inv.ID},
			Amount:      inv.Amount,
			Average:     mean,
			Ratio:       ratio,
			Reason:      fmt.Sprintf("Invoice amount is %.1fx the vendor average", ratio),
		})
	}
	return out
}

// splitInvoicing looks, per approval bracket, for a burst of invoices inside
// the time window that individually stay below the bracket's upper bound but
// together reach it. One finding is reported per vendor and bracket.
func (e *Engine) splitInvoicing(v *vendorFacts) []FraudFinding {
	if e.resolver == nil || len(v.invoices) < e.thresholds.SplitInvoiceMinCount {
		return nil
	}

	type bracket struct {
		policy   repository.ApprovalPolicy
		invoices []graph.Node
	}
	var order []string
	groups := make(map[string]*bracket)
	for _, inv := range v.invoices {
		policy, err := e.resolver.Resolve(repository.TargetInvoice, inv.Amount)
		if err != nil || policy.MaxAmount == nil {
			continue
		}
		b, ok := groups[policy.Name]
		if !ok {
			b = &bracket{policy: policy}
			groups[policy.Name] = b
			order = append(order, policy.Name)
		}
		b.invoices = append(b.invoices, inv)
	}

	var out []FraudFinding
	for _, name := range order {
		b := groups[name]
		invs := b.invoices
		sort.SliceStable(invs, func(i, j int) bool { return invs[i].Date.Before(invs[j].Date) })
		limit := *b.policy.MaxAmount

		for i := range invs {
			var (
				total int64
				ids   []string
			)
			for j := i; j < len(invs) && invs[j].Date.Sub(invs[i].Date) <= e.thresholds.SplitInvoiceWindow; j++ {
				total += invs[j].Amount
				ids = append(ids, invs[j].ID)
			}
			if len(ids) < e.thresholds.SplitInvoiceMinCount || total < limit {
				continue
			}
			out = append(out, FraudFinding{
				Type:         PatternSplitInvoicing,
				Severity:     LevelMedium,
				VendorID:     v.vendor.ID,
				VendorName:   v.vendor.Name,
				DocumentIDs:  ids,
				InvoiceCount: len(ids),
				TotalAmount:  total,
				BracketLimit: limit,
				Policy:       b.policy.Name,
				Reason: fmt.Sprintf("%d invoices under the %s limit total %s within %d days",
					len(ids), b.policy.Name, formatCents(total), int(e.thresholds.SplitInvoiceWindow.Hours()/24)),
			})
			break
		}
	}
	return out
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := cents / 100
	s := fmt.Sprintf("%d", whole)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return fmt.Sprintf("%s$%s.%02d", sign, s, cents%100)
}
