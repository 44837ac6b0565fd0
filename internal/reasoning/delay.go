package reasoning

import (
	"fmt"
	"sort"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// Approval delay weights.
const (
	weightTopLevel        = 30
	weightManyApprovers   = 20
	weightVendorBlocked   = 25
	manyApproversMinCount = 2
)

// DelayPrediction estimates how likely a pending document is to stall.
type DelayPrediction struct {
	DocumentID       string                  `json:"document_id"`
	DocumentType     repository.DocumentType `json:"document_type"`
	VendorID         string                  `json:"vendor_id"`
	Amount           int64                   `json:"amount"`
	PolicyName       string                  `json:"policy_name"`
	DelayRiskScore   int                     `json:"delay_risk_score"`
	RiskLevel        Level                   `json:"risk_level"`
	Factors          []string                `json:"factors"`
	PendingApprovers []string                `json:"pending_approvers"`
}

// PredictApprovalDelays scores every document in Pending Approval: 30 when it
// was routed to the top-level policy, 20 when more than one approver remains
// and 25 when its vendor has any blocked document. Ordered by score
// descending, then document id.
func (e *Engine) PredictApprovalDelays(g *graph.Graph) []DelayPrediction {
	blocked := blockedByVendor(g)
	out := make([]DelayPrediction, 0)

	candidates := []struct {
		kind    graph.NodeKind
		docType repository.DocumentType
		target  repository.PolicyTarget
		pending string
	}{
		{graph.KindPurchaseOrder, repository.DocumentPurchaseOrder, repository.TargetPurchaseOrder, string(repository.POStatusPendingApproval)},
		{graph.KindInvoice, repository.DocumentInvoice, repository.TargetInvoice, string(repository.InvoiceStatusPendingApproval)},
	}
	for _, c := range candidates {
		top := e.topPolicyName(c.target)
		for _, n := range g.Nodes(c.kind) {
			if n.Status != c.pending {
				continue
			}
			out = append(out, predictDelay(n, c.docType, top, blocked[n.VendorID]))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DelayRiskScore != out[j].DelayRiskScore {
			return out[i].DelayRiskScore > out[j].DelayRiskScore
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

func (e *Engine) topPolicyName(target repository.PolicyTarget) string {
	if e.resolver == nil {
		return ""
	}
	top, ok := e.resolver.TopPolicy(target)
	if !ok {
		return ""
	}
	return top.Name
}

func predictDelay(n graph.Node, docType repository.DocumentType, topPolicy string, vendorBlocked int) DelayPrediction {
	score := 0
	factors := make([]string, 0)

	if topPolicy != "" && n.PolicyName == topPolicy {
		score += weightTopLevel
		factors = append(factors, "High amount requiring executive approval")
	}
	if len(n.Approvers) >= manyApproversMinCount {
		score += weightManyApprovers
		factors = append(factors, fmt.Sprintf("%d approvers still required", len(n.Approvers)))
	}
	if vendorBlocked > 0 {
		score += weightVendorBlocked
		factors = append(factors, fmt.Sprintf("Vendor has %d blocked documents", vendorBlocked))
	}

	return DelayPrediction{
		DocumentID:       n.ID,
		DocumentType:     docType,
		VendorID:         n.VendorID,
		Amount:           n.Amount,
		PolicyName:       n.PolicyName,
		DelayRiskScore:   score,
		RiskLevel:        riskLevel(score),
		Factors:          factors,
		PendingApprovers: append([]string{}, n.Approvers...),
	}
}
