package reasoning

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
)

// Report bundles every analysis over one graph.
type Report struct {
	GeneratedAt                time.Time                  `json:"generated_at"`
	Revision                   uint64                     `json:"revision"`
	FraudPatterns              []FraudFinding             `json:"fraud_patterns"`
	VendorRisks                []VendorRisk               `json:"vendor_risks"`
	ThreeWayMatchIssues        []MatchIssue               `json:"three_way_match_issues"`
	ApprovalDelays             []DelayPrediction          `json:"approval_delays"`
	ConsolidationOpportunities []ConsolidationOpportunity `json:"consolidation_opportunities"`
	RiskDistribution           RiskDistribution           `json:"risk_distribution"`
	Outliers                   OutlierReport              `json:"outliers"`
	GraphStats                 graph.Stats                `json:"graph_stats"`
}

// GenerateReport runs the analyses concurrently over g. The only error it
// returns is ctx's, when the context ends before the analyses finish.
func (e *Engine) GenerateReport(ctx context.Context, g *graph.Graph) (*Report, error) {
	report := &Report{GeneratedAt: e.now(), GraphStats: g.Stats()}

	eg, ctx := errgroup.WithContext(ctx)
	run := func(fn func()) {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn()
			return nil
		})
	}

	run(func() { report.FraudPatterns = e.DetectFraudPatterns(g) })
	run(func() { report.VendorRisks = e.VendorRiskScores(g) })
	run(func() { report.ThreeWayMatchIssues = e.ValidateThreeWayMatch(g) })
	run(func() { report.ApprovalDelays = e.PredictApprovalDelays(g) })
	run(func() { report.ConsolidationOpportunities = e.FindConsolidationOpportunities(g) })
	run(func() { report.RiskDistribution = e.DocumentRiskDistribution(g) })
	run(func() { report.Outliers = e.AmountOutliers(g) })

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// Refresh recomputes the clock-dependent sections of r against g.
func (e *Engine) Refresh(r *Report, g *graph.Graph) {
	r.GeneratedAt = e.now()
	r.RiskDistribution = e.DocumentRiskDistribution(g)
}
