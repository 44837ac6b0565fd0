// Package reasoning runs read-only heuristic analyses over a knowledge graph
// snapshot: fraud patterns, vendor risk, three-way match issues, approval
// delay prediction, vendor recommendations and consolidation opportunities.
//
// Analyses never fail; an empty graph yields empty results. All of them are
// safe to run concurrently over the same graph.
package reasoning

import (
	"time"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// PolicyResolver is the subset of the approval resolver the analyses need.
type PolicyResolver interface {
	Resolve(target repository.PolicyTarget, amount int64) (repository.ApprovalPolicy, error)
	TopPolicy(target repository.PolicyTarget) (repository.ApprovalPolicy, bool)
}

// Thresholds holds the heuristic constants.
type Thresholds struct {
	UnusualAmountRatio     float64       `yaml:"unusual_amount_ratio"`
	SplitInvoiceMinCount   int           `yaml:"split_invoice_min_count"`
	SplitInvoiceWindow     time.Duration `yaml:"split_invoice_window"`
	BlockedPatternMinCount int           `yaml:"blocked_pattern_min_count"`
	HighVolumeTransactions int           `yaml:"high_volume_transactions"`
	VarianceFlagPercent    int64         `yaml:"variance_flag_percent"`
	VarianceHighPercent    int64         `yaml:"variance_high_percent"`
	OutlierZScore          float64       `yaml:"outlier_z_score"`
	MaxOutliers            int           `yaml:"max_outliers"`
}

// DefaultThresholds returns the production constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		UnusualAmountRatio:     3.0,
		SplitInvoiceMinCount:   3,
		SplitInvoiceWindow:     30 * 24 * time.Hour,
		BlockedPatternMinCount: 2,
		HighVolumeTransactions: 6,
		VarianceFlagPercent:    5,
		VarianceHighPercent:    10,
		OutlierZScore:          2.0,
		MaxOutliers:            20,
	}
}

// Engine runs the analyses.
type Engine struct {
	resolver   PolicyResolver
	thresholds Thresholds
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for due-date checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithThresholds overrides the heuristic constants.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// New creates an engine. resolver may be nil, in which case the analyses that
// depend on approval brackets are skipped.
func New(resolver PolicyResolver, opts ...Option) *Engine {
	e := &Engine{
		resolver:   resolver,
		thresholds: DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the constants in use.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Level is a risk or severity bucket.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// riskLevel buckets a weighted score: LOW < 30 ≤ MEDIUM < 60 ≤ HIGH.
func riskLevel(score int) Level {
	switch {
	case score >= 60:
		return LevelHigh
	case score >= 30:
		return LevelMedium
	default:
		return LevelLow
	}
}

// vendorFacts gathers the documents reachable from one vendor node.
type vendorFacts struct {
	vendor   graph.Node
	pos      []graph.Node
	grs      []graph.Node
	invoices []graph.Node
	blocked  []string
	rejected []string
	overdue  []string
}

func (v *vendorFacts) issues() int {
	return len(v.blocked) + len(v.rejected) + len(v.overdue)
}

func collectVendors(g *graph.Graph) []*vendorFacts {
	vendors := g.Nodes(graph.KindVendor)
	out := make([]*vendorFacts, 0, len(vendors))
	for _, v := range vendors {
		f := &vendorFacts{
			vendor:   v,
			pos:      g.Successors(v, graph.RelSupplies),
			invoices: g.Successors(v, graph.RelBilledBy),
		}
		for _, po := range f.pos {
			if po.Blocked {
				f.blocked = append(f.blocked, po.ID)
			}
			for _, gr := range g.Successors(po, graph.RelFulfilledBy) {
				f.grs = append(f.grs, gr)
				if gr.Blocked {
					f.blocked = append(f.blocked, gr.ID)
				}
				if gr.QualityResult == string(repository.QualityFail) {
					f.rejected = append(f.rejected, gr.ID)
				}
			}
		}
		for _, inv := range f.invoices {
			if inv.Blocked {
				f.blocked = append(f.blocked, inv.ID)
			}
			if inv.Status == string(repository.InvoiceStatusOverdue) {
				f.overdue = append(f.overdue, inv.ID)
			}
		}
		out = append(out, f)
	}
	return out
}

// blockedByVendor counts blocked documents per vendor id.
func blockedByVendor(g *graph.Graph) map[string]int {
	out := make(map[string]int)
	for _, f := range collectVendors(g) {
		out[f.vendor.ID] = len(f.blocked)
	}
	return out
}
