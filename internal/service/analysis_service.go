package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
	"github.com/pesio-ai/be-p2p-workflow/internal/logger"
	"github.com/pesio-ai/be-p2p-workflow/internal/reasoning"
)

// ReportCache stores serialized reports per workflow instance and revision.
type ReportCache interface {
	Get(ctx context.Context, instance string, revision uint64) ([]byte, bool, error)
	Set(ctx context.Context, instance string, revision uint64, data []byte) error
}

// AnalysisService builds the knowledge graph from the workflow state and runs
// the reasoning engine over it. The graph is rebuilt only when the workflow
// revision moved since the last build.
type AnalysisService struct {
	workflow *WorkflowService
	engine   *reasoning.Engine
	cache    ReportCache
	log      *logger.Logger

	mu       sync.Mutex
	graph    *graph.Graph
	revision uint64
}

// AnalysisOption configures an AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithReportCache caches full reports in cache.
func WithReportCache(cache ReportCache) AnalysisOption {
	return func(s *AnalysisService) { s.cache = cache }
}

// WithReasoningOptions passes options through to the reasoning engine.
func WithReasoningOptions(opts ...reasoning.Option) AnalysisOption {
	return func(s *AnalysisService) {
		s.engine = reasoning.New(policyResolver(s.workflow), opts...)
	}
}

func policyResolver(workflow *WorkflowService) reasoning.PolicyResolver {
	if r := workflow.Resolver(); r != nil {
		return r
	}
	return nil
}

// NewAnalysisService creates an analysis service over workflow.
func NewAnalysisService(workflow *WorkflowService, log *logger.Logger, opts ...AnalysisOption) *AnalysisService {
	s := &AnalysisService{
		workflow: workflow,
		log:      log,
	}
	s.engine = reasoning.New(policyResolver(workflow))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the reasoning engine.
func (s *AnalysisService) Engine() *reasoning.Engine { return s.engine }

// Graph returns the knowledge graph for the current workflow state and the
// revision it was built at.
func (s *AnalysisService) Graph() (*graph.Graph, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph != nil && s.revision == s.workflow.Revision() {
		return s.graph, s.revision
	}
	snap, rev := s.workflow.Snapshot()
	s.graph = graph.Build(snap)
	s.revision = rev

	s.log.Debug().
		Uint64("revision", rev).
		Int("nodes", s.graph.Len()).
		Msg("Knowledge graph rebuilt")
	return s.graph, rev
}

// GraphStats returns node and edge counts of the current graph.
func (s *AnalysisService) GraphStats() graph.Stats {
	g, _ := s.Graph()
	return g.Stats()
}

// Categories lists the purchase categories seen so far.
func (s *AnalysisService) Categories() []string {
	g, _ := s.Graph()
	return reasoning.Categories(g)
}

func (s *AnalysisService) DetectFraudPatterns() []reasoning.FraudFinding {
	g, _ := s.Graph()
	return s.engine.DetectFraudPatterns(g)
}

func (s *AnalysisService) VendorRiskScores() []reasoning.VendorRisk {
	g, _ := s.Graph()
	return s.engine.VendorRiskScores(g)
}

func (s *AnalysisService) ValidateThreeWayMatch() []reasoning.MatchIssue {
	g, _ := s.Graph()
	return s.engine.ValidateThreeWayMatch(g)
}

func (s *AnalysisService) PredictApprovalDelays() []reasoning.DelayPrediction {
	g, _ := s.Graph()
	return s.engine.PredictApprovalDelays(g)
}

// RecommendVendors ranks the vendors of category. category must be non-empty.
func (s *AnalysisService) RecommendVendors(category string, excludeHighRisk bool) ([]reasoning.VendorRecommendation, error) {
	if category == "" {
		return nil, errors.InvalidInput("category", "category is required")
	}
	g, _ := s.Graph()
	return s.engine.RecommendVendors(g, category, excludeHighRisk), nil
}

func (s *AnalysisService) FindConsolidationOpportunities() []reasoning.ConsolidationOpportunity {
	g, _ := s.Graph()
	return s.engine.FindConsolidationOpportunities(g)
}

func (s *AnalysisService) DocumentRiskDistribution() reasoning.RiskDistribution {
	g, _ := s.Graph()
	return s.engine.DocumentRiskDistribution(g)
}

func (s *AnalysisService) AmountOutliers() reasoning.OutlierReport {
	g, _ := s.Graph()
	return s.engine.AmountOutliers(g)
}

// Report runs every analysis over the current state. With a cache configured,
// a report computed for the same revision is served from it, with its
// clock-dependent sections recomputed. Cache failures are logged and fall
// through to a fresh computation.
func (s *AnalysisService) Report(ctx context.Context) (*reasoning.Report, error) {
	g, rev := s.Graph()
	instance := s.workflow.InstanceID()

	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, instance, rev)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Uint64("revision", rev).Msg("Report cache read failed")
		case ok:
			var cached reasoning.Report
			if err := json.Unmarshal(data, &cached); err == nil {
				s.engine.Refresh(&cached, g)
				return &cached, nil
			}
			s.log.Warn().Uint64("revision", rev).Msg("Discarding undecodable cached report")
		}
	}

	report, err := s.engine.GenerateReport(ctx, g)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate report")
	}
	report.Revision = rev

	if s.cache != nil {
		data, err := json.Marshal(report)
		if err == nil {
			err = s.cache.Set(ctx, instance, rev, data)
		}
		if err != nil {
			s.log.Warn().Err(err).Uint64("revision", rev).Msg("Report cache write failed")
		}
	}

	s.log.Info().
		Uint64("revision", rev).
		Int("fraud_patterns", len(report.FraudPatterns)).
		Int("match_issues", len(report.ThreeWayMatchIssues)).
		Msg("Analysis report generated")
	return report, nil
}
