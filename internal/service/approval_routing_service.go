package service

import (
	"fmt"
	"sort"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// ApprovalResolver selects the approval policy for a document amount. Policies
// are grouped by target; within a target the brackets are contiguous and
// non-overlapping, so at most one policy covers any amount.
type ApprovalResolver struct {
	byTarget map[repository.PolicyTarget][]repository.ApprovalPolicy
}

// NewApprovalResolver validates and indexes a policy set.
func NewApprovalResolver(policies []repository.ApprovalPolicy) (*ApprovalResolver, error) {
	byTarget := make(map[repository.PolicyTarget][]repository.ApprovalPolicy)
	for _, p := range policies {
		switch p.Target {
		case repository.TargetPurchaseOrder, repository.TargetInvoice:
		default:
			return nil, errors.InvalidInput("target",
				fmt.Sprintf("policy '%s' has unknown target '%s'", p.Name, p.Target))
		}
		if p.MaxAmount != nil && *p.MaxAmount <= p.MinAmount {
			return nil, errors.InvalidInput("max_amount",
				fmt.Sprintf("policy '%s' has an empty amount range", p.Name))
		}
		byTarget[p.Target] = append(byTarget[p.Target], p.Clone())
	}

	for target, set := range byTarget {
		sort.SliceStable(set, func(i, j int) bool { return set[i].MinAmount < set[j].MinAmount })
		if err := validateBrackets(target, set); err != nil {
			return nil, err
		}
	}

	return &ApprovalResolver{byTarget: byTarget}, nil
}

// validateBrackets checks that sorted brackets start at zero and chain
// max → next min without gaps or overlaps.
func validateBrackets(target repository.PolicyTarget, set []repository.ApprovalPolicy) error {
	if set[0].MinAmount != 0 {
		return errors.InvalidInput("min_amount",
			fmt.Sprintf("%s policies must start at 0, first bracket '%s' starts at %d", target, set[0].Name, set[0].MinAmount))
	}
	for i := 0; i < len(set)-1; i++ {
		cur, next := set[i], set[i+1]
		if cur.MaxAmount == nil {
			return errors.InvalidInput("max_amount",
				fmt.Sprintf("%s policy '%s' is unbounded but is followed by '%s'", target, cur.Name, next.Name))
		}
		if *cur.MaxAmount != next.MinAmount {
			return errors.InvalidInput("min_amount",
				fmt.Sprintf("%s policies '%s' and '%s' are not contiguous", target, cur.Name, next.Name))
		}
	}
	return nil
}

// Resolve returns the unique policy whose bracket contains amount.
func (r *ApprovalResolver) Resolve(target repository.PolicyTarget, amount int64) (repository.ApprovalPolicy, error) {
	for _, p := range r.byTarget[target] {
		if p.Covers(amount) {
			return p.Clone(), nil
		}
	}
	return repository.ApprovalPolicy{}, errors.Newf(errors.ErrCodeNoPolicyMatch,
		"no %s approval policy covers amount %d", target, amount)
}

// Policies lists a target's policies ordered by bracket.
func (r *ApprovalResolver) Policies(target repository.PolicyTarget) []repository.ApprovalPolicy {
	set := r.byTarget[target]
	out := make([]repository.ApprovalPolicy, 0, len(set))
	for _, p := range set {
		out = append(out, p.Clone())
	}
	return out
}

// AllPolicies lists every policy, purchase order brackets first.
func (r *ApprovalResolver) AllPolicies() []repository.ApprovalPolicy {
	return append(r.Policies(repository.TargetPurchaseOrder), r.Policies(repository.TargetInvoice)...)
}

// TopPolicy returns the bracket requiring the most approvers (the executive
// level). Ties go to the higher bracket.
func (r *ApprovalResolver) TopPolicy(target repository.PolicyTarget) (repository.ApprovalPolicy, bool) {
	set := r.byTarget[target]
	if len(set) == 0 {
		return repository.ApprovalPolicy{}, false
	}
	top := set[0]
	for _, p := range set[1:] {
		if p.Levels() >= top.Levels() {
			top = p
		}
	}
	return top.Clone(), true
}

// ── Default configuration ─────────────────────────────────────────────────────

// DefaultPolicies returns the standard three-bracket policy set for both
// purchase orders and invoices.
func DefaultPolicies() []repository.ApprovalPolicy {
	const (
		deptManager    = "John Smith (Dept Manager)"
		financeManager = "Sarah Johnson (Finance Manager)"
		cfo            = "Michael Brown (CFO)"
	)
	lowMax := int64(100000)     // $1,000
	mediumMax := int64(1000000) // $10,000

	var policies []repository.ApprovalPolicy
	for _, target := range []repository.PolicyTarget{repository.TargetPurchaseOrder, repository.TargetInvoice} {
		policies = append(policies,
			repository.ApprovalPolicy{
				Name:              "Low Value Purchase Policy",
				Description:       "Up to $1,000 - requires department manager approval",
				Target:            target,
				MinAmount:         0,
				MaxAmount:         &lowMax,
				RequiredApprovers: []string{deptManager},
			},
			repository.ApprovalPolicy{
				Name:              "Medium Value Purchase Policy",
				Description:       "$1,000 - $10,000 - requires department and finance approval",
				Target:            target,
				MinAmount:         lowMax,
				MaxAmount:         &mediumMax,
				RequiredApprovers: []string{deptManager, financeManager},
			},
			repository.ApprovalPolicy{
				Name:              "High Value Purchase Policy",
				Description:       "Over $10,000 - requires department, finance and executive approval",
				Target:            target,
				MinAmount:         mediumMax,
				RequiredApprovers: []string{deptManager, financeManager, cfo},
			},
		)
	}
	return policies
}
