package service

import (
	"fmt"
	"time"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// newApprovalChain creates one Pending slot per required approver, in policy order.
func newApprovalChain(policy repository.ApprovalPolicy, at time.Time) []repository.ApprovalRecord {
	chain := make([]repository.ApprovalRecord, 0, policy.Levels())
	for _, approver := range policy.RequiredApprovers {
		chain = append(chain, repository.ApprovalRecord{
			Approver:  approver,
			Decision:  repository.DecisionPending,
			Timestamp: at,
		})
	}
	return chain
}

func validateDecision(decision repository.ApprovalDecision) error {
	switch decision {
	case repository.DecisionApproved, repository.DecisionRejected:
		return nil
	default:
		return errors.InvalidInput("decision",
			fmt.Sprintf("decision must be '%s' or '%s', got '%s'",
				repository.DecisionApproved, repository.DecisionRejected, decision))
	}
}

// applyDecision records approver's decision in the first undecided slot they
// hold and reports the chain outcome: Rejected on any rejection, Approved once
// every slot is approved, Pending otherwise. chain is modified in place.
func applyDecision(
	chain []repository.ApprovalRecord,
	approver string,
	decision repository.ApprovalDecision,
	comments string,
	at time.Time,
) (repository.ApprovalDecision, error) {
	slot := -1
	for i, rec := range chain {
		if rec.Approver == approver && rec.Decision == repository.DecisionPending {
			slot = i
			break
		}
	}
	if slot < 0 {
		return "", errors.Newf(errors.ErrCodeUnknownApprover,
			"'%s' has no pending approval on this document", approver)
	}

	chain[slot].Decision = decision
	chain[slot].Comments = comments
	chain[slot].Timestamp = at

	if decision == repository.DecisionRejected {
		return repository.DecisionRejected, nil
	}
	for _, rec := range chain {
		if rec.Decision != repository.DecisionApproved {
			return repository.DecisionPending, nil
		}
	}
	return repository.DecisionApproved, nil
}
