package service

import (
	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// transitionTable lists the statuses reachable from each status. Blocked is an
// overlay handled by the block/unblock operations and is not listed here.
type transitionTable[S ~string] map[S][]S

func (t transitionTable[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// check returns InvalidPrecondition when from → to is not a legal edge.
func (t transitionTable[S]) check(kind, id string, from, to S) error {
	if t.allows(from, to) {
		return nil
	}
	return errors.Newf(errors.ErrCodeInvalidPrecondition,
		"%s %s cannot move from '%s' to '%s'", kind, id, from, to)
}

var poTransitions = transitionTable[repository.POStatus]{
	repository.POStatusDraft: {
		repository.POStatusPendingApproval,
		repository.POStatusApproved, // zero-approver policy
		repository.POStatusCancelled,
	},
	repository.POStatusPendingApproval: {
		repository.POStatusApproved,
		repository.POStatusRejected,
		repository.POStatusCancelled,
	},
	repository.POStatusApproved: {
		repository.POStatusInProgress,
		repository.POStatusCancelled,
	},
	repository.POStatusInProgress: {
		repository.POStatusCompleted,
		repository.POStatusCancelled,
	},
	repository.POStatusRejected:  {},
	repository.POStatusCompleted: {},
	repository.POStatusCancelled: {},
}

var grTransitions = transitionTable[repository.GRStatus]{
	repository.GRStatusDraft:    {repository.GRStatusReceived},
	repository.GRStatusReceived: {repository.GRStatusAccepted, repository.GRStatusRejected},
	repository.GRStatusAccepted: {},
	repository.GRStatusRejected: {},
}

var invoiceTransitions = transitionTable[repository.InvoiceStatus]{
	repository.InvoiceStatusDraft: {
		repository.InvoiceStatusPendingApproval,
		repository.InvoiceStatusApproved, // zero-approver policy
	},
	repository.InvoiceStatusPendingApproval: {
		repository.InvoiceStatusApproved,
		repository.InvoiceStatusRejected,
	},
	repository.InvoiceStatusApproved: {
		repository.InvoiceStatusPaid,
		repository.InvoiceStatusOverdue,
	},
	repository.InvoiceStatusRejected: {},
	repository.InvoiceStatusPaid:     {},
	repository.InvoiceStatusOverdue:  {},
}

// poTerminal reports statuses a purchase order never leaves.
func poTerminal(s repository.POStatus) bool {
	return s == repository.POStatusRejected ||
		s == repository.POStatusCompleted ||
		s == repository.POStatusCancelled
}

// AllowedPOTransitions lists the statuses reachable from s, excluding Blocked.
func AllowedPOTransitions(s repository.POStatus) []repository.POStatus {
	return append([]repository.POStatus{}, poTransitions[s]...)
}
