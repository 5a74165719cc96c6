// Package workflow holds the two-level approval state machine. It has no I/O; callers provide
// the request and its ledger and persist the outcome.
package workflow

import (
	"strings"

	"procurement/internal/apperror"
	"procurement/internal/identity"
	"procurement/internal/model"
)

type Decision int

const (
	Approve Decision = iota + 1
	Reject
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// LevelState is the state of a single approval level.
type LevelState string

const (
	LevelPending  LevelState = "pending"
	LevelApproved LevelState = "approved"
	LevelRejected LevelState = "rejected"
)

// Progress is the per-level view of the ledger. It is derived on read and never stored.
type Progress struct {
	Level1 LevelState `json:"level_1"`
	Level2 LevelState `json:"level_2"`
}

// DeriveStatus computes request status from the ledger: any rejection wins, otherwise both
// levels must have approved.
func DeriveStatus(approvals []model.Approval) model.Status {
	p := ProgressOf(approvals)
	for _, a := range approvals {
		if !a.Approved {
			return model.StatusRejected
		}
	}
	if p.Level1 == LevelApproved && p.Level2 == LevelApproved {
		return model.StatusApproved
	}
	return model.StatusPending
}

// ProgressOf folds the ledger into per-level states using the role snapshot on each row.
func ProgressOf(approvals []model.Approval) Progress {
	p := Progress{Level1: LevelPending, Level2: LevelPending}
	for _, a := range approvals {
		level, ok := a.ApproverRole.ApprovalLevel()
		if !ok {
			continue
		}
		state := LevelApproved
		if !a.Approved {
			state = LevelRejected
		}
		switch level {
		case 1:
			p.Level1 = merge(p.Level1, state)
		case 2:
			p.Level2 = merge(p.Level2, state)
		}
	}
	return p
}

func merge(current, next LevelState) LevelState {
	if current == LevelRejected || next == LevelRejected {
		return LevelRejected
	}
	return next
}

// CheckDecision validates a decision against a request that is known to exist. Checks run in a
// fixed order: role, status, prior decision by the same approver, prior decision at the same
// level, rejection reason. Each level takes exactly one decision.
func CheckDecision(actor identity.Actor, req *model.PurchaseRequest, decision Decision, comments string) error {
	if !actor.Role.IsApprover() || actor.ID == "" {
		return apperror.ErrNotApprover
	}
	if req.Status != model.StatusPending {
		return apperror.Wrap(apperror.ErrNotPending, "request is %s", req.Status)
	}
	if HasDecided(req.Approvals, actor.ID) {
		return apperror.ErrAlreadyDecided
	}
	level, _ := actor.Role.ApprovalLevel()
	if LevelDecided(req.Approvals, level) {
		return apperror.ErrLevelDecided
	}
	switch decision {
	case Approve:
	case Reject:
		if strings.TrimSpace(comments) == "" {
			return apperror.ErrReasonRequired
		}
	default:
		return apperror.Wrap(apperror.ErrInvalidInput, "unknown decision")
	}
	return nil
}

func HasDecided(approvals []model.Approval, approverID string) bool {
	for _, a := range approvals {
		if a.ApproverID == approverID {
			return true
		}
	}
	return false
}

// LevelDecided reports whether the ledger already holds a decision for the given level.
func LevelDecided(approvals []model.Approval, level int) bool {
	for _, a := range approvals {
		if l, ok := a.ApproverRole.ApprovalLevel(); ok && l == level {
			return true
		}
	}
	return false
}

// CheckOwnerMutation guards creator edits, deletes and proforma replacement.
func CheckOwnerMutation(actor identity.Actor, req *model.PurchaseRequest) error {
	if actor.ID == "" || actor.ID != req.CreatedBy || !actor.Role.Valid() {
		return apperror.ErrNotOwner
	}
	if req.Status != model.StatusPending {
		return apperror.Wrap(apperror.ErrNotPending, "request is %s", req.Status)
	}
	return nil
}

// CheckReceipt guards receipt submission.
func CheckReceipt(actor identity.Actor, req *model.PurchaseRequest) error {
	if actor.ID == "" || actor.ID != req.CreatedBy || !actor.Role.Valid() {
		return apperror.ErrNotOwner
	}
	if req.Status != model.StatusApproved {
		return apperror.Wrap(apperror.ErrNotApproved, "request is %s", req.Status)
	}
	if req.Receipt != nil {
		return apperror.ErrReceiptExists
	}
	return nil
}
