package requests

import (
	"fmt"
	"time"

	"github.com/patrimon/patrimon/internal/assets"
	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
)

// Type distinguishes what a batch request does to its members.
type Type string

const (
	// TypeTransfer moves every member to a target branch.
	TypeTransfer Type = "TRANSFER"
	// TypeWriteOff retires every member.
	TypeWriteOff Type = "WRITE_OFF"
)

// Valid reports whether t is a known request type.
func (t Type) Valid() bool {
	return t == TypeTransfer || t == TypeWriteOff
}

// Action maps the request type onto the workflow action its rule chain is
// keyed by.
func (t Type) Action() workflow.ActionType {
	if t == TypeWriteOff {
		return workflow.ActionWriteOff
	}
	return workflow.ActionTransfer
}

// PendingStatus is the status members hold while the request is open.
func (t Type) PendingStatus() assets.Status {
	if t == TypeWriteOff {
		return assets.StatusWriteOffPending
	}
	return assets.StatusTransferPending
}

// Status is the batch request lifecycle state.
type Status string

const (
	// StatusPending means the request is inside its approval chain.
	StatusPending Status = "PENDING"
	// StatusApproved means every step passed and the member effects applied.
	StatusApproved Status = "APPROVED"
	// StatusRejected means an approver declined; member assets reverted.
	StatusRejected Status = "REJECTED"
)

// Request is a batch operation over several assets that approves or fails
// as one unit.
type Request struct {
	ID             int64
	Type           Type
	Status         Status
	RequesterID    int64
	CategoryID     int64
	TargetBranchID int64
	Reason         string
	CurrentStep    int
	Version        int64
	AssetIDs       []int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Progress locates the request inside its approval pipeline.
func (r Request) Progress() workflow.Progress {
	step := r.CurrentStep
	if step < 1 {
		step = 1
	}
	return workflow.Progress{CategoryID: r.CategoryID, Action: r.Type.Action(), Step: step}
}

// View pairs a request with the approvers resolved for its current step.
type View struct {
	Request
	CurrentApprovers []workflow.Approver
}

// ListFilter narrows request listings.
type ListFilter struct {
	RequesterID int64
	Status      Status
	Type        Type
	Limit       int
	Offset      int
}

var (
	// ErrNoMembers rejects batch requests without member assets.
	ErrNoMembers = fmt.Errorf("requests: at least one asset required: %w", shared.ErrPreconditionFailed)
	// ErrMixedCategories rejects members spanning more than one category.
	ErrMixedCategories = fmt.Errorf("requests: all assets must share one category: %w", shared.ErrPreconditionFailed)
	// ErrMemberNotOperational rejects members that are mid-pipeline,
	// in transit or already retired.
	ErrMemberNotOperational = fmt.Errorf("requests: asset cannot enter an approval pipeline from its current status: %w", shared.ErrPreconditionFailed)
	// ErrMemberBusy rejects members already held by another open request.
	ErrMemberBusy = fmt.Errorf("requests: asset already belongs to an open request: %w", shared.ErrPreconditionFailed)
	// ErrSameBranch rejects transfer members already at the target branch.
	ErrSameBranch = fmt.Errorf("requests: asset is already at the target branch: %w", shared.ErrPreconditionFailed)
	// ErrReasonRequired rejects write-off requests without a reason.
	ErrReasonRequired = fmt.Errorf("requests: write-off reason required: %w", shared.ErrPreconditionFailed)
	// ErrNotPending rejects decisions on settled requests.
	ErrNotPending = fmt.Errorf("requests: request is not pending: %w", shared.ErrInvalidTransition)
)
