package assets

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
)

// Status enumerates the asset lifecycle states.
type Status string

const (
	// StatusPending awaits the creation approval pipeline.
	StatusPending Status = "PENDING"
	// StatusApproved is the baseline operational state.
	StatusApproved Status = "APPROVED"
	// StatusRejected marks a declined creation; editable for resubmission.
	StatusRejected Status = "REJECTED"
	// StatusTransferPending awaits the transfer approval pipeline.
	StatusTransferPending Status = "TRANSFER_PENDING"
	// StatusInTransit marks an approved transfer awaiting receipt at the
	// target branch. Custody stays with the source branch until receipt.
	StatusInTransit Status = "IN_TRANSIT"
	// StatusInStock marks an asset stored at its branch.
	StatusInStock Status = "IN_STOCK"
	// StatusMaintenance marks an asset under maintenance.
	StatusMaintenance Status = "MAINTENANCE"
	// StatusWriteOffPending awaits the write-off approval pipeline.
	StatusWriteOffPending Status = "WRITE_OFF_PENDING"
	// StatusReadyForWriteOff marks an approved write-off awaiting physical
	// disposal.
	StatusReadyForWriteOff Status = "READY_FOR_WRITE_OFF"
	// StatusWrittenOff is terminal.
	StatusWrittenOff Status = "WRITTEN_OFF"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusTransferPending,
		StatusInTransit, StatusInStock, StatusMaintenance, StatusWriteOffPending,
		StatusReadyForWriteOff, StatusWrittenOff:
		return true
	}
	return false
}

// Operational reports whether the asset is in day-to-day custody, i.e. not
// held by any approval pipeline and not disposed.
func (s Status) Operational() bool {
	switch s {
	case StatusApproved, StatusMaintenance, StatusInStock, StatusInTransit:
		return true
	}
	return false
}

// PendingApproval reports whether the status is gated by an approval
// pipeline, and which action type governs it.
func (s Status) PendingApproval() (workflow.ActionType, bool) {
	switch s {
	case StatusPending:
		return workflow.ActionCreate, true
	case StatusTransferPending:
		return workflow.ActionTransfer, true
	case StatusWriteOffPending:
		return workflow.ActionWriteOff, true
	}
	return "", false
}

// canTransition is the transition table. It covers status reachability only;
// actor and branch guards live in the service.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusRejected:
		return to == StatusPending
	case StatusApproved:
		return to == StatusMaintenance || to == StatusInStock ||
			to == StatusTransferPending || to == StatusWriteOffPending
	case StatusMaintenance:
		return to == StatusApproved || to == StatusInStock ||
			to == StatusTransferPending || to == StatusWriteOffPending
	case StatusInStock:
		return to == StatusApproved || to == StatusMaintenance ||
			to == StatusTransferPending || to == StatusWriteOffPending
	case StatusTransferPending:
		return to == StatusInTransit || to == StatusApproved
	case StatusInTransit:
		return to == StatusInStock
	case StatusWriteOffPending:
		return to == StatusWrittenOff || to == StatusReadyForWriteOff || to == StatusApproved
	case StatusReadyForWriteOff:
		return to == StatusWrittenOff
	case StatusWrittenOff:
		return false
	}
	return false
}

// CanTransitionTo reports whether the transition table allows moving from s
// to to. Exposed so batch requests hold their members to the same table as
// per-item decisions.
func (s Status) CanTransitionTo(to Status) bool {
	return canTransition(s, to)
}

// Asset is one tracked physical good.
type Asset struct {
	ID               int64
	Description      string
	CategoryID       int64
	BranchID         int64
	TransferBranchID int64
	ResponsibleID    int64
	RequestID        int64
	Status           Status
	ApprovalStep     int
	Value            float64
	InvoiceNumber    string
	SerialNumber     string
	FixedAssetNumber string
	WriteOffReason   string
	Observations     string
	PurchaseDate     time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Progress locates the asset inside its current approval pipeline.
func (a Asset) Progress(action workflow.ActionType) workflow.Progress {
	step := a.ApprovalStep
	if step < 1 {
		step = 1
	}
	return workflow.Progress{CategoryID: a.CategoryID, Action: action, Step: step}
}

// View is the read-side shape returned by transition entry points: the asset
// plus the approvers resolved for its current step. The approver list is a
// computed value, never stored on the asset.
type View struct {
	Asset
	CurrentApprovers []workflow.Approver
}

// ListFilter narrows asset listings.
type ListFilter struct {
	Status          Status
	CategoryID      int64
	BranchID        int64
	Search          string
	AllowedBranches []int64
	Limit           int
	Offset          int
}

var (
	// ErrManagedByRequest rejects per-item decisions on assets whose
	// pipeline is owned by an open batch request.
	ErrManagedByRequest = fmt.Errorf("asset belongs to an open batch request: %w", shared.ErrInvalidTransition)
	// ErrFixedAssetTaken indicates a duplicate fixed asset number.
	ErrFixedAssetTaken = errors.New("assets: fixed asset number already registered")
)
