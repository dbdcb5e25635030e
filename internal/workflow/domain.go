package workflow

import (
	"errors"
	"time"

	"github.com/patrimon/patrimon/internal/shared"
)

// ActionType enumerates the operations an approval workflow can govern.
type ActionType string

const (
	// ActionCreate gates the registration of a new asset.
	ActionCreate ActionType = "CREATE"
	// ActionTransfer gates inter-branch transfers.
	ActionTransfer ActionType = "TRANSFER"
	// ActionWriteOff gates write-off/disposal.
	ActionWriteOff ActionType = "WRITE_OFF"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionCreate, ActionTransfer, ActionWriteOff:
		return true
	}
	return false
}

// TargetKind discriminates the ApprovalTarget variants.
type TargetKind string

const (
	// TargetKindUser names one specific user.
	TargetKindUser TargetKind = "USER"
	// TargetKindGroup names every member of a group.
	TargetKindGroup TargetKind = "GROUP"
	// TargetKindRole names every holder of a role.
	TargetKindRole TargetKind = "ROLE"
)

// ApprovalTarget names exactly one authorization principal for a rule step.
// Construction through the Target* helpers guarantees a single variant, so
// there is no "clear the other fields" bookkeeping anywhere.
type ApprovalTarget struct {
	kind    TargetKind
	userID  int64
	groupID int64
	role    shared.Role
}

// TargetUser builds a target naming a single user.
func TargetUser(userID int64) ApprovalTarget {
	return ApprovalTarget{kind: TargetKindUser, userID: userID}
}

// TargetGroup builds a target naming a group.
func TargetGroup(groupID int64) ApprovalTarget {
	return ApprovalTarget{kind: TargetKindGroup, groupID: groupID}
}

// TargetRole builds a target naming a role.
func TargetRole(role shared.Role) ApprovalTarget {
	return ApprovalTarget{kind: TargetKindRole, role: role}
}

// Kind returns the variant discriminator.
func (t ApprovalTarget) Kind() TargetKind { return t.kind }

// UserID returns the named user for TargetKindUser targets.
func (t ApprovalTarget) UserID() int64 { return t.userID }

// GroupID returns the named group for TargetKindGroup targets.
func (t ApprovalTarget) GroupID() int64 { return t.groupID }

// Role returns the named role for TargetKindRole targets.
func (t ApprovalTarget) Role() shared.Role { return t.role }

// Validate checks that the target names a usable principal.
func (t ApprovalTarget) Validate() error {
	switch t.kind {
	case TargetKindUser:
		if t.userID == 0 {
			return ErrInvalidTarget
		}
	case TargetKindGroup:
		if t.groupID == 0 {
			return ErrInvalidTarget
		}
	case TargetKindRole:
		if !t.role.Valid() {
			return ErrInvalidTarget
		}
	default:
		return ErrInvalidTarget
	}
	return nil
}

// Rule is one ordered authorization step of an approval pipeline.
type Rule struct {
	ID         int64
	CategoryID int64
	Action     ActionType
	StepOrder  int
	Target     ApprovalTarget
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Progress locates an entity inside its approval pipeline. Assets and batch
// requests both carry one; the resolver and coordinator only ever see this
// value, never the owning entity.
type Progress struct {
	CategoryID int64
	Action     ActionType
	Step       int
}

// Approver is the read-side view of a resolved principal.
type Approver struct {
	ID    int64
	Name  string
	Email string
}

var (
	// ErrInvalidTarget indicates a rule target naming no usable principal.
	ErrInvalidTarget = errors.New("workflow: rule target must name a user, group or role")
	// ErrRuleNotFound indicates a missing rule.
	ErrRuleNotFound = errors.New("workflow: rule not found")
	// ErrStepOrderTaken indicates a duplicate step order within a pipeline.
	ErrStepOrderTaken = errors.New("workflow: step order already in use")
	// ErrIncompleteReorder indicates a reorder that does not list every rule
	// in the pipeline exactly once.
	ErrIncompleteReorder = errors.New("workflow: reorder must list every rule in the pipeline exactly once")
)
