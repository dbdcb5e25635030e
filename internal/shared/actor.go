package shared

// Role is the closed set of authorization roles.
type Role string

const (
	// RoleAdmin has unrestricted access and supersedes approvers.
	RoleAdmin Role = "ADMIN"
	// RoleApprover may decide approval steps.
	RoleApprover Role = "APPROVER"
	// RoleOperator manages assets within its branch scope.
	RoleOperator Role = "OPERATOR"
	// RoleAuditor has read-only access across branches.
	RoleAuditor Role = "AUDITOR"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleApprover, RoleOperator, RoleAuditor:
		return true
	}
	return false
}

// Actor describes the authenticated principal performing an operation.
type Actor struct {
	ID       int64
	Name     string
	Email    string
	Role     Role
	GroupID  int64
	Branches []int64
}

// IsGlobal reports whether the actor sees every branch.
func (a Actor) IsGlobal() bool {
	switch a.Role {
	case RoleAdmin, RoleApprover, RoleAuditor:
		return true
	}
	return false
}

// CanAccessBranch reports whether the actor may act on the given branch.
func (a Actor) CanAccessBranch(branchID int64) bool {
	if a.IsGlobal() {
		return true
	}
	for _, id := range a.Branches {
		if id == branchID {
			return true
		}
	}
	return false
}
