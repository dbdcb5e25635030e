package directory

import (
	"errors"
	"time"

	"github.com/patrimon/patrimon/internal/shared"
)

// User is a directory account as seen by administrators and the resolver.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      shared.Role
	GroupID   int64
	BranchIDs []int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Group is an admin-managed named set of users.
type Group struct {
	ID          int64
	Name        string
	Description string
	MemberCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var (
	// ErrEmailTaken indicates a duplicate account email.
	ErrEmailTaken = errors.New("directory: email already registered")
	// ErrGroupNameTaken indicates a duplicate group name.
	ErrGroupNameTaken = errors.New("directory: group name already in use")
)
