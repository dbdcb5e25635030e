package auth

import (
	"time"

	"github.com/patrimon/patrimon/internal/shared"
)

// User is the credential-bearing account record.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         shared.Role
	GroupID      int64
	BranchIDs    []int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor flattens the account into the context principal.
func (u *User) Actor() shared.Actor {
	return shared.Actor{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		GroupID:  u.GroupID,
		Branches: u.BranchIDs,
	}
}
