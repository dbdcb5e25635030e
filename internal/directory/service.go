package directory

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
)

// RepositoryPort abstracts directory persistence for the service.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	InsertUser(ctx context.Context, user User, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	UsersByRole(ctx context.Context, roles []string) ([]User, error)
	UsersByGroup(ctx context.Context, groupID int64) ([]User, error)
	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	InsertGroup(ctx context.Context, name, description string) (Group, error)
	DeleteGroup(ctx context.Context, id int64) error
}

// Hasher provisions password hashes for new accounts.
type Hasher func(password string) (string, error)

// Service handles directory business logic and implements the resolver's
// lookup surface (workflow.DirectoryPort).
type Service struct {
	repo   RepositoryPort
	hasher Hasher
	audit  shared.AuditSink
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, hasher Hasher, audit shared.AuditSink) *Service {
	return &Service{repo: repo, hasher: hasher, audit: audit}
}

// ListUsers returns all accounts.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUserInput carries admin input for provisioning an account.
type CreateUserInput struct {
	Email     string
	Name      string
	Password  string
	Role      shared.Role
	GroupID   int64
	BranchIDs []int64
}

// CreateUser provisions a new account.
func (s *Service) CreateUser(ctx context.Context, actor shared.Actor, in CreateUserInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" || in.Name == "" {
		return User{}, errors.New("directory: email and name required")
	}
	if !in.Role.Valid() {
		return User{}, errors.New("directory: unknown role")
	}
	hash, err := s.hasher(in.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.InsertUser(ctx, User{
		Email:     in.Email,
		Name:      in.Name,
		Role:      in.Role,
		GroupID:   in.GroupID,
		BranchIDs: in.BranchIDs,
	}, hash)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor, "user.create", user.ID, nil, user)
	return user, nil
}

// UpdateUserInput carries mutable account fields.
type UpdateUserInput struct {
	Name      string
	Role      shared.Role
	GroupID   int64
	BranchIDs []int64
	IsActive  bool
}

// UpdateUser rewrites account fields.
func (s *Service) UpdateUser(ctx context.Context, actor shared.Actor, id int64, in UpdateUserInput) (User, error) {
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !in.Role.Valid() {
		return User{}, errors.New("directory: unknown role")
	}
	next := current
	next.Name = strings.TrimSpace(in.Name)
	next.Role = in.Role
	next.GroupID = in.GroupID
	next.BranchIDs = in.BranchIDs
	next.IsActive = in.IsActive
	updated, err := s.repo.UpdateUser(ctx, next)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor, "user.update", id, current, updated)
	return updated, nil
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// CreateGroup creates a named user set.
func (s *Service) CreateGroup(ctx context.Context, actor shared.Actor, name, description string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, errors.New("directory: group name required")
	}
	group, err := s.repo.InsertGroup(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Group{}, err
	}
	s.recordAudit(ctx, actor, "group.create", group.ID, nil, group)
	return group, nil
}

// DeleteGroup removes a group and detaches its members.
func (s *Service) DeleteGroup(ctx context.Context, actor shared.Actor, id int64) error {
	current, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "group.delete", id, current, nil)
	return nil
}

// GroupMembers returns the active members of a group.
func (s *Service) GroupMembers(ctx context.Context, groupID int64) ([]User, error) {
	return s.repo.UsersByGroup(ctx, groupID)
}

// ResolveUser implements workflow.DirectoryPort for a single named user.
// Inactive accounts resolve to not-found so stale rules fall back.
func (s *Service) ResolveUser(ctx context.Context, userID int64) (workflow.Approver, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return workflow.Approver{}, err
	}
	if !user.IsActive {
		return workflow.Approver{}, shared.ErrNotFound
	}
	return toApprover(user), nil
}

// ResolveGroup implements workflow.DirectoryPort for group targets.
func (s *Service) ResolveGroup(ctx context.Context, groupID int64) ([]workflow.Approver, error) {
	members, err := s.repo.UsersByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return toApprovers(members), nil
}

// ResolveRoles implements workflow.DirectoryPort for role targets.
func (s *Service) ResolveRoles(ctx context.Context, roles ...shared.Role) ([]workflow.Approver, error) {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	users, err := s.repo.UsersByRole(ctx, names)
	if err != nil {
		return nil, err
	}
	return toApprovers(users), nil
}

func toApprover(user User) workflow.Approver {
	return workflow.Approver{ID: user.ID, Name: user.Name, Email: user.Email}
}

func toApprovers(users []User) []workflow.Approver {
	approvers := make([]workflow.Approver, 0, len(users))
	for _, user := range users {
		approvers = append(approvers, toApprover(user))
	}
	return approvers
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, refID int64, before, after any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "directory",
		EntityID: strconv.FormatInt(refID, 10),
		Meta:     shared.Diff(before, after),
	})
}
