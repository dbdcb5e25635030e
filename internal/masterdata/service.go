package masterdata

import (
	"context"
	"errors"
	"strings"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	ListBranches(ctx context.Context) ([]Branch, error)
	GetBranch(ctx context.Context, id int64) (Branch, error)
	InsertBranch(ctx context.Context, name, address string) (Branch, error)
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	InsertCategory(ctx context.Context, name string, depreciationMonths int) (Category, error)
	UpdateCategory(ctx context.Context, c Category) (Category, error)
}

// Service handles branch and category management.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListBranches returns all branches.
func (s *Service) ListBranches(ctx context.Context) ([]Branch, error) {
	return s.repo.ListBranches(ctx)
}

// GetBranch returns one branch.
func (s *Service) GetBranch(ctx context.Context, id int64) (Branch, error) {
	return s.repo.GetBranch(ctx, id)
}

// BranchName returns the display name for a branch id.
func (s *Service) BranchName(ctx context.Context, id int64) (string, error) {
	branch, err := s.repo.GetBranch(ctx, id)
	if err != nil {
		return "", err
	}
	return branch.Name, nil
}

// CreateBranch registers a custody location.
func (s *Service) CreateBranch(ctx context.Context, name, address string) (Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Branch{}, errors.New("masterdata: branch name required")
	}
	return s.repo.InsertBranch(ctx, name, strings.TrimSpace(address))
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, id int64) (Category, error) {
	return s.repo.GetCategory(ctx, id)
}

// CreateCategory registers an asset category.
func (s *Service) CreateCategory(ctx context.Context, name string, depreciationMonths int) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, errors.New("masterdata: category name required")
	}
	if depreciationMonths < 0 {
		return Category{}, errors.New("masterdata: depreciation months must be >= 0")
	}
	return s.repo.InsertCategory(ctx, name, depreciationMonths)
}

// UpdateCategory rewrites category fields.
func (s *Service) UpdateCategory(ctx context.Context, id int64, name string, depreciationMonths int) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, errors.New("masterdata: category name required")
	}
	if depreciationMonths < 0 {
		return Category{}, errors.New("masterdata: depreciation months must be >= 0")
	}
	return s.repo.UpdateCategory(ctx, Category{ID: id, Name: name, DepreciationMonths: depreciationMonths})
}
