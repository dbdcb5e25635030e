package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrimon/patrimon/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListBranches returns all branches.
func (r *Repository) ListBranches(ctx context.Context) ([]Branch, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(address, ''), created_at, updated_at FROM branches ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var branches []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// GetBranch fetches one branch.
func (r *Repository) GetBranch(ctx context.Context, id int64) (Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(address, ''), created_at, updated_at FROM branches WHERE id=$1`, id).
		Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, shared.ErrNotFound
		}
		return Branch{}, err
	}
	return b, nil
}

// InsertBranch creates a branch.
func (r *Repository) InsertBranch(ctx context.Context, name, address string) (Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `INSERT INTO branches (name, address, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
RETURNING id, name, COALESCE(address, ''), created_at, updated_at`, name, address).
		Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Branch{}, ErrNameTaken
		}
		return Branch{}, err
	}
	return b, nil
}

// ListCategories returns all categories.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(depreciation_months, 0), created_at, updated_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.DepreciationMonths, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategory fetches one category.
func (r *Repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(depreciation_months, 0), created_at, updated_at FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.DepreciationMonths, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, shared.ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}

// InsertCategory creates a category.
func (r *Repository) InsertCategory(ctx context.Context, name string, depreciationMonths int) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, depreciation_months, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
RETURNING id, name, COALESCE(depreciation_months, 0), created_at, updated_at`, name, depreciationMonths).
		Scan(&c.ID, &c.Name, &c.DepreciationMonths, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Category{}, ErrNameTaken
		}
		return Category{}, err
	}
	return c, nil
}

// UpdateCategory rewrites category fields.
func (r *Repository) UpdateCategory(ctx context.Context, c Category) (Category, error) {
	var updated Category
	err := r.pool.QueryRow(ctx, `UPDATE categories SET name=$2, depreciation_months=$3, updated_at=NOW() WHERE id=$1
RETURNING id, name, COALESCE(depreciation_months, 0), created_at, updated_at`, c.ID, c.Name, c.DepreciationMonths).
		Scan(&updated.ID, &updated.Name, &updated.DepreciationMonths, &updated.CreatedAt, &updated.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, shared.ErrNotFound
		}
		return Category{}, err
	}
	return updated, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
