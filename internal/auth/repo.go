package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrimon/patrimon/internal/shared"
)

// Repository loads credential records from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.email, u.name, u.password_hash, u.role, COALESCE(u.group_id, 0), u.is_active, u.created_at, u.updated_at`

func (r *Repository) scanUser(ctx context.Context, row pgx.Row) (*User, error) {
	var user User
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &role, &user.GroupID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.Role = shared.Role(role)

	rows, err := r.pool.Query(ctx, `SELECT branch_id FROM user_branches WHERE user_id=$1 ORDER BY branch_id`, user.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var branchID int64
		if err := rows.Scan(&branchID); err != nil {
			return nil, err
		}
		user.BranchIDs = append(user.BranchIDs, branchID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail loads a user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email=$1`, email)
	return r.scanUser(ctx, row)
}

// FindByID loads a user by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id=$1`, id)
	return r.scanUser(ctx, row)
}
