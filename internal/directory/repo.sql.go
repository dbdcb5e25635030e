package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrimon/patrimon/internal/shared"
)

// Repository provides PostgreSQL backed persistence for users and groups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, COALESCE(group_id, 0), is_active, created_at, updated_at`

func scanUserRow(row pgx.Row) (User, error) {
	var user User
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.GroupID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	user.Role = shared.Role(role)
	return user, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// ListUsers returns all users ordered by name.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// GetUser fetches one active or inactive user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := scanUserRow(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	user.BranchIDs, err = r.userBranches(ctx, id)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *Repository) userBranches(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT branch_id FROM user_branches WHERE user_id=$1 ORDER BY branch_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertUser creates an account. The password hash is provisioned by the
// caller.
func (r *Repository) InsertUser(ctx context.Context, user User, passwordHash string) (User, error) {
	var groupID *int64
	if user.GroupID != 0 {
		groupID = &user.GroupID
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, role, group_id, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
RETURNING `+userColumns, user.Email, user.Name, passwordHash, string(user.Role), groupID)
	inserted, err := scanUserRow(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	if err := r.ReplaceUserBranches(ctx, inserted.ID, user.BranchIDs); err != nil {
		return User{}, err
	}
	inserted.BranchIDs = user.BranchIDs
	return inserted, nil
}

// UpdateUser rewrites mutable account fields.
func (r *Repository) UpdateUser(ctx context.Context, user User) (User, error) {
	var groupID *int64
	if user.GroupID != 0 {
		groupID = &user.GroupID
	}
	row := r.pool.QueryRow(ctx, `UPDATE users SET name=$2, role=$3, group_id=$4, is_active=$5, updated_at=NOW()
WHERE id=$1 RETURNING `+userColumns, user.ID, user.Name, string(user.Role), groupID, user.IsActive)
	updated, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	if err := r.ReplaceUserBranches(ctx, user.ID, user.BranchIDs); err != nil {
		return User{}, err
	}
	updated.BranchIDs = user.BranchIDs
	return updated, nil
}

// ReplaceUserBranches rewrites the branch scope of a user.
func (r *Repository) ReplaceUserBranches(ctx context.Context, userID int64, branchIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM user_branches WHERE user_id=$1`, userID); err != nil {
		return err
	}
	for _, branchID := range branchIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO user_branches (user_id, branch_id) VALUES ($1, $2)`, userID, branchID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UsersByRole returns active users holding any of the given roles.
func (r *Repository) UsersByRole(ctx context.Context, roles []string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users
WHERE is_active AND role = ANY($1) ORDER BY name`, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// UsersByGroup returns active members of a group.
func (r *Repository) UsersByGroup(ctx context.Context, groupID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users
WHERE is_active AND group_id=$1 ORDER BY name`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

const groupColumns = `g.id, g.name, COALESCE(g.description, ''), (SELECT COUNT(*) FROM users u WHERE u.group_id = g.id AND u.is_active), g.created_at, g.updated_at`

func scanGroup(row pgx.Row) (Group, error) {
	var group Group
	if err := row.Scan(&group.ID, &group.Name, &group.Description, &group.MemberCount, &group.CreatedAt, &group.UpdatedAt); err != nil {
		return Group{}, err
	}
	return group, nil
}

// ListGroups returns all groups with member counts.
func (r *Repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM user_groups g ORDER BY g.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// GetGroup fetches one group.
func (r *Repository) GetGroup(ctx context.Context, id int64) (Group, error) {
	group, err := scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM user_groups g WHERE g.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, err
	}
	return group, nil
}

// InsertGroup creates a group.
func (r *Repository) InsertGroup(ctx context.Context, name, description string) (Group, error) {
	group, err := scanGroup(r.pool.QueryRow(ctx, `WITH inserted AS (
INSERT INTO user_groups (name, description, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) RETURNING *
) SELECT `+groupColumns+` FROM inserted g`, name, description))
	if err != nil {
		if isUniqueViolation(err) {
			return Group{}, ErrGroupNameTaken
		}
		return Group{}, err
	}
	return group, nil
}

// DeleteGroup removes a group; members fall back to no group.
func (r *Repository) DeleteGroup(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `UPDATE users SET group_id=NULL WHERE group_id=$1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM user_groups WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
