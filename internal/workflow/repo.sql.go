package workflow

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrimon/patrimon/internal/shared"
)

// Repository provides PostgreSQL backed persistence for approval rules.
// The three nullable target columns exist only at the storage edge; rows are
// folded into ApprovalTarget on scan so the engine never sees them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, category_id, action_type, step_order, required_user_id, required_group_id, required_role, created_at, updated_at`

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	var action string
	var userID, groupID *int64
	var role *string
	if err := row.Scan(&rule.ID, &rule.CategoryID, &action, &rule.StepOrder, &userID, &groupID, &role, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return Rule{}, err
	}
	rule.Action = ActionType(action)
	switch {
	case userID != nil:
		rule.Target = TargetUser(*userID)
	case groupID != nil:
		rule.Target = TargetGroup(*groupID)
	case role != nil:
		rule.Target = TargetRole(shared.Role(*role))
	}
	return rule, nil
}

func targetColumns(t ApprovalTarget) (userID, groupID *int64, role *string) {
	switch t.Kind() {
	case TargetKindUser:
		id := t.UserID()
		userID = &id
	case TargetKindGroup:
		id := t.GroupID()
		groupID = &id
	case TargetKindRole:
		r := string(t.Role())
		role = &r
	}
	return userID, groupID, role
}

// ListRules returns the ordered pipeline for one category and action.
func (r *Repository) ListRules(ctx context.Context, categoryID int64, action ActionType) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM approval_rules
WHERE category_id=$1 AND action_type=$2 ORDER BY step_order`, categoryID, string(action))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// ListAllRules returns every rule, optionally filtered by category.
func (r *Repository) ListAllRules(ctx context.Context, categoryID int64) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules ORDER BY category_id, action_type, step_order`
	args := []any{}
	if categoryID != 0 {
		query = `SELECT ` + ruleColumns + ` FROM approval_rules WHERE category_id=$1 ORDER BY action_type, step_order`
		args = append(args, categoryID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// GetRule fetches one rule by id.
func (r *Repository) GetRule(ctx context.Context, id int64) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM approval_rules WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrRuleNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

// InsertRule persists a new rule.
func (r *Repository) InsertRule(ctx context.Context, rule Rule) (Rule, error) {
	userID, groupID, role := targetColumns(rule.Target)
	row := r.pool.QueryRow(ctx, `INSERT INTO approval_rules
(category_id, action_type, step_order, required_user_id, required_group_id, required_role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING `+ruleColumns, rule.CategoryID, string(rule.Action), rule.StepOrder, userID, groupID, role)
	inserted, err := scanRule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Rule{}, ErrStepOrderTaken
		}
		return Rule{}, err
	}
	return inserted, nil
}

// UpdateRule rewrites a rule's target and step order.
func (r *Repository) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	userID, groupID, role := targetColumns(rule.Target)
	row := r.pool.QueryRow(ctx, `UPDATE approval_rules
SET step_order=$2, required_user_id=$3, required_group_id=$4, required_role=$5, updated_at=NOW()
WHERE id=$1
RETURNING `+ruleColumns, rule.ID, rule.StepOrder, userID, groupID, role)
	updated, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrRuleNotFound
		}
		if isUniqueViolation(err) {
			return Rule{}, ErrStepOrderTaken
		}
		return Rule{}, err
	}
	return updated, nil
}

// DeleteRule removes a rule by id.
func (r *Repository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM approval_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ReorderRules renumbers the pipeline for one category and action to match
// the given id order. Runs in one transaction so readers never observe a
// partially renumbered pipeline.
func (r *Repository) ReorderRules(ctx context.Context, categoryID int64, action ActionType, orderedIDs []int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Park the set on negative orders first so the unique index never trips
	// mid-renumber.
	if _, err := tx.Exec(ctx, `UPDATE approval_rules SET step_order = -step_order
WHERE category_id=$1 AND action_type=$2`, categoryID, string(action)); err != nil {
		return err
	}
	for i, id := range orderedIDs {
		tag, err := tx.Exec(ctx, `UPDATE approval_rules SET step_order=$1, updated_at=NOW()
WHERE id=$2 AND category_id=$3 AND action_type=$4`, i+1, id, categoryID, string(action))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrRuleNotFound
		}
	}

	// A rule left parked means orderedIDs did not cover the set, e.g. a rule
	// was inserted after the caller read the pipeline. Fail the whole
	// transaction rather than commit a scrambled order.
	var parked int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM approval_rules
WHERE category_id=$1 AND action_type=$2 AND step_order < 0`, categoryID, string(action)).Scan(&parked); err != nil {
		return err
	}
	if parked > 0 {
		return ErrIncompleteReorder
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
