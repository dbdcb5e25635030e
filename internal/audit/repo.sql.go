package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLRepository reads audit_logs from PostgreSQL.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewSQLRepository constructs a SQLRepository.
func NewSQLRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

// TimelineWindow returns one window of audit entries, newest first. Actor
// names are joined in so readers need no directory lookup.
func (r *SQLRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	query := `SELECT a.id, a.actor_id, COALESCE(u.name, ''), a.action, a.entity, a.entity_id,
COALESCE(a.meta, '{}'), a.occurred_at
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE 1=1`
	args := make([]any, 0, 8)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.Entity != "" {
		query += ` AND a.entity=` + next(filters.Entity)
	}
	if filters.EntityID != "" {
		query += ` AND a.entity_id=` + next(filters.EntityID)
	}
	if filters.ActorID != 0 {
		query += ` AND a.actor_id=` + next(filters.ActorID)
	}
	if filters.Action != "" {
		query += ` AND a.action ILIKE ` + next("%"+filters.Action+"%")
	}
	if !filters.From.IsZero() {
		query += ` AND a.occurred_at >= ` + next(filters.From)
	}
	if !filters.To.IsZero() {
		query += ` AND a.occurred_at <= ` + next(filters.To)
	}
	query += ` ORDER BY a.occurred_at DESC, a.id DESC LIMIT ` + next(limit)
	if offset > 0 {
		query += ` OFFSET ` + next(offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.ID, &row.ActorID, &row.ActorName, &row.Action,
			&row.Entity, &row.EntityID, &meta, &row.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &row.Meta)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
