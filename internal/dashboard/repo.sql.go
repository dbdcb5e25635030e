package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLStats aggregates custody figures from PostgreSQL.
type SQLStats struct {
	pool *pgxpool.Pool
}

// NewSQLStats constructs SQLStats.
func NewSQLStats(pool *pgxpool.Pool) *SQLStats {
	return &SQLStats{pool: pool}
}

// CountsByStatus groups the visible assets by status.
func (s *SQLStats) CountsByStatus(ctx context.Context, branches []int64) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM assets`
	args := []any{}
	if len(branches) > 0 {
		query += ` WHERE branch_id = ANY($1)`
		args = append(args, branches)
	}
	query += ` GROUP BY status`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}

// TotalValue sums the value of assets still in custody.
func (s *SQLStats) TotalValue(ctx context.Context, branches []int64) (float64, error) {
	query := `SELECT COALESCE(SUM(value), 0) FROM assets WHERE status <> 'WRITTEN_OFF'`
	args := []any{}
	if len(branches) > 0 {
		query += ` AND branch_id = ANY($1)`
		args = append(args, branches)
	}
	var total float64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}

// OpenRequests counts batch requests still awaiting a decision.
func (s *SQLStats) OpenRequests(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM requests WHERE status='PENDING'`).Scan(&count)
	return count, err
}
