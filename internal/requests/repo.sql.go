package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrimon/patrimon/internal/assets"
	"github.com/patrimon/patrimon/internal/platform/db"
	"github.com/patrimon/patrimon/internal/shared"
)

// Repository persists batch requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, request_type, status, requester_id, category_id,
COALESCE(target_branch_id, 0), COALESCE(reason, ''), current_step, version, created_at, updated_at`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	var reqType, status string
	err := row.Scan(&req.ID, &reqType, &status, &req.RequesterID, &req.CategoryID,
		&req.TargetBranchID, &req.Reason, &req.CurrentStep, &req.Version, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, err
	}
	req.Type = Type(reqType)
	req.Status = Status(status)
	return req, nil
}

// GetRequest fetches one request with its member asset ids.
func (r *Repository) GetRequest(ctx context.Context, id int64) (Request, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, shared.ErrNotFound
		}
		return Request{}, err
	}
	req.AssetIDs, err = r.memberIDs(ctx, req.ID)
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

func (r *Repository) memberIDs(ctx context.Context, requestID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT asset_id FROM request_assets WHERE request_id=$1 ORDER BY asset_id`, requestID)
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

// ListRequests returns requests matching the filter, newest first.
func (r *Repository) ListRequests(ctx context.Context, filter ListFilter) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	args := make([]any, 0, 4)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.RequesterID != 0 {
		query += ` AND requester_id=` + next(filter.RequesterID)
	}
	if filter.Status != "" {
		query += ` AND status=` + next(string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND request_type=` + next(string(filter.Type))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ` + next(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + next(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].AssetIDs, err = r.memberIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CreateWithMembers inserts the request and moves every member into its
// pending status as one transaction. Member rows are locked before validate
// runs so their status cannot shift under the check.
func (r *Repository) CreateWithMembers(ctx context.Context, memberIDs []int64, validate func([]assets.Asset) (Request, error)) (Request, error) {
	var created Request
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		members, err := lockAssets(ctx, tx, memberIDs)
		if err != nil {
			return err
		}
		req, err := validate(members)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `INSERT INTO requests
(request_type, status, requester_id, category_id, target_branch_id, reason, current_step, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, ''), $7, 1, NOW(), NOW())
RETURNING `+requestColumns,
			string(req.Type), string(req.Status), req.RequesterID, req.CategoryID,
			req.TargetBranchID, req.Reason, req.CurrentStep)
		created, err = scanRequest(row)
		if err != nil {
			return err
		}

		pending := req.Type.PendingStatus()
		for _, member := range members {
			if _, err := tx.Exec(ctx,
				`INSERT INTO request_assets (request_id, asset_id) VALUES ($1, $2)`,
				created.ID, member.ID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE assets SET
status=$2, approval_step=1, request_id=$3, transfer_branch_id=NULLIF($4, 0),
write_off_reason=NULLIF($5, ''), version=version+1, updated_at=NOW()
WHERE id=$1`,
				member.ID, string(pending), created.ID, req.TargetBranchID, req.Reason); err != nil {
				return err
			}
			created.AssetIDs = append(created.AssetIDs, member.ID)
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return created, nil
}

func lockAssets(ctx context.Context, tx pgx.Tx, ids []int64) ([]assets.Asset, error) {
	rows, err := tx.Query(ctx, `SELECT id, category_id, branch_id, COALESCE(request_id, 0), status
FROM assets WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []assets.Asset
	for rows.Next() {
		var a assets.Asset
		var status string
		if err := rows.Scan(&a.ID, &a.CategoryID, &a.BranchID, &a.RequestID, &status); err != nil {
			return nil, err
		}
		a.Status = assets.Status(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(ids) {
		return nil, fmt.Errorf("requests: %d of %d assets found: %w", len(out), len(ids), shared.ErrNotFound)
	}
	return out, nil
}

// AdvanceStep bumps the step counter with an optimistic version check.
func (r *Repository) AdvanceStep(ctx context.Context, req Request) (Request, error) {
	row := r.pool.QueryRow(ctx, `UPDATE requests SET
current_step=$2, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$3
RETURNING `+requestColumns,
		req.ID, req.CurrentStep, req.Version)
	updated, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, r.staleOrMissing(ctx, req.ID)
		}
		return Request{}, err
	}
	updated.AssetIDs = req.AssetIDs
	return updated, nil
}

// Conclude settles the request and rewrites every member in one
// transaction, guarded by the request's version.
func (r *Repository) Conclude(ctx context.Context, req Request, status Status, member MemberUpdate) (Request, error) {
	var concluded Request
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE requests SET
status=$2, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$3
RETURNING `+requestColumns,
			req.ID, string(status), req.Version)
		var err error
		concluded, err = scanRequest(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.staleOrMissing(ctx, req.ID)
			}
			return err
		}
		concluded.AssetIDs = req.AssetIDs

		query := `UPDATE assets SET status=$2, approval_step=1, version=version+1, updated_at=NOW()`
		if member.ClearTransfer {
			query += `, transfer_branch_id=NULL`
		}
		if member.ClearReason {
			query += `, write_off_reason=NULL`
		}
		if member.DetachRequest {
			query += `, request_id=NULL`
		}
		query += ` WHERE request_id=$1`
		_, err = tx.Exec(ctx, query, req.ID, string(member.Status))
		return err
	})
	if err != nil {
		return Request{}, err
	}
	return concluded, nil
}

// staleOrMissing tells a vanished row apart from a lost version race.
func (r *Repository) staleOrMissing(ctx context.Context, id int64) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM requests WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrentUpdate
}
