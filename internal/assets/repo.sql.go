package assets

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrimon/patrimon/internal/shared"
)

// Repository persists assets in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assetColumns = `id, description, category_id, branch_id, COALESCE(transfer_branch_id, 0),
COALESCE(responsible_id, 0), COALESCE(request_id, 0), status, approval_step, value,
COALESCE(invoice_number, ''), COALESCE(serial_number, ''), COALESCE(fixed_asset_number, ''),
COALESCE(write_off_reason, ''), COALESCE(observations, ''), purchase_date, version, created_at, updated_at`

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	var status string
	err := row.Scan(&a.ID, &a.Description, &a.CategoryID, &a.BranchID, &a.TransferBranchID,
		&a.ResponsibleID, &a.RequestID, &status, &a.ApprovalStep, &a.Value,
		&a.InvoiceNumber, &a.SerialNumber, &a.FixedAssetNumber,
		&a.WriteOffReason, &a.Observations, &a.PurchaseDate, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Asset{}, err
	}
	a.Status = Status(status)
	return a, nil
}

// GetAsset fetches one asset.
func (r *Repository) GetAsset(ctx context.Context, id int64) (Asset, error) {
	asset, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, shared.ErrNotFound
		}
		return Asset{}, err
	}
	return asset, nil
}

// InsertAsset creates an asset row at version 1.
func (r *Repository) InsertAsset(ctx context.Context, asset Asset) (Asset, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO assets
(description, category_id, branch_id, responsible_id, status, approval_step, value,
 invoice_number, serial_number, fixed_asset_number, observations, purchase_date, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, 1, NOW(), NOW())
RETURNING `+assetColumns,
		asset.Description, asset.CategoryID, asset.BranchID, nullableID(asset.ResponsibleID),
		string(asset.Status), asset.ApprovalStep, asset.Value,
		asset.InvoiceNumber, asset.SerialNumber, asset.FixedAssetNumber,
		asset.Observations, asset.PurchaseDate)
	inserted, err := scanAsset(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Asset{}, ErrFixedAssetTaken
		}
		return Asset{}, err
	}
	return inserted, nil
}

// UpdateAsset rewrites mutable fields with an optimistic version check.
func (r *Repository) UpdateAsset(ctx context.Context, asset Asset) (Asset, error) {
	row := r.pool.QueryRow(ctx, `UPDATE assets SET
description=$2, category_id=$3, branch_id=$4, transfer_branch_id=$5, responsible_id=$6,
request_id=$7, status=$8, approval_step=$9, value=$10, invoice_number=$11,
serial_number=NULLIF($12, ''), fixed_asset_number=NULLIF($13, ''), write_off_reason=NULLIF($14, ''),
observations=$15, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$16
RETURNING `+assetColumns,
		asset.ID, asset.Description, asset.CategoryID, asset.BranchID,
		nullableID(asset.TransferBranchID), nullableID(asset.ResponsibleID), nullableID(asset.RequestID),
		string(asset.Status), asset.ApprovalStep, asset.Value, asset.InvoiceNumber,
		asset.SerialNumber, asset.FixedAssetNumber, asset.WriteOffReason,
		asset.Observations, asset.Version)
	updated, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing row from a stale version.
			if _, getErr := r.GetAsset(ctx, asset.ID); errors.Is(getErr, shared.ErrNotFound) {
				return Asset{}, shared.ErrNotFound
			}
			return Asset{}, shared.ErrConcurrentUpdate
		}
		if isUniqueViolation(err) {
			return Asset{}, ErrFixedAssetTaken
		}
		return Asset{}, err
	}
	return updated, nil
}

// ListAssets returns assets matching the filter.
func (r *Repository) ListAssets(ctx context.Context, filter ListFilter) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE 1=1`
	args := []any{}
	argN := 0
	next := func(v any) string {
		argN++
		args = append(args, v)
		return "$" + strconv.Itoa(argN)
	}
	if filter.Status != "" {
		query += ` AND status=` + next(string(filter.Status))
	}
	if filter.CategoryID != 0 {
		query += ` AND category_id=` + next(filter.CategoryID)
	}
	if filter.BranchID != 0 {
		query += ` AND branch_id=` + next(filter.BranchID)
	}
	if len(filter.AllowedBranches) > 0 {
		query += ` AND branch_id = ANY(` + next(filter.AllowedBranches) + `)`
	}
	if filter.Search != "" {
		ph := next("%" + filter.Search + "%")
		query += ` AND (description ILIKE ` + ph + ` OR serial_number ILIKE ` + ph + ` OR invoice_number ILIKE ` + ph + `)`
	}
	query += ` ORDER BY id DESC`
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` LIMIT ` + next(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + next(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, asset)
	}
	return result, rows.Err()
}

// FindByFixedAssetNumber looks up an asset by its fixed asset tag.
func (r *Repository) FindByFixedAssetNumber(ctx context.Context, number string) (Asset, error) {
	asset, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE fixed_asset_number=$1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, shared.ErrNotFound
		}
		return Asset{}, err
	}
	return asset, nil
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
