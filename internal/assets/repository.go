package assets

import "context"

// RepositoryPort abstracts asset persistence for the service. UpdateAsset
// applies an optimistic version check: it fails with
// shared.ErrConcurrentUpdate when the stored version no longer matches.
type RepositoryPort interface {
	GetAsset(ctx context.Context, id int64) (Asset, error)
	InsertAsset(ctx context.Context, asset Asset) (Asset, error)
	UpdateAsset(ctx context.Context, asset Asset) (Asset, error)
	ListAssets(ctx context.Context, filter ListFilter) ([]Asset, error)
	FindByFixedAssetNumber(ctx context.Context, number string) (Asset, error)
}

// BranchPort resolves branch names for audit messages.
type BranchPort interface {
	BranchName(ctx context.Context, id int64) (string, error)
}
