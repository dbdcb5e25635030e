package requests

import (
	"context"

	"github.com/patrimon/patrimon/internal/assets"
)

// MemberUpdate describes what a concluded request does to each member
// asset, applied in the same transaction as the request status change.
type MemberUpdate struct {
	Status        assets.Status
	ClearTransfer bool
	ClearReason   bool
	DetachRequest bool
}

// RepositoryPort is the storage contract for batch requests. The mutating
// operations are transactional units: a request row never changes without
// its members changing with it, and vice versa.
type RepositoryPort interface {
	GetRequest(ctx context.Context, id int64) (Request, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]Request, error)

	// CreateWithMembers locks the member assets, runs validate over their
	// current rows, then inserts the request validate returned and flips
	// every member into its pending status in one transaction. A
	// validation error aborts the whole unit.
	CreateWithMembers(ctx context.Context, memberIDs []int64, validate func([]assets.Asset) (Request, error)) (Request, error)

	// AdvanceStep bumps the request's step counter, guarded by the
	// request's version.
	AdvanceStep(ctx context.Context, req Request) (Request, error)

	// Conclude settles the request and applies the member update to every
	// member in one transaction, guarded by the request's version.
	Conclude(ctx context.Context, req Request, status Status, member MemberUpdate) (Request, error)
}
