package workflow

import (
	"context"

	"github.com/patrimon/patrimon/internal/shared"
)

// RulePort is the read surface the resolver and coordinator need. Rules may
// be edited concurrently by administrators; callers always see the current
// ordered list, never a snapshot.
type RulePort interface {
	ListRules(ctx context.Context, categoryID int64, action ActionType) ([]Rule, error)
}

// AdminRulePort extends RulePort with administrator maintenance operations.
type AdminRulePort interface {
	RulePort
	ListAllRules(ctx context.Context, categoryID int64) ([]Rule, error)
	GetRule(ctx context.Context, id int64) (Rule, error)
	InsertRule(ctx context.Context, rule Rule) (Rule, error)
	UpdateRule(ctx context.Context, rule Rule) (Rule, error)
	DeleteRule(ctx context.Context, id int64) error
	ReorderRules(ctx context.Context, categoryID int64, action ActionType, orderedIDs []int64) error
}

// DirectoryPort resolves workflow targets into concrete users. Backed by the
// directory package; read-only from the engine's perspective.
type DirectoryPort interface {
	ResolveUser(ctx context.Context, userID int64) (Approver, error)
	ResolveGroup(ctx context.Context, groupID int64) ([]Approver, error)
	ResolveRoles(ctx context.Context, roles ...shared.Role) ([]Approver, error)
}

// SettingsPort exposes the fallback approver group configuration.
type SettingsPort interface {
	FallbackGroupID(ctx context.Context) (int64, error)
}
