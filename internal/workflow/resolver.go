package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/patrimon/patrimon/internal/shared"
)

// Resolver determines the concrete set of users authorized to act on the
// current step of a pipeline. Resolution never fails into an empty set for
// the caller: stale or missing configuration degrades to the fallback
// approvers so no entity becomes permanently unapprovable.
type Resolver struct {
	rules     RulePort
	directory DirectoryPort
	settings  SettingsPort
	logger    *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(rules RulePort, directory DirectoryPort, settings SettingsPort, logger *slog.Logger) *Resolver {
	return &Resolver{rules: rules, directory: directory, settings: settings, logger: logger}
}

// Approvers resolves the users gating the given progress point.
func (r *Resolver) Approvers(ctx context.Context, p Progress) ([]Approver, error) {
	if p.CategoryID == 0 {
		r.logger.Warn("approver resolution without category, using fallback",
			slog.String("action", string(p.Action)))
		return r.fallback(ctx)
	}

	rules, err := r.rules.ListRules(ctx, p.CategoryID, p.Action)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return r.fallback(ctx)
	}

	step := p.Step
	if step < 1 {
		step = 1
	}
	if step > len(rules) {
		// The pipeline was shortened after this entity advanced past the
		// new end. Fall back so the entity stays approvable.
		r.logger.Warn("approval step beyond configured rules, using fallback",
			slog.Int64("category_id", p.CategoryID),
			slog.String("action", string(p.Action)),
			slog.Int("step", step),
			slog.Int("rule_count", len(rules)))
		return r.fallback(ctx)
	}

	approvers, err := r.resolveTarget(ctx, rules[step-1].Target)
	if err != nil {
		return nil, err
	}
	if len(approvers) == 0 {
		r.logger.Warn("approval rule resolved to no users, using fallback",
			slog.Int64("category_id", p.CategoryID),
			slog.String("action", string(p.Action)),
			slog.Int("step", step))
		return r.fallback(ctx)
	}
	return approvers, nil
}

func (r *Resolver) resolveTarget(ctx context.Context, target ApprovalTarget) ([]Approver, error) {
	switch target.Kind() {
	case TargetKindUser:
		user, err := r.directory.ResolveUser(ctx, target.UserID())
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []Approver{user}, nil
	case TargetKindGroup:
		return r.directory.ResolveGroup(ctx, target.GroupID())
	case TargetKindRole:
		roles := []shared.Role{target.Role()}
		if target.Role() == shared.RoleApprover {
			// Admins supersede approvers.
			roles = append(roles, shared.RoleAdmin)
		}
		return r.directory.ResolveRoles(ctx, roles...)
	default:
		return nil, ErrInvalidTarget
	}
}

// fallback prefers the configured fallback group and degrades to every ADMIN
// user when the setting is absent or the group is empty.
func (r *Resolver) fallback(ctx context.Context) ([]Approver, error) {
	groupID, err := r.settings.FallbackGroupID(ctx)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if groupID != 0 {
		members, err := r.directory.ResolveGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			return members, nil
		}
		r.logger.Warn("fallback approver group is empty, degrading to admins",
			slog.Int64("group_id", groupID))
	}
	return r.directory.ResolveRoles(ctx, shared.RoleAdmin)
}

// Authorized reports whether userID is among the resolved approvers for p.
func (r *Resolver) Authorized(ctx context.Context, p Progress, userID int64) (bool, []Approver, error) {
	approvers, err := r.Approvers(ctx, p)
	if err != nil {
		return false, nil, err
	}
	for _, a := range approvers {
		if a.ID == userID {
			return true, approvers, nil
		}
	}
	return false, approvers, nil
}
