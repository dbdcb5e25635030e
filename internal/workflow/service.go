package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/patrimon/patrimon/internal/shared"
)

// RuleInput carries administrator input for creating or updating a rule.
// Exactly one of UserID, GroupID or Role must be set.
type RuleInput struct {
	CategoryID int64
	Action     ActionType
	StepOrder  int
	UserID     int64
	GroupID    int64
	Role       shared.Role
}

func (in RuleInput) target() (ApprovalTarget, error) {
	set := 0
	var target ApprovalTarget
	if in.UserID != 0 {
		set++
		target = TargetUser(in.UserID)
	}
	if in.GroupID != 0 {
		set++
		target = TargetGroup(in.GroupID)
	}
	if in.Role != "" {
		set++
		target = TargetRole(in.Role)
	}
	if set != 1 {
		return ApprovalTarget{}, ErrInvalidTarget
	}
	return target, target.Validate()
}

// Service exposes administrator maintenance of workflow rules. The lifecycle
// engines only ever read rules; every mutation below is audited.
type Service struct {
	repo  AdminRulePort
	audit shared.AuditSink
}

// NewService builds Service.
func NewService(repo AdminRulePort, audit shared.AuditSink) *Service {
	return &Service{repo: repo, audit: audit}
}

// ListRules returns rules, optionally scoped to a category.
func (s *Service) ListRules(ctx context.Context, categoryID int64) ([]Rule, error) {
	return s.repo.ListAllRules(ctx, categoryID)
}

// CreateRule appends or inserts a rule step.
func (s *Service) CreateRule(ctx context.Context, actor shared.Actor, in RuleInput) (Rule, error) {
	if in.CategoryID == 0 || !in.Action.Valid() {
		return Rule{}, fmt.Errorf("workflow: category and action required: %w", ErrInvalidTarget)
	}
	target, err := in.target()
	if err != nil {
		return Rule{}, err
	}
	if in.StepOrder < 1 {
		existing, err := s.repo.ListRules(ctx, in.CategoryID, in.Action)
		if err != nil {
			return Rule{}, err
		}
		in.StepOrder = len(existing) + 1
	}
	rule, err := s.repo.InsertRule(ctx, Rule{
		CategoryID: in.CategoryID,
		Action:     in.Action,
		StepOrder:  in.StepOrder,
		Target:     target,
	})
	if err != nil {
		return Rule{}, err
	}
	s.recordAudit(ctx, actor, "workflow_rule.create", rule.ID, nil, rule)
	return rule, nil
}

// UpdateRule rewrites a rule's target and step order.
func (s *Service) UpdateRule(ctx context.Context, actor shared.Actor, id int64, in RuleInput) (Rule, error) {
	current, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	target, err := in.target()
	if err != nil {
		return Rule{}, err
	}
	next := current
	next.Target = target
	if in.StepOrder > 0 {
		next.StepOrder = in.StepOrder
	}
	updated, err := s.repo.UpdateRule(ctx, next)
	if err != nil {
		return Rule{}, err
	}
	s.recordAudit(ctx, actor, "workflow_rule.update", id, current, updated)
	return updated, nil
}

// DeleteRule removes a rule step.
func (s *Service) DeleteRule(ctx context.Context, actor shared.Actor, id int64) error {
	current, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "workflow_rule.delete", id, current, nil)
	return nil
}

// Reorder renumbers a whole category+action pipeline to the given id order.
// The order must cover the pipeline exactly: a partial list would leave the
// omitted rules unnumbered and scramble which rule gates each step.
func (s *Service) Reorder(ctx context.Context, actor shared.Actor, categoryID int64, action ActionType, orderedIDs []int64) error {
	if categoryID == 0 || !action.Valid() || len(orderedIDs) == 0 {
		return fmt.Errorf("workflow: category, action and rule order required: %w", ErrInvalidTarget)
	}
	rules, err := s.repo.ListRules(ctx, categoryID, action)
	if err != nil {
		return err
	}
	if len(orderedIDs) != len(rules) {
		return ErrIncompleteReorder
	}
	existing := make(map[int64]bool, len(rules))
	for _, rule := range rules {
		existing[rule.ID] = true
	}
	seen := make(map[int64]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !existing[id] {
			return ErrRuleNotFound
		}
		if seen[id] {
			return ErrIncompleteReorder
		}
		seen[id] = true
	}
	if err := s.repo.ReorderRules(ctx, categoryID, action, orderedIDs); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "workflow_rule.reorder", categoryID, nil, orderedIDs)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, refID int64, before, after any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "approval_rules",
		EntityID: strconv.FormatInt(refID, 10),
		Meta:     shared.Diff(before, after),
	})
}
