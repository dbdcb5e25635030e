package requests

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/patrimon/patrimon/internal/assets"
	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
)

// ResolverPort is the approver resolution surface batch decisions need.
type ResolverPort interface {
	Approvers(ctx context.Context, p workflow.Progress) ([]workflow.Approver, error)
	Authorized(ctx context.Context, p workflow.Progress, userID int64) (bool, []workflow.Approver, error)
}

// CoordinatorPort decides step advancement versus finalization.
type CoordinatorPort interface {
	ShouldAdvance(ctx context.Context, p workflow.Progress) (bool, error)
}

// Service drives the batch request lifecycle. A request and its members
// always change together: creation, approval and rejection each resolve to
// one transactional repository call.
type Service struct {
	repo        RepositoryPort
	resolver    ResolverPort
	coordinator CoordinatorPort
	audit       shared.AuditSink
	events      workflow.EventSink
	logger      *slog.Logger
}

// NewService builds the batch request service.
func NewService(repo RepositoryPort, resolver ResolverPort, coordinator CoordinatorPort, audit shared.AuditSink, events workflow.EventSink, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		resolver:    resolver,
		coordinator: coordinator,
		audit:       audit,
		events:      events,
		logger:      logger,
	}
}

// CreateInput carries the fields for opening a batch request.
type CreateInput struct {
	Type           Type
	AssetIDs       []int64
	TargetBranchID int64
	Reason         string
}

// Create opens a batch request. All member checks run against rows locked
// in the same transaction that flips them, so either every member enters
// the pipeline or none does.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (View, error) {
	if actor.Role == shared.RoleAuditor {
		return View{}, fmt.Errorf("auditors cannot open requests: %w", shared.ErrPermissionDenied)
	}
	if !in.Type.Valid() {
		return View{}, fmt.Errorf("unknown request type %q: %w", in.Type, shared.ErrPreconditionFailed)
	}
	if len(in.AssetIDs) == 0 {
		return View{}, ErrNoMembers
	}
	in.Reason = strings.TrimSpace(in.Reason)
	switch in.Type {
	case TypeWriteOff:
		if in.Reason == "" {
			return View{}, ErrReasonRequired
		}
		in.TargetBranchID = 0
	case TypeTransfer:
		if in.TargetBranchID == 0 {
			return View{}, fmt.Errorf("requests: transfer target branch required: %w", shared.ErrPreconditionFailed)
		}
	}

	req, err := s.repo.CreateWithMembers(ctx, in.AssetIDs, func(members []assets.Asset) (Request, error) {
		category := members[0].CategoryID
		pending := in.Type.PendingStatus()
		for _, member := range members {
			if member.CategoryID != category {
				return Request{}, ErrMixedCategories
			}
			// The member must be able to enter the pipeline under the
			// per-item transition table, which keeps IN_TRANSIT assets
			// out until the receiving branch confirms receipt.
			if !member.Status.CanTransitionTo(pending) {
				return Request{}, fmt.Errorf("asset %d: %w", member.ID, ErrMemberNotOperational)
			}
			if member.RequestID != 0 {
				return Request{}, fmt.Errorf("asset %d: %w", member.ID, ErrMemberBusy)
			}
			if !actor.CanAccessBranch(member.BranchID) {
				return Request{}, fmt.Errorf("asset %d is outside the actor's branches: %w", member.ID, shared.ErrPermissionDenied)
			}
			if in.Type == TypeTransfer && member.BranchID == in.TargetBranchID {
				return Request{}, fmt.Errorf("asset %d: %w", member.ID, ErrSameBranch)
			}
		}
		return Request{
			Type:           in.Type,
			Status:         StatusPending,
			RequesterID:    actor.ID,
			CategoryID:     category,
			TargetBranchID: in.TargetBranchID,
			Reason:         in.Reason,
			CurrentStep:    1,
		}, nil
	})
	if err != nil {
		return View{}, err
	}

	s.recordAudit(ctx, actor, req,
		fmt.Sprintf("%s request opened for %d assets", req.Type, len(req.AssetIDs)))
	approvers := s.publish(ctx, req, "")
	return View{Request: req, CurrentApprovers: approvers}, nil
}

// Get returns one request with its current approvers when pending.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (View, error) {
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !actor.IsGlobal() && req.RequesterID != actor.ID {
		return View{}, fmt.Errorf("request %d belongs to another requester: %w", id, shared.ErrPermissionDenied)
	}
	view := View{Request: req}
	if req.Status == StatusPending {
		approvers, err := s.resolver.Approvers(ctx, req.Progress())
		if err == nil {
			view.CurrentApprovers = approvers
		}
	}
	return view, nil
}

// List returns requests visible to the actor. Non-global actors only see
// their own.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Request, error) {
	if !actor.IsGlobal() {
		filter.RequesterID = actor.ID
	}
	return s.repo.ListRequests(ctx, filter)
}

// PendingForActor returns open requests whose current step resolves to the
// actor.
func (s *Service) PendingForActor(ctx context.Context, actor shared.Actor) ([]Request, error) {
	open, err := s.repo.ListRequests(ctx, ListFilter{Status: StatusPending})
	if err != nil {
		return nil, err
	}
	var out []Request
	for _, req := range open {
		ok, _, err := s.resolver.Authorized(ctx, req.Progress(), actor.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, req)
		}
	}
	return out, nil
}

// Approve records one approval decision. The final step applies the member
// effects: transfers put every member in transit, write-offs retire them.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (View, error) {
	req, err := s.decide(ctx, actor, id)
	if err != nil {
		return View{}, err
	}

	advance, err := s.coordinator.ShouldAdvance(ctx, req.Progress())
	if err != nil {
		return View{}, err
	}
	if advance {
		req.CurrentStep++
		req, err = s.repo.AdvanceStep(ctx, req)
		if err != nil {
			return View{}, err
		}
		s.recordAudit(ctx, actor, req,
			fmt.Sprintf("Approval step advanced to %d", req.CurrentStep))
		approvers := s.publish(ctx, req, string(StatusPending))
		return View{Request: req, CurrentApprovers: approvers}, nil
	}

	member := MemberUpdate{Status: assets.StatusInTransit}
	if req.Type == TypeWriteOff {
		member = MemberUpdate{Status: assets.StatusWrittenOff, DetachRequest: true}
	}
	req, err = s.repo.Conclude(ctx, req, StatusApproved, member)
	if err != nil {
		return View{}, err
	}
	s.recordAudit(ctx, actor, req,
		fmt.Sprintf("Request approved, %d assets moved to %s", len(req.AssetIDs), member.Status))
	s.publish(ctx, req, string(StatusPending))
	return View{Request: req}, nil
}

// Reject declines the request and reverts every member to its operational
// baseline. The member links stay recorded for history.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, reason string) (View, error) {
	req, err := s.decide(ctx, actor, id)
	if err != nil {
		return View{}, err
	}

	req, err = s.repo.Conclude(ctx, req, StatusRejected, MemberUpdate{
		Status:        assets.StatusApproved,
		ClearTransfer: true,
		ClearReason:   true,
		DetachRequest: true,
	})
	if err != nil {
		return View{}, err
	}
	message := "Request rejected"
	if reason = strings.TrimSpace(reason); reason != "" {
		message += ": " + reason
	}
	s.recordAudit(ctx, actor, req, message)
	s.publish(ctx, req, string(StatusPending))
	return View{Request: req}, nil
}

// decide loads the request and verifies the actor may rule on its current
// step.
func (s *Service) decide(ctx context.Context, actor shared.Actor, id int64) (Request, error) {
	if actor.Role == shared.RoleAuditor {
		return Request{}, fmt.Errorf("auditors cannot decide requests: %w", shared.ErrPermissionDenied)
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, fmt.Errorf("request %d: %w", id, ErrNotPending)
	}
	authorized, _, err := s.resolver.Authorized(ctx, req.Progress(), actor.ID)
	if err != nil {
		return Request{}, err
	}
	if !authorized {
		return Request{}, fmt.Errorf("actor is not an approver for step %d: %w", req.CurrentStep, shared.ErrPermissionDenied)
	}
	return req, nil
}

// publish resolves approvers for the request's current step when still
// pending and emits the transition event. Failures are logged, never
// surfaced.
func (s *Service) publish(ctx context.Context, req Request, oldStatus string) []workflow.Approver {
	var approvers []workflow.Approver
	if req.Status == StatusPending {
		resolved, err := s.resolver.Approvers(ctx, req.Progress())
		if err != nil {
			s.logger.Warn("resolve approvers for notification",
				slog.Int64("request_id", req.ID), slog.Any("error", err))
		} else {
			approvers = resolved
		}
	}
	if s.events != nil {
		s.events.Publish(ctx, workflow.NewTransitionEvent(
			workflow.EntityRequest, req.ID, oldStatus, string(req.Status),
			req.CurrentStep, approvers, req.RequesterID))
	}
	return approvers
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, req Request, action string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "requests",
		EntityID: strconv.FormatInt(req.ID, 10),
		Meta: map[string]any{
			"type":      string(req.Type),
			"status":    string(req.Status),
			"asset_ids": req.AssetIDs,
		},
	})
	if err != nil {
		s.logger.Error("record audit entry", slog.Int64("request_id", req.ID), slog.Any("error", err))
	}
}
