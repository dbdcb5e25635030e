package assets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
)

// ResolverPort is the approver resolution surface the lifecycle needs.
type ResolverPort interface {
	Approvers(ctx context.Context, p workflow.Progress) ([]workflow.Approver, error)
	Authorized(ctx context.Context, p workflow.Progress, userID int64) (bool, []workflow.Approver, error)
}

// CoordinatorPort decides step advancement versus finalization.
type CoordinatorPort interface {
	ShouldAdvance(ctx context.Context, p workflow.Progress) (bool, error)
}

// Service drives the asset lifecycle state machine. Every transition is a
// single read-validate-mutate-persist unit; audit entries are written with
// the mutation and events are published only after the write committed.
type Service struct {
	repo        RepositoryPort
	branches    BranchPort
	resolver    ResolverPort
	coordinator CoordinatorPort
	audit       shared.AuditSink
	events      workflow.EventSink
	logger      *slog.Logger
}

// NewService builds the asset lifecycle service.
func NewService(repo RepositoryPort, branches BranchPort, resolver ResolverPort, coordinator CoordinatorPort, audit shared.AuditSink, events workflow.EventSink, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		branches:    branches,
		resolver:    resolver,
		coordinator: coordinator,
		audit:       audit,
		events:      events,
		logger:      logger,
	}
}

// ensureWriter rejects read-only actors.
func ensureWriter(actor shared.Actor) error {
	if actor.Role == shared.RoleAuditor {
		return fmt.Errorf("auditors cannot modify assets: %w", shared.ErrPermissionDenied)
	}
	return nil
}

// CreateInput carries the fields for registering a new asset.
type CreateInput struct {
	Description      string
	CategoryID       int64
	BranchID         int64
	Value            float64
	InvoiceNumber    string
	SerialNumber     string
	FixedAssetNumber string
	Observations     string
	PurchaseDate     time.Time
}

// Create registers an asset and opens its creation approval pipeline.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (View, error) {
	if err := ensureWriter(actor); err != nil {
		return View{}, err
	}
	if !actor.CanAccessBranch(in.BranchID) {
		return View{}, fmt.Errorf("actor has no access to branch %d: %w", in.BranchID, shared.ErrPermissionDenied)
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" || in.CategoryID == 0 || in.BranchID == 0 {
		return View{}, fmt.Errorf("description, category and branch required: %w", shared.ErrPreconditionFailed)
	}

	asset, err := s.repo.InsertAsset(ctx, Asset{
		Description:      in.Description,
		CategoryID:       in.CategoryID,
		BranchID:         in.BranchID,
		ResponsibleID:    actor.ID,
		Status:           StatusPending,
		ApprovalStep:     1,
		Value:            in.Value,
		InvoiceNumber:    in.InvoiceNumber,
		SerialNumber:     in.SerialNumber,
		FixedAssetNumber: in.FixedAssetNumber,
		Observations:     in.Observations,
		PurchaseDate:     in.PurchaseDate,
	})
	if err != nil {
		return View{}, err
	}

	s.recordAudit(ctx, actor, asset.ID, "Asset registered, awaiting approval", nil, asset)
	approvers := s.publish(ctx, asset, "", workflow.ActionCreate)
	return View{Asset: asset, CurrentApprovers: approvers}, nil
}

// Get returns one asset with its current approvers when pending.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (View, error) {
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !actor.CanAccessBranch(asset.BranchID) {
		return View{}, fmt.Errorf("actor has no access to branch %d: %w", asset.BranchID, shared.ErrPermissionDenied)
	}
	view := View{Asset: asset}
	if action, ok := asset.Status.PendingApproval(); ok {
		approvers, err := s.resolver.Approvers(ctx, asset.Progress(action))
		if err == nil {
			view.CurrentApprovers = approvers
		}
	}
	return view, nil
}

// List returns assets visible to the actor.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Asset, error) {
	if !actor.IsGlobal() {
		if filter.BranchID != 0 {
			if !actor.CanAccessBranch(filter.BranchID) {
				return nil, fmt.Errorf("actor has no access to branch %d: %w", filter.BranchID, shared.ErrPermissionDenied)
			}
		} else {
			filter.AllowedBranches = actor.Branches
			if len(filter.AllowedBranches) == 0 {
				return []Asset{}, nil
			}
		}
	}
	return s.repo.ListAssets(ctx, filter)
}

// FindByFixedAssetNumber checks whether a fixed asset tag is registered.
func (s *Service) FindByFixedAssetNumber(ctx context.Context, number string) (Asset, error) {
	return s.repo.FindByFixedAssetNumber(ctx, strings.TrimSpace(number))
}

// Approve records one approval decision for the asset's open pipeline.
// Either the step counter advances or the pipeline's terminal transition is
// applied; never both in one call.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (View, error) {
	if err := ensureWriter(actor); err != nil {
		return View{}, err
	}
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return View{}, err
	}
	action, ok := asset.Status.PendingApproval()
	if !ok {
		return View{}, fmt.Errorf("asset %d is not awaiting approval: %w", id, shared.ErrInvalidTransition)
	}
	if asset.RequestID != 0 {
		return View{}, ErrManagedByRequest
	}
	progress := asset.Progress(action)
	authorized, _, err := s.resolver.Authorized(ctx, progress, actor.ID)
	if err != nil {
		return View{}, err
	}
	if !authorized {
		return View{}, fmt.Errorf("actor is not an approver for step %d: %w", progress.Step, shared.ErrPermissionDenied)
	}

	advance, err := s.coordinator.ShouldAdvance(ctx, progress)
	if err != nil {
		return View{}, err
	}
	if advance {
		oldStatus := asset.Status
		asset.ApprovalStep++
		asset, err = s.repo.UpdateAsset(ctx, asset)
		if err != nil {
			return View{}, err
		}
		s.recordAudit(ctx, actor, asset.ID,
			fmt.Sprintf("Approval step advanced to %d", asset.ApprovalStep), oldStatus, asset.Status)
		approvers := s.publish(ctx, asset, oldStatus, action)
		return View{Asset: asset, CurrentApprovers: approvers}, nil
	}

	return s.finalize(ctx, actor, asset, action)
}

// finalize applies the terminal transition for the asset's workflow.
func (s *Service) finalize(ctx context.Context, actor shared.Actor, asset Asset, action workflow.ActionType) (View, error) {
	oldStatus := asset.Status
	switch action {
	case workflow.ActionCreate:
		asset.Status = StatusApproved
	case workflow.ActionTransfer:
		// Custody stays with the source branch until receipt confirmation.
		asset.Status = StatusInTransit
	case workflow.ActionWriteOff:
		asset.Status = StatusWrittenOff
	default:
		return View{}, fmt.Errorf("no terminal state for action %s: %w", action, shared.ErrInvalidTransition)
	}
	if !canTransition(oldStatus, asset.Status) {
		return View{}, fmt.Errorf("cannot move %s to %s: %w", oldStatus, asset.Status, shared.ErrInvalidTransition)
	}
	asset, err := s.repo.UpdateAsset(ctx, asset)
	if err != nil {
		return View{}, err
	}
	s.recordAudit(ctx, actor, asset.ID,
		fmt.Sprintf("Status changed to %s", asset.Status), oldStatus, asset.Status)
	s.publish(ctx, asset, oldStatus, action)
	return View{Asset: asset}, nil
}

// Reject declines the asset's open pipeline with a reason.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, reason string) (View, error) {
	if err := ensureWriter(actor); err != nil {
		return View{}, err
	}
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return View{}, err
	}
	action, ok := asset.Status.PendingApproval()
	if !ok {
		return View{}, fmt.Errorf("asset %d is not awaiting approval: %w", id, shared.ErrInvalidTransition)
	}
	if asset.RequestID != 0 {
		return View{}, ErrManagedByRequest
	}
	progress := asset.Progress(action)
	authorized, _, err := s.resolver.Authorized(ctx, progress, actor.ID)
	if err != nil {
		return View{}, err
	}
	if !authorized {
		return View{}, fmt.Errorf("actor is not an approver for step %d: %w", progress.Step, shared.ErrPermissionDenied)
	}

	oldStatus := asset.Status
	switch action {
	case workflow.ActionCreate:
		asset.Status = StatusRejected
	case workflow.ActionTransfer:
		// Declined transfer reverts to the operational baseline.
		asset.Status = StatusApproved
		asset.TransferBranchID = 0
	case workflow.ActionWriteOff:
		asset.Status = StatusApproved
		asset.WriteOffReason = ""
	}
	asset.ApprovalStep = 1
	asset, err = s.repo.UpdateAsset(ctx, asset)
	if err != nil {
		return View{}, err
	}
	message := fmt.Sprintf("Status changed to %s", asset.Status)
	if reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}
	s.recordAudit(ctx, actor, asset.ID, message, oldStatus, asset.Status)
	s.publish(ctx, asset, oldStatus, action)
	return View{Asset: asset}, nil
}

// UpdateInput carries editable asset fields.
type UpdateInput struct {
	Description  string
	Value        float64
	Observations string
}

// Update edits asset fields. Editing a REJECTED asset resubmits it: status
// returns to PENDING at step 1 and the creation notification path runs
// again.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, in UpdateInput) (View, error) {
	if err := ensureWriter(actor); err != nil {
		return View{}, err
	}
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return View{}, err
	}
	isSubmitter := asset.ResponsibleID == actor.ID
	isReviewer := actor.Role == shared.RoleAdmin || actor.Role == shared.RoleApprover
	if !isSubmitter && !isReviewer {
		return View{}, fmt.Errorf("only the submitter or a reviewer may edit: %w", shared.ErrPermissionDenied)
	}

	oldStatus := asset.Status
	if in.Description != "" {
		asset.Description = strings.TrimSpace(in.Description)
	}
	if in.Value > 0 {
		asset.Value = in.Value
	}
	asset.Observations = in.Observations

	resubmitted := false
	if asset.Status == StatusRejected {
		asset.Status = StatusPending
		asset.ApprovalStep = 1
		resubmitted = true
	}
	asset, err = s.repo.UpdateAsset(ctx, asset)
	if err != nil {
		return View{}, err
	}
	if resubmitted {
		s.recordAudit(ctx, actor, asset.ID, "Asset edited and resubmitted for approval", oldStatus, asset.Status)
		approvers := s.publish(ctx, asset, oldStatus, workflow.ActionCreate)
		return View{Asset: asset, CurrentApprovers: approvers}, nil
	}
	s.recordAudit(ctx, actor, asset.ID, "Asset details updated", oldStatus, asset.Status)
	return View{Asset: asset}, nil
}

// RequestTransfer opens the transfer approval pipeline towards a target
// branch.
func (s *Service) RequestTransfer(ctx context.Context, actor shared.Actor, id, targetBranchID int64) (View, error) {
	if err := ensureWriter(actor); err != nil {
		return View{}, err
	}
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !actor.CanAccessBranch(asset.BranchID) {
		return View{}, fmt.Errorf("actor has no access to branch %d: %w", asset.BranchID, shared.ErrPermissionDenied)
	}
	if !canTransition(asset.Status, StatusTransferPending) {
		return View{}, fmt.Errorf("cannot request transfer from %s: %w", asset.Status, shared.ErrInvalidTransition)
	}
	if targetBranchID == 0 || targetBranchID == asset.BranchID {
		return View{}, fmt.Errorf("transfer target must differ from current branch: %w", shared.ErrInvalidTransition)
	}

	oldStatus := asset.Status
	asset.Status = StatusTransferPending
	asset.TransferBranchID = targetBranchID
	asset.ApprovalStep = 1
	asset, err = s.repo.UpdateAsset(ctx, asset)
	if err != nil {
		return View{}, err
	}
	s.recordAudit(ctx, actor, asset.ID,
		fmt.Sprintf("Transfer requested to branch %d", targetBranchID), oldStatus, asset.Status)
	approvers := s.publish(ctx, asset, oldStatus, workflow.ActionTransfer)
	return View{Asset: asset, CurrentApprovers: approvers}, nil
}

// ConfirmReceipt completes a transfer at the target branch. Only here does
// custody move: the branch becomes the target and the target field clears.
func (s *Service) ConfirmReceipt(ctx context.Context, actor shared.Actor, id int64) (View, error) {
	if err := ensureWriter(actor); err != nil {
		return View{}, err
	}
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return View{}, err
	}
	if asset.Status != StatusInTransit {
		return View{}, fmt.Errorf("asset %d is not in transit: %w", id, shared.ErrInvalidTransition)
	}
	if !actor.CanAccessBranch(asset.TransferBranchID) {
		return View{}, fmt.Errorf("receipt must be confirmed at the target branch: %w", shared.ErrPermissionDenied)
	}

	oldStatus := asset.Status
	sourceBranch := asset.BranchID
	targetBranch := asset.TransferBranchID
	asset.BranchID = targetBranch
	asset.TransferBranchID = 0
	asset.RequestID = 0
	asset.Status = StatusInStock
	asset, err = s.repo.UpdateAsset(ctx, asset)
	if err != nil {
		return View{}, err
	}
	s.recordAudit(ctx, actor, asset.ID,
		fmt.Sprintf("Branch %s transferred to branch %s", s.branchName(ctx, sourceBranch), s.branchName(ctx, targetBranch)),
		oldStatus, asset.Status)
	s.publish(ctx, asset, oldStatus, workflow.ActionTransfer)
	return View{Asset: asset}, nil
}

// RequestWriteOff opens the write-off approval pipeline.
func (s *Service) RequestWriteOff(ctx context.Context, actor shared.Actor, id int64, reason string) (View, error) {
	if err := ensureWriter(actor); err != nil {
		return View{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return View{}, fmt.Errorf("write-off reason required: %w", shared.ErrPreconditionFailed)
	}
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !actor.CanAccessBranch(asset.BranchID) {
		return View{}, fmt.Errorf("actor has no access to branch %d: %w", asset.BranchID, shared.ErrPermissionDenied)
	}
	if !canTransition(asset.Status, StatusWriteOffPending) {
		return View{}, fmt.Errorf("cannot request write-off from %s: %w", asset.Status, shared.ErrInvalidTransition)
	}

	oldStatus := asset.Status
	asset.Status = StatusWriteOffPending
	asset.WriteOffReason = reason
	asset.ApprovalStep = 1
	asset, err = s.repo.UpdateAsset(ctx, asset)
	if err != nil {
		return View{}, err
	}
	s.recordAudit(ctx, actor, asset.ID, "Write-off requested: "+reason, oldStatus, asset.Status)
	approvers := s.publish(ctx, asset, oldStatus, workflow.ActionWriteOff)
	return View{Asset: asset, CurrentApprovers: approvers}, nil
}

// SetOperationalStatus performs the lateral moves between APPROVED,
// MAINTENANCE and IN_STOCK. Assets held by a pending pipeline cannot move.
func (s *Service) SetOperationalStatus(ctx context.Context, actor shared.Actor, id int64, to Status) (View, error) {
	if err := ensureWriter(actor); err != nil {
		return View{}, err
	}
	switch to {
	case StatusApproved, StatusMaintenance, StatusInStock:
	default:
		return View{}, fmt.Errorf("%s is not an operational status: %w", to, shared.ErrInvalidTransition)
	}
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !actor.CanAccessBranch(asset.BranchID) {
		return View{}, fmt.Errorf("actor has no access to branch %d: %w", asset.BranchID, shared.ErrPermissionDenied)
	}
	if asset.Status == StatusInTransit {
		return View{}, fmt.Errorf("in-transit assets change status through receipt confirmation: %w", shared.ErrInvalidTransition)
	}
	if !asset.Status.Operational() || !canTransition(asset.Status, to) {
		return View{}, fmt.Errorf("cannot move %s to %s: %w", asset.Status, to, shared.ErrInvalidTransition)
	}

	oldStatus := asset.Status
	asset.Status = to
	asset, err = s.repo.UpdateAsset(ctx, asset)
	if err != nil {
		return View{}, err
	}
	s.recordAudit(ctx, actor, asset.ID, fmt.Sprintf("Status changed to %s", to), oldStatus, asset.Status)
	return View{Asset: asset}, nil
}

// publish resolves the approvers for the asset's (possibly new) step and
// emits the transition event. Resolution failures are absorbed: the
// transition already committed and notification must not undo it.
func (s *Service) publish(ctx context.Context, asset Asset, oldStatus Status, action workflow.ActionType) []workflow.Approver {
	var approvers []workflow.Approver
	if _, pending := asset.Status.PendingApproval(); pending {
		resolved, err := s.resolver.Approvers(ctx, asset.Progress(action))
		if err != nil {
			s.logger.Warn("resolve approvers for notification",
				slog.Int64("asset_id", asset.ID), slog.Any("error", err))
		} else {
			approvers = resolved
		}
	}
	if s.events != nil {
		s.events.Publish(ctx, workflow.NewTransitionEvent(
			workflow.EntityAsset, asset.ID, string(oldStatus), string(asset.Status),
			asset.ApprovalStep, approvers, asset.ResponsibleID))
	}
	return approvers
}

func (s *Service) branchName(ctx context.Context, id int64) string {
	if s.branches != nil {
		if name, err := s.branches.BranchName(ctx, id); err == nil && name != "" {
			return name
		}
	}
	return strconv.FormatInt(id, 10)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, assetID int64, action string, before, after any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "assets",
		EntityID: strconv.FormatInt(assetID, 10),
	}
	if before != nil || after != nil {
		log.Meta = shared.Diff(before, after)
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Error("record audit entry", slog.Int64("asset_id", assetID), slog.Any("error", err))
	}
}
