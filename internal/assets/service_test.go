package assets

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
)

type memAssetRepo struct {
	seq    int64
	assets map[int64]Asset
}

func newMemAssetRepo() *memAssetRepo {
	return &memAssetRepo{assets: map[int64]Asset{}}
}

func (m *memAssetRepo) GetAsset(_ context.Context, id int64) (Asset, error) {
	asset, ok := m.assets[id]
	if !ok {
		return Asset{}, shared.ErrNotFound
	}
	return asset, nil
}

func (m *memAssetRepo) InsertAsset(_ context.Context, asset Asset) (Asset, error) {
	m.seq++
	asset.ID = m.seq
	asset.Version = 1
	asset.CreatedAt = time.Now()
	asset.UpdatedAt = asset.CreatedAt
	m.assets[asset.ID] = asset
	return asset, nil
}

func (m *memAssetRepo) UpdateAsset(_ context.Context, asset Asset) (Asset, error) {
	current, ok := m.assets[asset.ID]
	if !ok {
		return Asset{}, shared.ErrNotFound
	}
	if current.Version != asset.Version {
		return Asset{}, shared.ErrConcurrentUpdate
	}
	asset.Version++
	asset.UpdatedAt = time.Now()
	m.assets[asset.ID] = asset
	return asset, nil
}

func (m *memAssetRepo) ListAssets(_ context.Context, filter ListFilter) ([]Asset, error) {
	var out []Asset
	for _, asset := range m.assets {
		if filter.Status != "" && asset.Status != filter.Status {
			continue
		}
		if filter.BranchID != 0 && asset.BranchID != filter.BranchID {
			continue
		}
		if len(filter.AllowedBranches) > 0 {
			allowed := false
			for _, id := range filter.AllowedBranches {
				if asset.BranchID == id {
					allowed = true
					break
				}
			}
			if !allowed {
				continue
			}
		}
		out = append(out, asset)
	}
	return out, nil
}

func (m *memAssetRepo) FindByFixedAssetNumber(_ context.Context, number string) (Asset, error) {
	for _, asset := range m.assets {
		if asset.FixedAssetNumber == number && number != "" {
			return asset, nil
		}
	}
	return Asset{}, shared.ErrNotFound
}

type memBranches struct{ names map[int64]string }

func (m *memBranches) BranchName(_ context.Context, id int64) (string, error) {
	return m.names[id], nil
}

type memWorkflow struct {
	rules         []workflow.Rule
	users         map[int64]workflow.Approver
	groups        map[int64][]workflow.Approver
	fallbackGroup int64
}

func (m *memWorkflow) ListRules(_ context.Context, categoryID int64, action workflow.ActionType) ([]workflow.Rule, error) {
	var out []workflow.Rule
	for _, rule := range m.rules {
		if rule.CategoryID == categoryID && rule.Action == action {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *memWorkflow) ResolveUser(_ context.Context, userID int64) (workflow.Approver, error) {
	user, ok := m.users[userID]
	if !ok {
		return workflow.Approver{}, shared.ErrNotFound
	}
	return user, nil
}

func (m *memWorkflow) ResolveGroup(_ context.Context, groupID int64) ([]workflow.Approver, error) {
	return m.groups[groupID], nil
}

func (m *memWorkflow) ResolveRoles(_ context.Context, roles ...shared.Role) ([]workflow.Approver, error) {
	// Role directory for tests: user 100 is the admin, user 200 the approver.
	var out []workflow.Approver
	for _, role := range roles {
		switch role {
		case shared.RoleAdmin:
			if admin, ok := m.users[100]; ok {
				out = append(out, admin)
			}
		case shared.RoleApprover:
			if approver, ok := m.users[200]; ok {
				out = append(out, approver)
			}
		}
	}
	return out, nil
}

func (m *memWorkflow) FallbackGroupID(_ context.Context) (int64, error) {
	return m.fallbackGroup, nil
}

type memAudit struct{ logs []shared.AuditLog }

func (m *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type memSink struct{ events []workflow.TransitionEvent }

func (m *memSink) Publish(_ context.Context, event workflow.TransitionEvent) {
	m.events = append(m.events, event)
}

type testEnv struct {
	service *Service
	repo    *memAssetRepo
	wf      *memWorkflow
	audit   *memAudit
	sink    *memSink
}

func newTestEnv(t *testing.T, rules []workflow.Rule) *testEnv {
	t.Helper()
	repo := newMemAssetRepo()
	wf := &memWorkflow{
		rules: rules,
		users: map[int64]workflow.Approver{
			100: {ID: 100, Name: "Root Admin", Email: "admin@example.com"},
			200: {ID: 200, Name: "Head Approver", Email: "approver@example.com"},
			201: {ID: 201, Name: "Second Approver", Email: "approver2@example.com"},
		},
		groups: map[int64][]workflow.Approver{},
	}
	audit := &memAudit{}
	sink := &memSink{}
	logger := slog.Default()
	resolver := workflow.NewResolver(wf, wf, wf, logger)
	coordinator := workflow.NewCoordinator(wf)
	branches := &memBranches{names: map[int64]string{1: "Central", 2: "North"}}
	service := NewService(repo, branches, resolver, coordinator, audit, sink, logger)
	return &testEnv{service: service, repo: repo, wf: wf, audit: audit, sink: sink}
}

func userRule(category int64, action workflow.ActionType, step int, userID int64) workflow.Rule {
	return workflow.Rule{
		ID:         int64(step),
		CategoryID: category,
		Action:     action,
		StepOrder:  step,
		Target:     workflow.TargetUser(userID),
	}
}

var (
	adminActor    = shared.Actor{ID: 100, Name: "Root Admin", Role: shared.RoleAdmin}
	approverActor = shared.Actor{ID: 200, Name: "Head Approver", Role: shared.RoleApprover}
	secondActor   = shared.Actor{ID: 201, Name: "Second Approver", Role: shared.RoleApprover}
	operatorActor = shared.Actor{ID: 300, Name: "Branch Operator", Role: shared.RoleOperator, Branches: []int64{1}}
	auditorActor  = shared.Actor{ID: 400, Name: "Auditor", Role: shared.RoleAuditor}
)

func TestCreateOpensApprovalPipeline(t *testing.T) {
	env := newTestEnv(t, []workflow.Rule{
		userRule(5, workflow.ActionCreate, 1, 200),
		userRule(5, workflow.ActionCreate, 2, 201),
	})

	view, err := env.service.Create(context.Background(), operatorActor, CreateInput{
		Description: "Forklift", CategoryID: 5, BranchID: 1, Value: 1500,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, view.Status)
	require.Equal(t, 1, view.ApprovalStep)
	require.Len(t, view.CurrentApprovers, 1)
	require.Equal(t, int64(200), view.CurrentApprovers[0].ID)

	require.Len(t, env.sink.events, 1)
	event := env.sink.events[0]
	require.Equal(t, workflow.EntityAsset, event.EntityType)
	require.Equal(t, "PENDING", event.NewStatus)
	require.Equal(t, []int64{200}, event.ResolvedApprovers)
}

func TestCreateDeniedOutsideOperatorBranch(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.service.Create(context.Background(), operatorActor, CreateInput{
		Description: "Printer", CategoryID: 5, BranchID: 2,
	})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	require.Empty(t, env.repo.assets)
}

func TestAuditorCannotMutate(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.service.Create(context.Background(), auditorActor, CreateInput{
		Description: "Printer", CategoryID: 5, BranchID: 1,
	})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestApproveAdvancesThenFinalizes(t *testing.T) {
	env := newTestEnv(t, []workflow.Rule{
		userRule(5, workflow.ActionCreate, 1, 200),
		userRule(5, workflow.ActionCreate, 2, 201),
	})
	created, err := env.service.Create(context.Background(), operatorActor, CreateInput{
		Description: "Forklift", CategoryID: 5, BranchID: 1,
	})
	require.NoError(t, err)

	// Step 1 of 2: status holds, step advances, next approver resolved.
	view, err := env.service.Approve(context.Background(), approverActor, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, view.Status)
	require.Equal(t, 2, view.ApprovalStep)
	require.Len(t, view.CurrentApprovers, 1)
	require.Equal(t, int64(201), view.CurrentApprovers[0].ID)

	// Final step: terminal transition, no further approvers.
	view, err = env.service.Approve(context.Background(), secondActor, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, view.Status)
	require.Empty(t, view.CurrentApprovers)

	last := env.sink.events[len(env.sink.events)-1]
	require.Equal(t, "PENDING", last.OldStatus)
	require.Equal(t, "APPROVED", last.NewStatus)
	require.Empty(t, last.ResolvedApprovers)
}

func TestApproveRejectsNonApprover(t *testing.T) {
	env := newTestEnv(t, []workflow.Rule{userRule(5, workflow.ActionCreate, 1, 200)})
	created, err := env.service.Create(context.Background(), adminActor, CreateInput{
		Description: "Scanner", CategoryID: 5, BranchID: 1,
	})
	require.NoError(t, err)

	_, err = env.service.Approve(context.Background(), secondActor, created.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	require.Equal(t, StatusPending, env.repo.assets[created.ID].Status)
	require.Equal(t, 1, env.repo.assets[created.ID].ApprovalStep)
}

func TestApproveFallsBackWithoutRules(t *testing.T) {
	// No rules at all: resolution falls back to admins and the single
	// decision finalizes the pipeline.
	env := newTestEnv(t, nil)
	created, err := env.service.Create(context.Background(), operatorActor, CreateInput{
		Description: "Desk", CategoryID: 9, BranchID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{100}, env.sink.events[0].ResolvedApprovers)

	view, err := env.service.Approve(context.Background(), adminActor, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, view.Status)
}

func TestApproveFallsBackToConfiguredGroup(t *testing.T) {
	env := newTestEnv(t, nil)
	env.wf.fallbackGroup = 7
	env.wf.groups[7] = []workflow.Approver{{ID: 201, Name: "Second Approver"}}

	created, err := env.service.Create(context.Background(), adminActor, CreateInput{
		Description: "Chair", CategoryID: 9, BranchID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{201}, env.sink.events[0].ResolvedApprovers)

	_, err = env.service.Approve(context.Background(), adminActor, created.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	view, err := env.service.Approve(context.Background(), secondActor, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, view.Status)
}

func TestApproveBlockedForBatchOwnedAsset(t *testing.T) {
	env := newTestEnv(t, nil)
	asset, err := env.repo.InsertAsset(context.Background(), Asset{
		Description: "Pallet", CategoryID: 9, BranchID: 1,
		Status: StatusWriteOffPending, ApprovalStep: 1, RequestID: 42,
	})
	require.NoError(t, err)

	_, err = env.service.Approve(context.Background(), adminActor, asset.ID)
	require.ErrorIs(t, err, ErrManagedByRequest)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRejectCreationAndResubmit(t *testing.T) {
	env := newTestEnv(t, []workflow.Rule{userRule(5, workflow.ActionCreate, 1, 200)})
	created, err := env.service.Create(context.Background(), operatorActor, CreateInput{
		Description: "Laptop", CategoryID: 5, BranchID: 1,
	})
	require.NoError(t, err)

	view, err := env.service.Reject(context.Background(), approverActor, created.ID, "missing invoice")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, view.Status)

	// Editing a rejected asset resubmits it at step 1.
	view, err = env.service.Update(context.Background(), operatorActor, created.ID, UpdateInput{
		Description: "Laptop", Observations: "invoice attached",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, view.Status)
	require.Equal(t, 1, view.ApprovalStep)
	require.Equal(t, []int64{200}, env.sink.events[len(env.sink.events)-1].ResolvedApprovers)
}

func TestTransferLifecycle(t *testing.T) {
	env := newTestEnv(t, []workflow.Rule{userRule(5, workflow.ActionTransfer, 1, 200)})
	asset, err := env.repo.InsertAsset(context.Background(), Asset{
		Description: "Generator", CategoryID: 5, BranchID: 1, Status: StatusApproved, ApprovalStep: 1,
	})
	require.NoError(t, err)

	view, err := env.service.RequestTransfer(context.Background(), operatorActor, asset.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusTransferPending, view.Status)
	require.Equal(t, int64(2), view.TransferBranchID)

	// Approval moves the asset into transit; custody stays at the source.
	view, err = env.service.Approve(context.Background(), approverActor, asset.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, view.Status)
	require.Equal(t, int64(1), view.BranchID)
	require.Equal(t, int64(2), view.TransferBranchID)

	// Source-branch operator cannot confirm receipt.
	_, err = env.service.ConfirmReceipt(context.Background(), operatorActor, asset.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	receiver := shared.Actor{ID: 301, Role: shared.RoleOperator, Branches: []int64{2}}
	view, err = env.service.ConfirmReceipt(context.Background(), receiver, asset.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInStock, view.Status)
	require.Equal(t, int64(2), view.BranchID)
	require.Zero(t, view.TransferBranchID)

	last := env.audit.logs[len(env.audit.logs)-1]
	require.Equal(t, "Branch Central transferred to branch North", last.Action)
}

func TestTransferToSameBranchRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	asset, err := env.repo.InsertAsset(context.Background(), Asset{
		Description: "Generator", CategoryID: 5, BranchID: 1, Status: StatusApproved, ApprovalStep: 1,
	})
	require.NoError(t, err)

	_, err = env.service.RequestTransfer(context.Background(), adminActor, asset.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRejectedTransferRevertsToApproved(t *testing.T) {
	env := newTestEnv(t, []workflow.Rule{userRule(5, workflow.ActionTransfer, 1, 200)})
	asset, err := env.repo.InsertAsset(context.Background(), Asset{
		Description: "Generator", CategoryID: 5, BranchID: 1, Status: StatusApproved, ApprovalStep: 1,
	})
	require.NoError(t, err)

	_, err = env.service.RequestTransfer(context.Background(), operatorActor, asset.ID, 2)
	require.NoError(t, err)

	view, err := env.service.Reject(context.Background(), approverActor, asset.ID, "not needed")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, view.Status)
	require.Zero(t, view.TransferBranchID)
}

func TestWriteOffLifecycle(t *testing.T) {
	env := newTestEnv(t, []workflow.Rule{userRule(5, workflow.ActionWriteOff, 1, 200)})
	asset, err := env.repo.InsertAsset(context.Background(), Asset{
		Description: "Old rack", CategoryID: 5, BranchID: 1, Status: StatusInStock, ApprovalStep: 1,
	})
	require.NoError(t, err)

	_, err = env.service.RequestWriteOff(context.Background(), operatorActor, asset.ID, "")
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	view, err := env.service.RequestWriteOff(context.Background(), operatorActor, asset.ID, "damaged beyond repair")
	require.NoError(t, err)
	require.Equal(t, StatusWriteOffPending, view.Status)
	require.Equal(t, "damaged beyond repair", view.WriteOffReason)

	view, err = env.service.Approve(context.Background(), approverActor, asset.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWrittenOff, view.Status)

	// Terminal state admits no further moves.
	_, err = env.service.RequestTransfer(context.Background(), adminActor, asset.ID, 2)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRejectedWriteOffClearsReason(t *testing.T) {
	env := newTestEnv(t, []workflow.Rule{userRule(5, workflow.ActionWriteOff, 1, 200)})
	asset, err := env.repo.InsertAsset(context.Background(), Asset{
		Description: "Old rack", CategoryID: 5, BranchID: 1, Status: StatusApproved, ApprovalStep: 1,
	})
	require.NoError(t, err)

	_, err = env.service.RequestWriteOff(context.Background(), operatorActor, asset.ID, "obsolete")
	require.NoError(t, err)

	view, err := env.service.Reject(context.Background(), approverActor, asset.ID, "still serviceable")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, view.Status)
	require.Empty(t, view.WriteOffReason)
}

func TestOperationalStatusMoves(t *testing.T) {
	env := newTestEnv(t, nil)
	asset, err := env.repo.InsertAsset(context.Background(), Asset{
		Description: "Compressor", CategoryID: 5, BranchID: 1, Status: StatusApproved, ApprovalStep: 1,
	})
	require.NoError(t, err)

	view, err := env.service.SetOperationalStatus(context.Background(), operatorActor, asset.ID, StatusMaintenance)
	require.NoError(t, err)
	require.Equal(t, StatusMaintenance, view.Status)

	view, err = env.service.SetOperationalStatus(context.Background(), operatorActor, asset.ID, StatusInStock)
	require.NoError(t, err)
	require.Equal(t, StatusInStock, view.Status)
}

func TestPendingAssetCannotMoveLaterally(t *testing.T) {
	env := newTestEnv(t, nil)
	created, err := env.service.Create(context.Background(), operatorActor, CreateInput{
		Description: "Pump", CategoryID: 5, BranchID: 1,
	})
	require.NoError(t, err)
	auditCount := len(env.audit.logs)

	_, err = env.service.SetOperationalStatus(context.Background(), adminActor, created.ID, StatusMaintenance)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Equal(t, StatusPending, env.repo.assets[created.ID].Status)
	require.Len(t, env.audit.logs, auditCount)
}

func TestListScopesOperatorToBranches(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.repo.InsertAsset(context.Background(), Asset{Description: "A", BranchID: 1, Status: StatusApproved})
	require.NoError(t, err)
	_, err = env.repo.InsertAsset(context.Background(), Asset{Description: "B", BranchID: 2, Status: StatusApproved})
	require.NoError(t, err)

	out, err := env.service.List(context.Background(), operatorActor, ListFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(1), out[0].BranchID)

	out, err = env.service.List(context.Background(), auditorActor, ListFilter{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	_, err = env.service.List(context.Background(), operatorActor, ListFilter{BranchID: 2})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}
