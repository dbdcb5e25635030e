package workflow

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrimon/patrimon/internal/shared"
)

type memRules struct{ rules []Rule }

func (m *memRules) ListRules(_ context.Context, categoryID int64, action ActionType) ([]Rule, error) {
	var out []Rule
	for _, rule := range m.rules {
		if rule.CategoryID == categoryID && rule.Action == action {
			out = append(out, rule)
		}
	}
	return out, nil
}

type memDirectory struct {
	users  map[int64]Approver
	groups map[int64][]Approver
	byRole map[shared.Role][]Approver
}

func (m *memDirectory) ResolveUser(_ context.Context, userID int64) (Approver, error) {
	user, ok := m.users[userID]
	if !ok {
		return Approver{}, shared.ErrNotFound
	}
	return user, nil
}

func (m *memDirectory) ResolveGroup(_ context.Context, groupID int64) ([]Approver, error) {
	return m.groups[groupID], nil
}

func (m *memDirectory) ResolveRoles(_ context.Context, roles ...shared.Role) ([]Approver, error) {
	var out []Approver
	seen := map[int64]bool{}
	for _, role := range roles {
		for _, a := range m.byRole[role] {
			if !seen[a.ID] {
				seen[a.ID] = true
				out = append(out, a)
			}
		}
	}
	return out, nil
}

type memSettings struct{ groupID int64 }

func (m *memSettings) FallbackGroupID(_ context.Context) (int64, error) {
	return m.groupID, nil
}

func newTestResolver(rules []Rule, directory *memDirectory, settings *memSettings) *Resolver {
	if directory == nil {
		directory = &memDirectory{}
	}
	if settings == nil {
		settings = &memSettings{}
	}
	return NewResolver(&memRules{rules: rules}, directory, settings, slog.Default())
}

func adminDirectory() *memDirectory {
	return &memDirectory{
		users: map[int64]Approver{
			1: {ID: 1, Name: "Admin"},
			2: {ID: 2, Name: "Approver"},
			3: {ID: 3, Name: "Specialist"},
		},
		groups: map[int64][]Approver{},
		byRole: map[shared.Role][]Approver{
			shared.RoleAdmin:    {{ID: 1, Name: "Admin"}},
			shared.RoleApprover: {{ID: 2, Name: "Approver"}},
		},
	}
}

func TestApproversUserTarget(t *testing.T) {
	resolver := newTestResolver(
		[]Rule{{CategoryID: 5, Action: ActionCreate, StepOrder: 1, Target: TargetUser(3)}},
		adminDirectory(), nil)

	out, err := resolver.Approvers(context.Background(), Progress{CategoryID: 5, Action: ActionCreate, Step: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(3), out[0].ID)
}

func TestApproversRoleApproverIncludesAdmins(t *testing.T) {
	resolver := newTestResolver(
		[]Rule{{CategoryID: 5, Action: ActionCreate, StepOrder: 1, Target: TargetRole(shared.RoleApprover)}},
		adminDirectory(), nil)

	out, err := resolver.Approvers(context.Background(), Progress{CategoryID: 5, Action: ActionCreate, Step: 1})
	require.NoError(t, err)
	ids := make([]int64, 0, len(out))
	for _, a := range out {
		ids = append(ids, a.ID)
	}
	require.ElementsMatch(t, []int64{1, 2}, ids)
}

func TestApproversGroupTarget(t *testing.T) {
	directory := adminDirectory()
	directory.groups[9] = []Approver{{ID: 3, Name: "Specialist"}}
	resolver := newTestResolver(
		[]Rule{{CategoryID: 5, Action: ActionCreate, StepOrder: 2, Target: TargetGroup(9)}},
		directory, nil)

	out, err := resolver.Approvers(context.Background(), Progress{CategoryID: 5, Action: ActionCreate, Step: 2})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(3), out[0].ID)
}

// Fallback guarantee: resolution never returns an empty set as long as an
// admin exists, whatever gap caused it.
func TestApproversFallback(t *testing.T) {
	cases := map[string]struct {
		rules    []Rule
		progress Progress
	}{
		"no category": {
			progress: Progress{CategoryID: 0, Action: ActionCreate, Step: 1},
		},
		"no rules for category": {
			progress: Progress{CategoryID: 7, Action: ActionCreate, Step: 1},
		},
		"step beyond chain": {
			rules:    []Rule{{CategoryID: 5, Action: ActionCreate, StepOrder: 1, Target: TargetUser(3)}},
			progress: Progress{CategoryID: 5, Action: ActionCreate, Step: 4},
		},
		"target resolves empty": {
			// User 99 does not exist; the step yields nobody.
			rules:    []Rule{{CategoryID: 5, Action: ActionCreate, StepOrder: 1, Target: TargetUser(99)}},
			progress: Progress{CategoryID: 5, Action: ActionCreate, Step: 1},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resolver := newTestResolver(tc.rules, adminDirectory(), nil)
			out, err := resolver.Approvers(context.Background(), tc.progress)
			require.NoError(t, err)
			require.Len(t, out, 1)
			require.Equal(t, int64(1), out[0].ID)
		})
	}
}

func TestApproversFallbackPrefersConfiguredGroup(t *testing.T) {
	directory := adminDirectory()
	directory.groups[4] = []Approver{{ID: 3, Name: "Specialist"}}
	resolver := newTestResolver(nil, directory, &memSettings{groupID: 4})

	out, err := resolver.Approvers(context.Background(), Progress{CategoryID: 7, Action: ActionCreate, Step: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(3), out[0].ID)
}

func TestApproversFallbackSkipsEmptyGroup(t *testing.T) {
	// A configured but empty fallback group degrades to the admins.
	resolver := newTestResolver(nil, adminDirectory(), &memSettings{groupID: 4})

	out, err := resolver.Approvers(context.Background(), Progress{CategoryID: 7, Action: ActionCreate, Step: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(1), out[0].ID)
}

func TestAuthorized(t *testing.T) {
	resolver := newTestResolver(
		[]Rule{{CategoryID: 5, Action: ActionCreate, StepOrder: 1, Target: TargetUser(3)}},
		adminDirectory(), nil)
	progress := Progress{CategoryID: 5, Action: ActionCreate, Step: 1}

	ok, approvers, err := resolver.Authorized(context.Background(), progress, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, approvers, 1)

	ok, _, err = resolver.Authorized(context.Background(), progress, 2)
	require.NoError(t, err)
	require.False(t, ok)
}
