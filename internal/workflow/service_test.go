package workflow

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrimon/patrimon/internal/shared"
)

type memAdminRules struct {
	rules map[int64]Rule
	seq   int64
}

func newMemAdminRules() *memAdminRules {
	return &memAdminRules{rules: make(map[int64]Rule)}
}

func (m *memAdminRules) add(categoryID int64, action ActionType, step int) Rule {
	m.seq++
	rule := Rule{
		ID:         m.seq,
		CategoryID: categoryID,
		Action:     action,
		StepOrder:  step,
		Target:     TargetRole(shared.RoleApprover),
	}
	m.rules[rule.ID] = rule
	return rule
}

func (m *memAdminRules) pipeline(categoryID int64, action ActionType) []Rule {
	var out []Rule
	for _, rule := range m.rules {
		if rule.CategoryID == categoryID && rule.Action == action {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out
}

func (m *memAdminRules) ListRules(_ context.Context, categoryID int64, action ActionType) ([]Rule, error) {
	return m.pipeline(categoryID, action), nil
}

func (m *memAdminRules) ListAllRules(_ context.Context, categoryID int64) ([]Rule, error) {
	var out []Rule
	for _, rule := range m.rules {
		if categoryID == 0 || rule.CategoryID == categoryID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (m *memAdminRules) GetRule(_ context.Context, id int64) (Rule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return rule, nil
}

func (m *memAdminRules) InsertRule(_ context.Context, rule Rule) (Rule, error) {
	m.seq++
	rule.ID = m.seq
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memAdminRules) UpdateRule(_ context.Context, rule Rule) (Rule, error) {
	if _, ok := m.rules[rule.ID]; !ok {
		return Rule{}, ErrRuleNotFound
	}
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memAdminRules) DeleteRule(_ context.Context, id int64) error {
	if _, ok := m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

// ReorderRules mirrors the SQL contract: renumber to the given order, but
// refuse to commit when the order does not cover the whole pipeline.
func (m *memAdminRules) ReorderRules(_ context.Context, categoryID int64, action ActionType, orderedIDs []int64) error {
	set := m.pipeline(categoryID, action)
	renumbered := make(map[int64]int, len(orderedIDs))
	for i, id := range orderedIDs {
		rule, ok := m.rules[id]
		if !ok || rule.CategoryID != categoryID || rule.Action != action {
			return ErrRuleNotFound
		}
		renumbered[id] = i + 1
	}
	for _, rule := range set {
		if _, ok := renumbered[rule.ID]; !ok {
			return ErrIncompleteReorder
		}
	}
	for id, step := range renumbered {
		rule := m.rules[id]
		rule.StepOrder = step
		m.rules[id] = rule
	}
	return nil
}

func pipelineIDs(t *testing.T, repo *memAdminRules, categoryID int64, action ActionType) []int64 {
	t.Helper()
	rules, err := repo.ListRules(context.Background(), categoryID, action)
	require.NoError(t, err)
	ids := make([]int64, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}
	return ids
}

func TestReorderRenumbersPipeline(t *testing.T) {
	repo := newMemAdminRules()
	first := repo.add(5, ActionWriteOff, 1)
	second := repo.add(5, ActionWriteOff, 2)
	third := repo.add(5, ActionWriteOff, 3)
	svc := NewService(repo, nil)
	actor := shared.Actor{ID: 100, Role: shared.RoleAdmin}

	err := svc.Reorder(context.Background(), actor, 5, ActionWriteOff, []int64{third.ID, first.ID, second.ID})
	require.NoError(t, err)

	require.Equal(t, []int64{third.ID, first.ID, second.ID}, pipelineIDs(t, repo, 5, ActionWriteOff))
	require.Equal(t, 1, repo.rules[third.ID].StepOrder)
	require.Equal(t, 2, repo.rules[first.ID].StepOrder)
	require.Equal(t, 3, repo.rules[second.ID].StepOrder)
}

func TestReorderRejectsPartialList(t *testing.T) {
	repo := newMemAdminRules()
	first := repo.add(5, ActionWriteOff, 1)
	repo.add(5, ActionWriteOff, 2)
	repo.add(5, ActionWriteOff, 3)
	svc := NewService(repo, nil)
	actor := shared.Actor{ID: 100, Role: shared.RoleAdmin}

	before := pipelineIDs(t, repo, 5, ActionWriteOff)
	err := svc.Reorder(context.Background(), actor, 5, ActionWriteOff, []int64{first.ID})
	require.ErrorIs(t, err, ErrIncompleteReorder)
	require.Equal(t, before, pipelineIDs(t, repo, 5, ActionWriteOff))
}

func TestReorderRejectsDuplicatesAndUnknownRules(t *testing.T) {
	repo := newMemAdminRules()
	first := repo.add(5, ActionWriteOff, 1)
	second := repo.add(5, ActionWriteOff, 2)
	other := repo.add(6, ActionWriteOff, 1)
	svc := NewService(repo, nil)
	actor := shared.Actor{ID: 100, Role: shared.RoleAdmin}

	err := svc.Reorder(context.Background(), actor, 5, ActionWriteOff, []int64{first.ID, first.ID})
	require.ErrorIs(t, err, ErrIncompleteReorder)

	err = svc.Reorder(context.Background(), actor, 5, ActionWriteOff, []int64{first.ID, int64(99)})
	require.ErrorIs(t, err, ErrRuleNotFound)

	// Rules from another pipeline never count toward coverage.
	err = svc.Reorder(context.Background(), actor, 5, ActionWriteOff, []int64{first.ID, other.ID})
	require.ErrorIs(t, err, ErrRuleNotFound)

	require.Equal(t, 1, repo.rules[first.ID].StepOrder)
	require.Equal(t, 2, repo.rules[second.ID].StepOrder)
}

func TestReorderRepositoryRefusesUncoveredSet(t *testing.T) {
	repo := newMemAdminRules()
	first := repo.add(5, ActionWriteOff, 1)
	repo.add(5, ActionWriteOff, 2)

	// Direct repository call, as if a rule appeared between the caller's
	// read and the renumber.
	err := repo.ReorderRules(context.Background(), 5, ActionWriteOff, []int64{first.ID})
	require.ErrorIs(t, err, ErrIncompleteReorder)
}
