package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldAdvance(t *testing.T) {
	rules := []Rule{
		{CategoryID: 5, Action: ActionCreate, StepOrder: 1, Target: TargetUser(1)},
		{CategoryID: 5, Action: ActionCreate, StepOrder: 2, Target: TargetUser(2)},
		{CategoryID: 5, Action: ActionCreate, StepOrder: 3, Target: TargetUser(3)},
	}
	coordinator := NewCoordinator(&memRules{rules: rules})

	cases := map[string]struct {
		progress Progress
		want     bool
	}{
		"first of three":     {Progress{CategoryID: 5, Action: ActionCreate, Step: 1}, true},
		"middle of three":    {Progress{CategoryID: 5, Action: ActionCreate, Step: 2}, true},
		"last of three":      {Progress{CategoryID: 5, Action: ActionCreate, Step: 3}, false},
		"step beyond chain":  {Progress{CategoryID: 5, Action: ActionCreate, Step: 7}, false},
		"zero step clamps":   {Progress{CategoryID: 5, Action: ActionCreate, Step: 0}, true},
		"no rules finalizes": {Progress{CategoryID: 9, Action: ActionCreate, Step: 1}, false},
		"no category":        {Progress{CategoryID: 0, Action: ActionCreate, Step: 1}, false},
		"other action":       {Progress{CategoryID: 5, Action: ActionWriteOff, Step: 1}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := coordinator.ShouldAdvance(context.Background(), tc.progress)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

// Resolution and advancement agree: whenever ShouldAdvance says the chain
// continues, the next step must resolve to somebody.
func TestAdvancementAlwaysLeavesApprovers(t *testing.T) {
	rules := []Rule{
		{CategoryID: 5, Action: ActionCreate, StepOrder: 1, Target: TargetUser(3)},
		{CategoryID: 5, Action: ActionCreate, StepOrder: 2, Target: TargetUser(99)}, // dangling user
	}
	store := &memRules{rules: rules}
	coordinator := NewCoordinator(store)
	resolver := newTestResolver(rules, adminDirectory(), nil)

	advance, err := coordinator.ShouldAdvance(context.Background(),
		Progress{CategoryID: 5, Action: ActionCreate, Step: 1})
	require.NoError(t, err)
	require.True(t, advance)

	out, err := resolver.Approvers(context.Background(),
		Progress{CategoryID: 5, Action: ActionCreate, Step: 2})
	require.NoError(t, err)
	require.NotEmpty(t, out)
}
