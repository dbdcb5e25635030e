package workflow

import "context"

// Coordinator decides whether an approval advances the step counter or
// finalizes the pipeline. It only ever reasons about the step counter; the
// owning lifecycle applies whatever terminal transition its workflow calls
// for when ShouldAdvance returns false.
type Coordinator struct {
	rules RulePort
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(rules RulePort) *Coordinator {
	return &Coordinator{rules: rules}
}

// ShouldAdvance reports whether a step remains after the current one.
// A pipeline with no configured rules finalizes on the first approval.
func (c *Coordinator) ShouldAdvance(ctx context.Context, p Progress) (bool, error) {
	if p.CategoryID == 0 {
		return false, nil
	}
	rules, err := c.rules.ListRules(ctx, p.CategoryID, p.Action)
	if err != nil {
		return false, err
	}
	if len(rules) == 0 {
		return false, nil
	}
	step := p.Step
	if step < 1 {
		step = 1
	}
	return step < len(rules), nil
}
