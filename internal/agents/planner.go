package agents

import (
	"context"

	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/prompt"
)

// Planner is the principal investigator: it writes the plan every other role
// follows and revises it between iterations.
type Planner struct {
	*worker
}

// NewPlanner creates a Planner sampling at temperature.
func NewPlanner(deps Deps, temperature float64) *Planner {
	return &Planner{worker: newWorker(RolePlanner, deps, temperature)}
}

// CreatePlan writes a plan for topic. When changes is non-empty the plan is
// rebuilt around those changes and the returned Plan carries a reasoning
// about them.
func (p *Planner) CreatePlan(ctx context.Context, sources, topic string, mode model.Mode, changes string) (model.Plan, error) {
	p.say("creating plan for %q", topic)
	text, err := p.generate(ctx, "create_plan", prompt.Plan(sources, topic, string(mode), changes))
	if err != nil {
		return model.Plan{}, err
	}
	plan := model.Plan{Text: text}

	if changes != "" {
		reasoning, err := p.generate(ctx, "plan_reasoning", prompt.PlanChangesReasoning(changes, topic, string(mode)))
		if err != nil {
			return model.Plan{}, err
		}
		plan.Reasoning = reasoning
	}

	p.preview("Plan", plan.Text)
	if plan.Reasoning != "" {
		p.preview("Reasoning about changes", plan.Reasoning)
	}
	return plan, nil
}

// RevisePlan folds rendered critic feedback into a new plan.
func (p *Planner) RevisePlan(ctx context.Context, sources, topic string, mode model.Mode, feedback string) (model.Plan, error) {
	p.say("revising plan from critic feedback")
	return p.CreatePlan(ctx, sources, topic, mode, feedback)
}
