// Package orchestrator drives a run: it owns the RunState, walks the
// iterations, runs the execution retry engine and persists what each round
// produced. It depends on the roles only through the small interfaces below,
// so the local and batch back ends are interchangeable.
package orchestrator

import (
	"context"

	"github.com/Iron-Ham/agentlab/internal/agents"
	"github.com/Iron-Ham/agentlab/internal/approval"
	"github.com/Iron-Ham/agentlab/internal/execution"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/store"
)

// SourceGatherer assembles the sources every other role reads.
type SourceGatherer interface {
	GatherSources(ctx context.Context, req agents.GatherRequest) (string, error)
}

// Planner writes and revises the plan every role follows.
type Planner interface {
	// CreatePlan writes a plan. A non-empty changes rebuilds the plan around
	// the operator's requested changes.
	CreatePlan(ctx context.Context, sources, topic string, mode model.Mode, changes string) (model.Plan, error)

	// RevisePlan folds rendered critic feedback into a new plan.
	RevisePlan(ctx context.Context, sources, topic string, mode model.Mode, feedback string) (model.Plan, error)
}

// Writer drafts and refines the report.
type Writer interface {
	Draft(ctx context.Context, sources, topic, plan string, iteration int) (model.ResearchArtifact, error)
	Improve(ctx context.Context, draft, feedback string, iteration int) (model.ResearchArtifact, error)
}

// CodingPlanner produces the coding plan approved before the first draft.
type CodingPlanner interface {
	CreateCodingPlan(ctx context.Context, sources, topic, plan string) (string, error)
	ImproveCodingPlan(ctx context.Context, feedback, codingPlan string) (string, error)
}

// CodeWriter drafts programs and repairs them from feedback.
type CodeWriter interface {
	CreateCode(ctx context.Context, sources, topic, plan, codingPlan string, iteration int) (model.CodeArtifact, error)
	ImproveCode(ctx context.Context, code, feedback string, iteration int) (model.CodeArtifact, error)
}

// Coder is the full coding role.
type Coder interface {
	CodingPlanner
	CodeWriter
}

// Repairer is the last resort after the attempt budget is spent.
type Repairer interface {
	Repair(ctx context.Context, code, transcript string) (string, error)
}

// Critic reviews an iteration's artifacts.
type Critic interface {
	Review(ctx context.Context, in agents.ReviewInput) (model.CritiqueBundle, error)
}

// Backend executes programs. Both execution back ends satisfy it.
type Backend interface {
	Name() string
	Execute(ctx context.Context, req execution.Request) (model.ExecutionResult, error)
}

// Approver blocks until the operator answers a yes/no question.
type Approver interface {
	Confirm(ctx context.Context, q approval.Question) (approval.Decision, error)
}

// RunRecorder keeps the run's row in the registry.
type RunRecorder interface {
	CreateRun(ctx context.Context, r store.Run) error
	FinishRun(ctx context.Context, id, outcome string, iterations int) error
}

var (
	_ SourceGatherer = (*agents.Gatherer)(nil)
	_ Planner        = (*agents.Planner)(nil)
	_ Writer         = (*agents.Writer)(nil)
	_ Coder          = (*agents.Coder)(nil)
	_ Repairer       = (*agents.Repairer)(nil)
	_ Critic         = (*agents.Critic)(nil)
	_ Backend        = (*execution.LocalBackend)(nil)
	_ Backend        = (*execution.BatchBackend)(nil)
	_ Approver       = (*approval.Gate)(nil)
	_ RunRecorder    = (*store.Store)(nil)
)
