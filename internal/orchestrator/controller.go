package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/agentlab/internal/agents"
	"github.com/Iron-Ham/agentlab/internal/approval"
	"github.com/Iron-Ham/agentlab/internal/artifacts"
	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/orchestrator/budget"
	"github.com/Iron-Ham/agentlab/internal/orchestrator/retry"
	"github.com/Iron-Ham/agentlab/internal/store"
)

// Options describes one run.
type Options struct {
	RunID   string
	Topic   string
	Mode    model.Mode
	Sources string
	// MaxRounds bounds the iterations; values below 1 mean 1.
	MaxRounds            int
	MaxExecutionAttempts int
	WorkDir              string
	EnvRoot              string
	// OutputDir is recorded in the registry.
	OutputDir string
}

// Deps are the collaborators of a Controller. Roles the mode does not use
// may be nil, as may Sink, Runs and Budget.
type Deps struct {
	Planner  Planner
	Writer   Writer
	Coder    Coder
	Repairer Repairer
	Critic   Critic
	Backend  Backend
	Approver Approver
	Sink     artifacts.Sink
	Runs     RunRecorder
	Budget   *budget.Manager
	Attempts *retry.Manager
	Bus      *event.Bus
	Console  *console.Printer
	Logger   *logging.Logger
}

// Controller is the iteration controller. It owns the RunState of a single
// run and calls the roles one after another.
type Controller struct {
	opts   Options
	deps   Deps
	engine *RetryEngine
	track  *tracker
	logger *logging.Logger
}

// NewController validates the wiring for opts.Mode and creates a Controller.
func NewController(opts Options, deps Deps) (*Controller, error) {
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}
	if opts.Mode == "" {
		opts.Mode = model.ModeBoth
	}
	if deps.Planner == nil || deps.Critic == nil || deps.Approver == nil {
		return nil, errors.New("planner, critic and approver are required")
	}
	if opts.Mode.IncludesResearch() && deps.Writer == nil {
		return nil, fmt.Errorf("mode %s requires a writer", opts.Mode)
	}
	if opts.Mode.IncludesCode() && (deps.Coder == nil || deps.Backend == nil) {
		return nil, fmt.Errorf("mode %s requires a coder and an execution back end", opts.Mode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.RunID != "" {
		logger = logger.WithRun(opts.RunID)
	}

	c := &Controller{
		opts:   opts,
		deps:   deps,
		track:  newTracker(deps.Bus, logger),
		logger: logger,
	}
	if opts.Mode.IncludesCode() {
		c.engine = NewRetryEngine(EngineConfig{
			MaxAttempts: opts.MaxExecutionAttempts,
			WorkDir:     opts.WorkDir,
			EnvRoot:     opts.EnvRoot,
		}, EngineDeps{
			Coder:    deps.Coder,
			Repairer: deps.Repairer,
			Backend:  deps.Backend,
			Attempts: deps.Attempts,
			Bus:      deps.Bus,
			Console:  deps.Console,
			Logger:   logger,
		})
	}
	return c, nil
}

// Engine returns the retry engine, or nil when the mode has no code.
func (c *Controller) Engine() *RetryEngine {
	return c.engine
}

// Run gets the plan approved and walks the iterations. It stops early when
// an execution succeeds or a batch job is left pending. The returned state
// is never nil, even with an error, so callers can report how far the run
// got.
func (c *Controller) Run(ctx context.Context) (*model.RunState, error) {
	state := &model.RunState{
		Topic:   c.opts.Topic,
		Mode:    c.opts.Mode,
		Sources: c.opts.Sources,
	}

	c.recordStart(ctx)
	c.deps.Bus.Publish(event.NewRunStartedEvent(c.opts.RunID, c.opts.Topic, string(c.opts.Mode), c.opts.MaxRounds))
	c.logger.Info("run started", "topic", c.opts.Topic, "mode", c.opts.Mode, "max_rounds", c.opts.MaxRounds)

	err := c.run(ctx, state)

	outcome := state.Outcome()
	if err != nil {
		outcome = model.OutcomeFailed
	}
	c.recordFinish(outcome, state.Iterations)
	c.deps.Bus.Publish(event.NewRunCompletedEvent(c.opts.RunID, string(outcome), state.Iterations, err))
	if err != nil {
		c.logger.Error("run aborted", "error", err, "iterations", state.Iterations)
		return state, err
	}
	c.logger.Info("run finished", "outcome", outcome, "iterations", state.Iterations)
	c.report(state, outcome)
	return state, nil
}

func (c *Controller) run(ctx context.Context, state *model.RunState) error {
	plan, err := c.approvePlan(ctx, state)
	if err != nil {
		return err
	}
	state.Plan = plan

	for i := 0; i < c.opts.MaxRounds; i++ {
		state.Iteration = i
		c.deps.Bus.Publish(event.NewIterationStartedEvent(i, c.opts.MaxRounds))
		c.deps.Console.Header("Iteration %d/%d", i+1, c.opts.MaxRounds)

		if err := c.iterate(ctx, state); err != nil {
			return fmt.Errorf("iteration %d: %w", i+1, err)
		}
		state.Iterations = i + 1

		done := state.Done()
		success := state.Execution != nil && state.Execution.Success
		pending := state.Execution != nil && state.Execution.Pending()
		c.deps.Bus.Publish(event.NewIterationCompletedEvent(i, success, pending, done))
		if done {
			break
		}

		if i+1 < c.opts.MaxRounds && state.Critique != nil && !state.Critique.Empty() {
			plan, err := c.revisePlan(ctx, state)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", i+1, err)
			}
			state.Plan = plan
		}
	}
	return nil
}

// iterate produces the round's artifacts, has them critiqued and persists
// them.
func (c *Controller) iterate(ctx context.Context, state *model.RunState) error {
	i := state.Iteration

	if state.Mode.IncludesResearch() {
		research, err := c.research(ctx, state)
		if err != nil {
			return err
		}
		state.Research = &research
	}

	if state.Mode.IncludesCode() {
		code, err := c.code(ctx, state)
		if err != nil {
			return err
		}
		attempt, err := c.engine.Run(ctx, i, code)
		if err != nil {
			return err
		}
		state.Code = &attempt.Code
		state.Execution = &attempt.Result
	}

	critique, err := c.critique(ctx, state)
	if err != nil {
		return err
	}
	state.Critique = &critique

	c.persist(ctx, state)
	return nil
}

func (c *Controller) approvePlan(ctx context.Context, state *model.RunState) (model.Plan, error) {
	changes := ""
	for {
		tctx, finish := c.track.start(ctx, agents.RolePlanner, "create_plan", 0)
		plan, err := c.deps.Planner.CreatePlan(tctx, state.Sources, state.Topic, state.Mode, changes)
		finish(plan.Text, planMeta(plan, changes), err)
		if err != nil {
			return model.Plan{}, fmt.Errorf("create plan: %w", err)
		}

		c.deps.Console.Block("Plan", plan.Text)
		if plan.Reasoning != "" {
			c.deps.Console.Block("Reasoning about changes", plan.Reasoning)
		}

		decision, err := c.deps.Approver.Confirm(ctx, approval.PlanQuestion)
		if err != nil {
			return model.Plan{}, fmt.Errorf("plan approval: %w", err)
		}
		if decision.Approved {
			c.logger.Info("plan approved")
			return plan, nil
		}
		changes = decision.Changes
		c.logger.Info("plan rejected", "changes", changes)
	}
}

func (c *Controller) approveCodingPlan(ctx context.Context, state *model.RunState) (string, error) {
	i := state.Iteration
	tctx, finish := c.track.start(ctx, agents.RoleCoder, "create_coding_plan", i)
	codingPlan, err := c.deps.Coder.CreateCodingPlan(tctx, state.Sources, state.Topic, state.Plan.Text)
	finish(codingPlan, nil, err)
	if err != nil {
		return "", fmt.Errorf("create coding plan: %w", err)
	}

	for {
		c.deps.Console.Block("Coding plan", codingPlan)
		decision, err := c.deps.Approver.Confirm(ctx, approval.CodingPlanQuestion)
		if err != nil {
			return "", fmt.Errorf("coding plan approval: %w", err)
		}
		if decision.Approved {
			c.logger.Info("coding plan approved")
			return codingPlan, nil
		}

		tctx, finish := c.track.start(ctx, agents.RoleCoder, "improve_coding_plan", i)
		revised, err := c.deps.Coder.ImproveCodingPlan(tctx, decision.Changes, codingPlan)
		finish(revised, map[string]any{"feedback": decision.Changes}, err)
		if err != nil {
			return "", fmt.Errorf("improve coding plan: %w", err)
		}
		codingPlan = revised
	}
}

func (c *Controller) research(ctx context.Context, state *model.RunState) (model.ResearchArtifact, error) {
	i := state.Iteration
	if state.Research == nil {
		ctx, finish := c.track.start(ctx, agents.RoleWriter, "draft", i)
		draft, err := c.deps.Writer.Draft(ctx, state.Sources, state.Topic, state.Plan.Text, i)
		finish(draft.Content, nil, err)
		if err != nil {
			return model.ResearchArtifact{}, fmt.Errorf("draft report: %w", err)
		}
		return draft, nil
	}

	feedback := ""
	if state.Critique != nil {
		feedback = state.Critique.DocumentFeedback
	}
	ctx, finish := c.track.start(ctx, agents.RoleWriter, "improve", i)
	improved, err := c.deps.Writer.Improve(ctx, state.Research.Content, feedback, i)
	finish(improved.Content, nil, err)
	if err != nil {
		return model.ResearchArtifact{}, fmt.Errorf("improve report: %w", err)
	}
	return improved, nil
}

// code drafts the first program after the coding plan is approved, and
// refines the previous round's program afterwards.
func (c *Controller) code(ctx context.Context, state *model.RunState) (model.CodeArtifact, error) {
	i := state.Iteration
	if state.Code == nil {
		codingPlan, err := c.approveCodingPlan(ctx, state)
		if err != nil {
			return model.CodeArtifact{}, err
		}
		ctx, finish := c.track.start(ctx, agents.RoleCoder, "create_code", i)
		code, err := c.deps.Coder.CreateCode(ctx, state.Sources, state.Topic, state.Plan.Text, codingPlan, i)
		finish(code.Code, nil, err)
		if err != nil {
			return model.CodeArtifact{}, fmt.Errorf("create code: %w", err)
		}
		return code, nil
	}

	feedback := ""
	if state.Critique != nil {
		feedback = model.RenderSections(state.Critique.CodeSections())
	}
	ctx, finish := c.track.start(ctx, agents.RoleCoder, "improve_code", i)
	code, err := c.deps.Coder.ImproveCode(ctx, state.Code.Code, feedback, i)
	finish(code.Code, map[string]any{"reason": "critique"}, err)
	if err != nil {
		return model.CodeArtifact{}, fmt.Errorf("improve code: %w", err)
	}
	return code, nil
}

func (c *Controller) critique(ctx context.Context, state *model.RunState) (model.CritiqueBundle, error) {
	in := agents.ReviewInput{Sources: state.Sources}
	if state.Research != nil {
		in.Report = state.Research.Content
	}
	if state.Code != nil {
		in.Code = state.Code.Code
	}
	if state.Execution != nil {
		in.Transcript = state.Execution.Transcript()
		in.Reasoning = state.Execution.Reasoning
	}

	ctx, finish := c.track.start(ctx, agents.RoleCritic, "review", state.Iteration)
	bundle, err := c.deps.Critic.Review(ctx, in)
	finish(bundle.Render(), map[string]any{"sections": len(bundle.Sections())}, err)
	if err != nil {
		return model.CritiqueBundle{}, fmt.Errorf("critique: %w", err)
	}
	if !bundle.Empty() {
		c.deps.Console.Block("Critique", bundle.Render())
	}
	return bundle, nil
}

func (c *Controller) revisePlan(ctx context.Context, state *model.RunState) (model.Plan, error) {
	ctx, finish := c.track.start(ctx, agents.RolePlanner, "revise_plan", state.Iteration)
	plan, err := c.deps.Planner.RevisePlan(ctx, state.Sources, state.Topic, state.Mode, state.Critique.Render())
	finish(plan.Text, nil, err)
	if err != nil {
		return model.Plan{}, fmt.Errorf("revise plan: %w", err)
	}
	return plan, nil
}

// persist hands the round's artifacts to the sink. A failing sink is
// reported but does not stop the run.
func (c *Controller) persist(ctx context.Context, state *model.RunState) {
	if c.deps.Sink == nil {
		return
	}
	it := artifacts.Iteration{Index: state.Iteration}
	if state.Research != nil {
		it.Report = state.Research.Content
	}
	if state.Code != nil {
		it.Code = state.Code.Code
	}
	if state.Execution != nil {
		it.Execution = state.Execution.Feedback()
	}

	saved, err := c.deps.Sink.SaveIteration(ctx, it)
	if err != nil {
		c.logger.Warn("saving iteration artifacts failed", "iteration", state.Iteration, "error", err)
		c.deps.Console.Warn("Could not save every artifact of iteration %d: %v", state.Iteration+1, err)
	}
	for _, path := range saved {
		c.deps.Console.Info("saved %s", path)
	}
}

func (c *Controller) recordStart(ctx context.Context) {
	if c.deps.Runs == nil || c.opts.RunID == "" {
		return
	}
	err := c.deps.Runs.CreateRun(ctx, store.Run{
		ID:        c.opts.RunID,
		Topic:     c.opts.Topic,
		Mode:      string(c.opts.Mode),
		OutputDir: c.opts.OutputDir,
		StartedAt: time.Now(),
	})
	if err != nil {
		c.logger.Warn("recording run failed", "error", err)
	}
}

// recordFinish uses a fresh context so an interrupted run is still closed
// in the registry.
func (c *Controller) recordFinish(outcome model.Outcome, iterations int) {
	if c.deps.Runs == nil || c.opts.RunID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.deps.Runs.FinishRun(ctx, c.opts.RunID, string(outcome), iterations); err != nil {
		c.logger.Warn("finishing run record failed", "error", err)
	}
}

// report prints the final status of a run.
func (c *Controller) report(state *model.RunState, outcome model.Outcome) {
	switch outcome {
	case model.OutcomeSucceeded:
		c.deps.Console.Success("Run succeeded after %d iteration(s).", state.Iterations)
	case model.OutcomePending:
		c.deps.Console.Warn("Batch job %s is still pending. Resume with: agentlab monitor %s",
			state.Execution.JobID, state.Execution.JobID)
	case model.OutcomeFailed:
		c.deps.Console.Error("Code did not run successfully within %d iteration(s).", state.Iterations)
	default:
		c.deps.Console.Success("Run completed after %d iteration(s).", state.Iterations)
	}
	if b := c.deps.Budget; b != nil {
		c.deps.Console.Info("tokens used: %d", b.Tokens())
		if b.Exceeded() {
			c.deps.Console.Warn("Token limit was exceeded during this run.")
		}
	}
}

func planMeta(plan model.Plan, changes string) map[string]any {
	if changes == "" {
		return nil
	}
	return map[string]any{"changes": changes, "reasoning": plan.Reasoning}
}
