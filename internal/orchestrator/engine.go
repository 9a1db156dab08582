package orchestrator

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/agentlab/internal/agents"
	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/execution"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/orchestrator/retry"
)

// EngineConfig configures a RetryEngine.
type EngineConfig struct {
	// MaxAttempts bounds executions per iteration; values below 1 mean 1.
	MaxAttempts int
	WorkDir     string
	EnvRoot     string
}

// EngineDeps are the collaborators of a RetryEngine.
type EngineDeps struct {
	Coder    CodeWriter
	Repairer Repairer
	Backend  Backend
	Attempts *retry.Manager
	Bus      *event.Bus
	Console  *console.Printer
	Logger   *logging.Logger
}

// Attempt is the terminal outcome of one iteration's retry loop.
type Attempt struct {
	// Code is the iteration's final program. It differs from the program
	// that produced Result when the repairer rewrote it.
	Code       model.CodeArtifact
	Result     model.ExecutionResult
	Executions int
	StopReason string
	Repaired   bool
}

// RetryEngine runs a program until it succeeds, turns out pending, stops
// changing or exhausts its attempt budget. Attempts are strictly sequential.
type RetryEngine struct {
	cfg      EngineConfig
	coder    CodeWriter
	repairer Repairer
	backend  Backend
	attempts *retry.Manager
	bus      *event.Bus
	console  *console.Printer
	logger   *logging.Logger
	track    *tracker
}

// NewRetryEngine creates a RetryEngine. A nil Attempts manager gets a fresh
// one.
func NewRetryEngine(cfg EngineConfig, deps EngineDeps) *RetryEngine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if deps.Attempts == nil {
		deps.Attempts = retry.NewManager()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &RetryEngine{
		cfg:      cfg,
		coder:    deps.Coder,
		repairer: deps.Repairer,
		backend:  deps.Backend,
		attempts: deps.Attempts,
		bus:      deps.Bus,
		console:  deps.Console,
		logger:   logger,
		track:    newTracker(deps.Bus, logger),
	}
}

// Attempts returns the per-iteration attempt history.
func (e *RetryEngine) Attempts() *retry.Manager {
	return e.attempts
}

// Run executes code for iteration. The coder repairs each failed attempt
// from its feedback, except after the last one. When the loop ends without
// success or a pending job the repairer gets one look at the code; a
// different program from it becomes the iteration's final code without
// being executed.
//
// Errors are returned only for failures that abort the run: an unreachable
// gateway or a back end that cannot be set up.
func (e *RetryEngine) Run(ctx context.Context, iteration int, code model.CodeArtifact) (Attempt, error) {
	logger := e.logger.WithIteration(iteration)
	e.attempts.Begin(iteration, e.cfg.MaxAttempts)

	current := code
	var result model.ExecutionResult
	stop := retry.StopExhausted

	for e.attempts.CanAttempt(iteration) {
		n := e.cfg.MaxAttempts - e.attempts.Remaining(iteration) + 1
		e.console.Role(agents.RoleExecutor, "execution attempt %d/%d (%s)", n, e.cfg.MaxAttempts, e.backend.Name())

		var err error
		result, err = e.execute(ctx, iteration, current)
		if err != nil {
			return Attempt{}, err
		}
		e.attempts.RecordAttempt(iteration, kindLabel(result), result.Success, result.Pending())
		e.bus.Publish(event.NewExecutionAttemptEvent(iteration, n, e.cfg.MaxAttempts, e.backend.Name(),
			result.Success, kindLabel(result), result.JobID))
		logger.Info("execution attempt finished",
			"attempt", n, "backend", e.backend.Name(), "success", result.Success, "kind", kindLabel(result))

		if result.Success {
			e.console.Success("Code executed successfully.")
			stop = retry.StopSucceeded
			break
		}
		if result.Pending() {
			e.console.Warn("Batch job %s is still pending; stopping retries for this iteration.", result.JobID)
			stop = retry.StopPending
			break
		}
		e.console.Warn("Execution attempt %d failed.", n)
		if e.attempts.Remaining(iteration) == 0 {
			break
		}

		repaired, err := e.improve(ctx, iteration, current, result)
		if err != nil {
			return Attempt{}, err
		}
		if repaired.Code == current.Code {
			e.console.Warn("Coder returned unchanged code; handing over to the repairer.")
			stop = retry.StopNoChange
			break
		}
		current = repaired
	}
	e.attempts.Stop(iteration, stop)

	state := e.attempts.GetState(iteration)
	out := Attempt{Code: current, Result: result, StopReason: stop}
	if state != nil {
		out.Executions = state.Attempts
	}
	if result.Success || result.Pending() || e.repairer == nil {
		return out, nil
	}

	fixed, err := e.repair(ctx, iteration, current, result)
	if err != nil {
		return Attempt{}, err
	}
	if fixed != "" && fixed != current.Code {
		out.Code = model.CodeArtifact{Code: fixed, Iteration: iteration}
		out.Repaired = true
		logger.Info("repairer rewrote the program", "chars", len(fixed))
	}
	return out, nil
}

func (e *RetryEngine) execute(ctx context.Context, iteration int, code model.CodeArtifact) (model.ExecutionResult, error) {
	ctx, finish := e.track.start(ctx, agents.RoleExecutor, "execute", iteration)
	result, err := e.backend.Execute(ctx, execution.Request{
		Code:      code.Code,
		WorkDir:   e.cfg.WorkDir,
		Iteration: iteration,
		EnvRoot:   e.cfg.EnvRoot,
	})
	meta := map[string]any{
		"backend": e.backend.Name(),
		"success": result.Success,
		"kind":    kindLabel(result),
	}
	if len(result.PackagesInstalled) > 0 {
		meta["packages_installed"] = result.PackagesInstalled
	}
	if result.JobID != "" {
		meta["job_id"] = result.JobID
	}
	finish(result.Transcript(), meta, err)
	return result, err
}

func (e *RetryEngine) improve(ctx context.Context, iteration int, code model.CodeArtifact, result model.ExecutionResult) (model.CodeArtifact, error) {
	ctx, finish := e.track.start(ctx, agents.RoleCoder, "improve_code", iteration)
	repaired, err := e.coder.ImproveCode(ctx, code.Code, result.Feedback(), iteration)
	finish(repaired.Code, map[string]any{"reason": "execution_failed"}, err)
	if err != nil {
		return model.CodeArtifact{}, fmt.Errorf("repair code after failed attempt: %w", err)
	}
	return repaired, nil
}

func (e *RetryEngine) repair(ctx context.Context, iteration int, code model.CodeArtifact, result model.ExecutionResult) (string, error) {
	ctx, finish := e.track.start(ctx, agents.RoleRepairer, "repair", iteration)
	fixed, err := e.repairer.Repair(ctx, code.Code, result.Feedback())
	finish(fixed, map[string]any{"changed": fixed != "" && fixed != code.Code}, err)
	if err != nil {
		return "", fmt.Errorf("last-resort repair: %w", err)
	}
	return fixed, nil
}

// kindLabel names an outcome for events and metrics. A successful local run
// carries no kind and is labeled "success".
func kindLabel(r model.ExecutionResult) string {
	if r.Kind == model.KindNone {
		if r.Success {
			return "success"
		}
		return "failed"
	}
	return string(r.Kind)
}
