// Package internal contains integration tests that run the controller with
// the real roles, local back end, artifact sink, conversation log and job
// registry wired together the way the run command wires them.
package internal

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/agentlab/internal/agents"
	"github.com/Iron-Ham/agentlab/internal/approval"
	"github.com/Iron-Ham/agentlab/internal/artifacts"
	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/convlog"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/execution"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/orchestrator"
	"github.com/Iron-Ham/agentlab/internal/store"
	"github.com/Iron-Ham/agentlab/internal/testutil"
)

// scriptedRunner replays outputs for interpreter runs and repeats the last.
type scriptedRunner struct {
	mu      sync.Mutex
	outputs []execution.Output
	calls   []execution.Command
}

func (r *scriptedRunner) Run(ctx context.Context, cmd execution.Command) execution.Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	i := min(len(r.calls)-1, len(r.outputs)-1)
	return r.outputs[i]
}

type pipeline struct {
	controller *orchestrator.Controller
	runner     *scriptedRunner
	registry   *store.Store
	conv       *convlog.Log
	runDir     string
}

func newPipeline(t *testing.T, rounds int, outputs ...execution.Output) *pipeline {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	runDir := filepath.Join(root, "output", "run_test")

	gateway := testutil.NewGateway().Default("```python\nprint('hello')\n```")
	printer := console.Discard()
	logger := logging.NopLogger()
	bus := event.NewBus()

	conv, err := convlog.Open(filepath.Join(runDir, convlog.FileName), "run-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conv.Close() })
	conv.Subscribe(bus)

	registry, err := store.Open(ctx, filepath.Join(root, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	runner := &scriptedRunner{outputs: outputs}
	backend := execution.NewLocalBackend(execution.LocalOptions{
		Interpreter: "python",
		Runner:      runner,
		Gateway:     gateway,
		Console:     printer,
		Logger:      logger,
	})

	deps := agents.Deps{Gateway: gateway, Console: printer, Logger: logger}
	controller, err := orchestrator.NewController(orchestrator.Options{
		RunID:                "run-1",
		Topic:                "numerical integration",
		Mode:                 model.ModeCodeOnly,
		MaxRounds:            rounds,
		MaxExecutionAttempts: 2,
		WorkDir:              filepath.Join(root, "workspace"),
		OutputDir:            runDir,
	}, orchestrator.Deps{
		Planner:  agents.NewPlanner(deps, 0.3),
		Coder:    agents.NewCoder(deps, 0.2),
		Repairer: agents.NewRepairer(deps, 0.1),
		Critic:   agents.NewCritic(deps, 0.4),
		Backend:  backend,
		Approver: approval.NewGate(nil, true),
		Sink:     artifacts.NewFileSink(runDir),
		Runs:     registry,
		Bus:      bus,
		Console:  printer,
		Logger:   logger,
	})
	require.NoError(t, err)

	return &pipeline{controller: controller, runner: runner, registry: registry, conv: conv, runDir: runDir}
}

func TestPipeline_SucceedsOnFirstExecution(t *testing.T) {
	p := newPipeline(t, 3, execution.Output{Stdout: "hello\n"})

	state, err := p.controller.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSucceeded, state.Outcome())
	assert.Equal(t, 1, state.Iterations)
	require.Len(t, p.runner.calls, 1)
	assert.Equal(t, "python", p.runner.calls[0].Name)

	code := testutil.ReadFile(t, filepath.Join(p.runDir, "code_iteration_1.py"))
	assert.Equal(t, "print('hello')", strings.TrimSpace(code))
	assert.FileExists(t, filepath.Join(p.runDir, "execution_result_1.txt"))

	run, err := p.registry.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, string(model.OutcomeSucceeded), run.Outcome)
	assert.Equal(t, 1, run.Iterations)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestPipeline_ConversationLogRecordsEveryRole(t *testing.T) {
	p := newPipeline(t, 1, execution.Output{Stdout: "hello\n"})

	_, err := p.controller.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.conv.Close())

	entries, err := convlog.ReadFile(filepath.Join(p.runDir, convlog.FileName))
	require.NoError(t, err)

	roles := make(map[string]bool)
	for _, e := range entries {
		roles[e.Role] = true
		assert.Equal(t, "run-1", e.RunID)
	}
	for _, role := range []string{"planner", "coder", "executor", "critic"} {
		assert.True(t, roles[role], "missing %s entries", role)
	}
}

func TestPipeline_FailingProgramExhaustsRounds(t *testing.T) {
	p := newPipeline(t, 2, execution.Output{Stderr: "Traceback (most recent call last):\nValueError: bad input\n", ExitCode: 1})

	state, err := p.controller.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFailed, state.Outcome())
	assert.Equal(t, 2, state.Iterations)
	// The scripted coder always returns the same program, so each round
	// stops after one execution.
	assert.Len(t, p.runner.calls, 2)

	result := testutil.ReadFile(t, filepath.Join(p.runDir, "execution_result_2.txt"))
	assert.Contains(t, result, "ValueError: bad input")

	run, err := p.registry.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, string(model.OutcomeFailed), run.Outcome)
}
