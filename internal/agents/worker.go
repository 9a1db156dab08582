// Package agents implements the role workers of the pipeline: Planner,
// Gatherer, Writer, Coder, Repairer and Critic. Each worker owns its gateway
// handle, its sampling temperature and its verbosity flag; none of them
// shares state with another.
package agents

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/llm"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/util"
)

// Role names, used in logs, events and the conversation log.
const (
	RolePlanner  = "planner"
	RoleGatherer = "gatherer"
	RoleWriter   = "writer"
	RoleCoder    = "coder"
	RoleExecutor = "executor"
	RoleRepairer = "repairer"
	RoleCritic   = "critic"
)

// Deps are the collaborators shared by every worker.
type Deps struct {
	Gateway llm.Gateway
	Console *console.Printer
	Logger  *logging.Logger
}

// Verbosity is implemented by every worker so the controller can configure
// them all at startup.
type Verbosity interface {
	Name() string
	SetVerbose(v bool)
}

type worker struct {
	name        string
	gateway     llm.Gateway
	temperature float64
	console     *console.Printer
	logger      *logging.Logger
	verbose     atomic.Bool
}

func newWorker(name string, deps Deps, temperature float64) *worker {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	w := &worker{
		name:        name,
		gateway:     deps.Gateway,
		temperature: temperature,
		console:     deps.Console,
		logger:      logger.WithRole(name),
	}
	w.verbose.Store(true)
	return w
}

// Name returns the role name.
func (w *worker) Name() string {
	return w.name
}

// SetVerbose toggles progress output for this worker.
func (w *worker) SetVerbose(v bool) {
	w.verbose.Store(v)
}

// Verbose reports whether progress output is on.
func (w *worker) Verbose() bool {
	return w.verbose.Load()
}

func (w *worker) say(format string, args ...any) {
	if w.verbose.Load() {
		w.console.Role(w.name, format, args...)
	}
}

func (w *worker) preview(label, text string) {
	if w.verbose.Load() {
		w.console.Preview(label, text)
	}
}

// generate sends prompt at the worker's temperature and strips any
// reasoning block from the reply.
func (w *worker) generate(ctx context.Context, op, prompt string) (string, error) {
	return w.generateAt(ctx, op, prompt, w.temperature)
}

func (w *worker) generateAt(ctx context.Context, op, prompt string, temperature float64) (string, error) {
	start := time.Now()
	text, err := w.gateway.Generate(ctx, llm.Request{Prompt: prompt, Temperature: temperature})
	if err != nil {
		w.logger.Error("generation failed", "operation", op, "error", err)
		return "", err
	}
	w.logger.Debug("generation complete",
		"operation", op,
		"prompt_chars", len(prompt),
		"response_chars", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return util.StripThinking(text), nil
}
