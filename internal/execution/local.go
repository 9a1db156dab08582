package execution

import (
	"context"
	"regexp"
	"strings"

	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/llm"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/prompt"
	"github.com/Iron-Ham/agentlab/internal/util"
)

var missingModuleRe = regexp.MustCompile(`No module named ['"]([^'"]+)['"]`)

// MissingModules returns the module names reported missing in stderr,
// deduplicated in first-seen order.
func MissingModules(stderr string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range missingModuleRe.FindAllStringSubmatch(stderr, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// LocalOptions configures a LocalBackend.
type LocalOptions struct {
	// Interpreter is used when the request's environment root has none.
	Interpreter string
	Runner      CommandRunner
	// Gateway resolves module names and explains failures.
	Gateway     llm.Gateway
	Temperature float64
	Console     *console.Printer
	Logger      *logging.Logger
}

// LocalBackend runs programs as subprocesses. When a run fails on missing
// modules it asks the gateway for the pip package of each module, installs
// them in one pip call and runs the program once more.
type LocalBackend struct {
	opts    LocalOptions
	logger  *logging.Logger
	counter counter
}

// NewLocalBackend creates a LocalBackend.
func NewLocalBackend(opts LocalOptions) *LocalBackend {
	if opts.Runner == nil {
		opts.Runner = NewPoolRunner(DefaultPoolSize, nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LocalBackend{opts: opts, logger: logger.With("backend", BackendLocal)}
}

// Name returns "local".
func (b *LocalBackend) Name() string { return BackendLocal }

// Executions returns how many programs this back end has written.
func (b *LocalBackend) Executions() int { return b.counter.Count() }

// Execute writes the program, runs it and repairs missing dependencies.
func (b *LocalBackend) Execute(ctx context.Context, req Request) (model.ExecutionResult, error) {
	req, err := req.absolute(BackendLocal)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	seq := b.counter.next()
	script, err := writeScript(req.WorkDir, req.Code, req.Iteration, seq, BackendLocal)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	python := ResolveInterpreter(req.EnvRoot, b.opts.Interpreter)
	run := Command{Name: python, Args: []string{script}, Dir: req.WorkDir}

	b.opts.Console.Role("executor", "running script %s", script)
	out := b.opts.Runner.Run(ctx, run)
	b.logger.Info("script finished", "script", script, "exit_code", out.ExitCode, "iteration", req.Iteration)

	var installed []string
	if !out.OK() {
		if missing := MissingModules(out.Stderr); len(missing) > 0 {
			b.opts.Console.Role("executor", "detected missing modules: %s", strings.Join(missing, ", "))
			packages, err := b.resolvePackages(ctx, missing)
			if err != nil {
				return model.ExecutionResult{}, err
			}
			installed = b.install(ctx, python, req.WorkDir, packages)
			if len(installed) > 0 {
				out = b.opts.Runner.Run(ctx, run)
				b.logger.Info("script re-run after install", "script", script, "exit_code", out.ExitCode)
			}
		}
	}

	result := model.ExecutionResult{
		Success:           out.OK(),
		Stdout:            out.Stdout,
		Stderr:            out.Stderr,
		PackagesInstalled: installed,
	}
	if !out.OK() {
		result.Kind = model.KindExecutionError
		reasoning, err := b.generate(ctx, prompt.ExecutionFailureReasoning(req.Code, out.Stdout, out.Stderr))
		if err != nil {
			return model.ExecutionResult{}, err
		}
		result.Reasoning = reasoning
		b.opts.Console.Preview("Executor reasoning about failure", reasoning)
	}
	return result, nil
}

// resolvePackages asks once per module for its pip package name. Blank and
// duplicate answers are dropped.
func (b *LocalBackend) resolvePackages(ctx context.Context, modules []string) ([]string, error) {
	var packages []string
	seen := make(map[string]bool)
	for _, mod := range modules {
		pkg, err := b.generate(ctx, prompt.PackageResolution(mod))
		if err != nil {
			return nil, err
		}
		pkg = strings.TrimSpace(strings.Trim(strings.TrimSpace(pkg), "`\"'"))
		if pkg == "" || seen[pkg] {
			continue
		}
		seen[pkg] = true
		packages = append(packages, pkg)
		b.logger.Debug("resolved module", "module", mod, "package", pkg)
	}
	return packages, nil
}

// install runs one pip invocation for all packages and returns the package
// names it attempted. Installation failures are logged, not returned; the
// re-run reveals whether they mattered.
func (b *LocalBackend) install(ctx context.Context, python, dir string, packages []string) []string {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"-m", "pip", "install"}, packages...)
	out := b.opts.Runner.Run(ctx, Command{Name: python, Args: args, Dir: dir})
	if !out.OK() {
		b.logger.Warn("package install failed", "packages", packages, "exit_code", out.ExitCode,
			"stderr", util.Tail(out.Stderr, 2000))
	}
	b.opts.Console.Role("executor", "installed packages: %s", strings.Join(packages, ", "))
	b.opts.Console.Preview("Install log", out.Stdout+"\n"+out.Stderr)
	return packages
}

func (b *LocalBackend) generate(ctx context.Context, p string) (string, error) {
	text, err := b.opts.Gateway.Generate(ctx, llm.Request{Prompt: p, Temperature: b.opts.Temperature})
	if err != nil {
		return "", err
	}
	return util.StripThinking(text), nil
}
