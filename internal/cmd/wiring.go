package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/agentlab/internal/agents"
	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/execution"
	"github.com/Iron-Ham/agentlab/internal/llm"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/orchestrator"
	"github.com/Iron-Ham/agentlab/internal/orchestrator/budget"
	"github.com/Iron-Ham/agentlab/internal/store"
)

// resolvePaths makes the workspace and environment root absolute. Programs
// run with the workspace as their working directory, so the paths handed to
// them must not depend on it.
func resolvePaths(cfg *config.Config) error {
	for _, p := range []*string{&cfg.Run.WorkspaceDir, &cfg.Executor.EnvRoot} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// validateInputs aborts before any role runs when an input path is missing.
func validateInputs(pdfs []string, filesDir string) error {
	var missing []string
	for _, p := range pdfs {
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return errors.NewInputError("PDF file not found", errors.ErrInputNotFound).
			WithKind("pdf").WithPaths(missing...)
	}
	if filesDir != "" {
		info, err := os.Stat(filesDir)
		if err != nil || !info.IsDir() {
			return errors.NewInputError("files directory not found", errors.ErrInputNotFound).
				WithKind("files_dir").WithPaths(filesDir)
		}
	}
	return nil
}

// newLogger opens the run's debug log, or a no-op logger when logging is off.
func newLogger(cfg *config.Config, runDir string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(runDir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

// newBudget warns on the console when token thresholds are crossed.
func newBudget(cfg *config.Config, bus *event.Bus, printer *console.Printer, logger *logging.Logger) *budget.Manager {
	return budget.NewManagerFromConfig(cfg, bus, budget.Callbacks{
		OnBudgetWarning: func(total int64) {
			printer.Warn("Token usage passed the warning threshold: %s tokens.", humanize.Comma(total))
		},
		OnBudgetLimit: func(total int64) {
			printer.Error("Token usage passed the configured limit: %s tokens. The run continues.", humanize.Comma(total))
		},
	}, logger)
}

// openRegistry opens the job registry. A registry that cannot be opened is
// reported and the run continues without one.
func openRegistry(ctx context.Context, cfg *config.Config, printer *console.Printer, logger *logging.Logger) *store.Store {
	if cfg.Storage.RegistryPath == "" {
		return nil
	}
	st, err := store.Open(ctx, cfg.Storage.RegistryPath)
	if err != nil {
		logger.Warn("job registry unavailable", "path", cfg.Storage.RegistryPath, "error", err)
		printer.Warn("Job registry unavailable (%v); pending batch jobs cannot be resumed later.", err)
		return nil
	}
	return st
}

// backendDeps are the shared inputs of both execution back ends.
type backendDeps struct {
	gateway  llm.Gateway
	printer  *console.Printer
	logger   *logging.Logger
	bus      *event.Bus
	registry *store.Store
	runID    string
}

// newBackend builds the execution back end named by cfg.Executor.Backend.
func newBackend(cfg *config.Config, d backendDeps) (orchestrator.Backend, error) {
	runner := execution.NewPoolRunner(int64(cfg.Executor.PoolSize), nil)
	switch cfg.Executor.Backend {
	case execution.BackendLocal, "":
		return execution.NewLocalBackend(execution.LocalOptions{
			Interpreter: cfg.Executor.Interpreter,
			Runner:      runner,
			Gateway:     d.gateway,
			Temperature: cfg.LLM.Temperature.Execution,
			Console:     d.printer,
			Logger:      d.logger,
		}), nil
	case execution.BackendBatch:
		return newBatchBackend(cfg, runner, d), nil
	default:
		return nil, fmt.Errorf("unknown executor backend %q (want local or batch)", cfg.Executor.Backend)
	}
}

func newBatchBackend(cfg *config.Config, runner execution.CommandRunner, d backendDeps) *execution.BatchBackend {
	opts := execution.BatchOptions{
		Config:      cfg.Batch,
		Interpreter: cfg.Executor.Interpreter,
		Runner:      runner,
		Gateway:     d.gateway,
		Temperature: cfg.LLM.Temperature.Execution,
		Console:     d.printer,
		Logger:      d.logger,
		Bus:         d.bus,
		RunID:       d.runID,
	}
	// A nil *store.Store must not become a non-nil interface.
	if d.registry != nil {
		opts.Registry = d.registry
	}
	return execution.NewBatchBackend(opts)
}

// setVerbosity configures every worker at once.
func setVerbosity(verbose bool, workers ...agents.Verbosity) {
	if len(workers) == 0 {
		return
	}
	p := pool.New().WithMaxGoroutines(len(workers))
	for _, w := range workers {
		p.Go(func() { w.SetVerbose(verbose) })
	}
	p.Wait()
}

// reportRunError logs a failed run and tells the operator whether running
// again is likely to help.
func reportRunError(printer *console.Printer, logger *logging.Logger, err error) {
	logger.Error("run failed",
		"error", err,
		"severity", errors.GetSeverity(err).String(),
		"retryable", errors.IsRetryable(err),
		"fatal", errors.IsFatal(err))
	switch {
	case errors.Is(err, errors.ErrCanceled):
		printer.Warn("Run canceled.")
		return
	case errors.IsUserFacing(err):
		printer.Error("%v", err)
	}
	if errors.IsRetryable(err) {
		printer.Warn("The failure looks transient; running again may succeed.")
	}
}
