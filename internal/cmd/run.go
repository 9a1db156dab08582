package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentlab/internal/agents"
	"github.com/Iron-Ham/agentlab/internal/approval"
	"github.com/Iron-Ham/agentlab/internal/artifacts"
	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/convlog"
	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/llm"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/orchestrator"
	"github.com/Iron-Ham/agentlab/internal/telemetry"
	"github.com/Iron-Ham/agentlab/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the research pipeline on a topic",
	Long: `Run plans the work for a topic, then iterates: write the report, write
and execute the program, critique both and revise the plan. The run stops as
soon as the program succeeds, when a batch job is left pending, or when the
round budget is spent.

Examples:
  # Full pipeline with a PDF and a link as sources
  agentlab run --topic "protein folding" --pdfs paper.pdf --links https://example.com

  # Report only, no code
  agentlab run --topic "graph neural networks" --mode research_only

  # Unattended run on a PBS cluster
  agentlab run --topic "md simulation" --yes --backend batch --batch-options hpc.yaml

  # Summarize the top web results and stop
  agentlab run --topic "what is RLHF" --quick_search`,
	RunE: runRun,
}

var (
	runTopic        string
	runPDFs         []string
	runLinks        []string
	runFilesDir     string
	runQuickSearch  bool
	runMode         string
	runCondaEnv     string
	runNoVerbose    bool
	runYes          bool
	runBatchOptions string
	runBackend      string
	runMaxRounds    int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runTopic, "topic", "", "Research topic (required)")
	runCmd.Flags().StringSliceVar(&runPDFs, "pdfs", nil, "PDF files to use as sources")
	runCmd.Flags().StringSliceVar(&runLinks, "links", nil, "URLs to use as sources")
	runCmd.Flags().StringVar(&runFilesDir, "files_dir", "", "Directory whose files are listed as sources")
	runCmd.Flags().BoolVar(&runQuickSearch, "quick_search", false, "Summarize a web search for the topic and exit")
	runCmd.Flags().StringVar(&runMode, "mode", "", "research_only, code_only or both (default from config)")
	runCmd.Flags().StringVar(&runCondaEnv, "conda_env", "", "Environment root searched for the interpreter")
	runCmd.Flags().BoolVar(&runNoVerbose, "no-verbose", false, "Hide role previews")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Approve the plan and coding plan without asking")
	runCmd.Flags().StringVar(&runBatchOptions, "batch-options", "", "YAML file of batch scheduler options")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "Execution back end: local or batch (default from config)")
	runCmd.Flags().IntVar(&runMaxRounds, "max-rounds", 0, "Number of iterations (default from config)")
	_ = runCmd.MarkFlagRequired("topic")
}

// applyRunFlags overlays command-line flags on the loaded configuration.
func applyRunFlags(cfg *config.Config) error {
	if runMode != "" {
		cfg.Run.Mode = runMode
	}
	if runBackend != "" {
		cfg.Executor.Backend = runBackend
	}
	if runCondaEnv != "" {
		cfg.Executor.EnvRoot = runCondaEnv
	}
	if runMaxRounds > 0 {
		cfg.Run.MaxRounds = runMaxRounds
	}
	if runYes {
		cfg.Run.AutoApprove = true
	}
	if runNoVerbose {
		cfg.Run.Verbose = false
	}
	if runBatchOptions != "" {
		batch, err := config.LoadBatchOptions(runBatchOptions, cfg.Batch)
		if err != nil {
			return errors.NewInputError(err.Error(), errors.ErrInputNotFound).
				WithKind("batch_options").WithPaths(runBatchOptions)
		}
		cfg.Batch = batch
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}
	if err := resolvePaths(cfg); err != nil {
		return err
	}
	mode, err := model.ParseMode(cfg.Run.Mode)
	if err != nil {
		return errors.NewInputError(err.Error(), errors.ErrInvalidMode).WithKind("mode")
	}
	if err := validateInputs(runPDFs, runFilesDir); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()
	runDir := artifacts.RunDir(cfg.Run.OutputDir, time.Now())
	printer := console.New(cmd.OutOrStdout(), cfg.Run.Verbose)
	bus := event.NewBus()

	logger, err := newLogger(cfg, runDir)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer func() { _ = logger.Close() }()
	logger = logger.WithRun(runID)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Options{
			Endpoint:    cfg.Telemetry.Endpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     Version,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Warn("telemetry disabled", "error", err)
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(flushCtx)
			}()
		}
	}
	if recorder, err := telemetry.NewRecorder(telemetry.Meter(telemetry.Scope)); err == nil {
		recorder.Subscribe(bus)
	}

	tokens := newBudget(cfg, bus, printer, logger)
	client := llm.NewClient(cfg.LLM.URL, cfg.LLM.Model, cfg.LLM.Timeout(), llm.WithTokenHook(tokens.Observe))
	deps := agents.Deps{Gateway: client, Console: printer, Logger: logger}
	temps := cfg.LLM.Temperature

	gatherer := agents.NewGatherer(deps, temps.Research, nil, nil)
	if runQuickSearch {
		answer, err := gatherer.QuickSearch(ctx, runTopic)
		if err != nil {
			return err
		}
		printer.Block("Quick search", answer)
		return nil
	}

	planner := agents.NewPlanner(deps, temps.Research)
	writer := agents.NewWriter(deps, temps.Research)
	coder := agents.NewCoder(deps, temps.Coding)
	repairer := agents.NewRepairer(deps, temps.Review)
	critic := agents.NewCritic(deps, temps.Critic)
	setVerbosity(cfg.Run.Verbose, gatherer, planner, writer, coder, repairer, critic)

	printer.Header("agentlab run %s", runID)
	logger.Info("run configured", "topic", runTopic, "mode", mode, "backend", cfg.Executor.Backend, "run_dir", runDir)

	conv, err := convlog.Open(filepath.Join(runDir, convlog.FileName), runID)
	if err != nil {
		return err
	}
	defer func() { _ = conv.Close() }()
	conv.Subscribe(bus)

	sourceText, err := orchestrator.GatherSources(ctx, gatherer, agents.GatherRequest{
		Topic:      runTopic,
		PDFs:       runPDFs,
		Links:      runLinks,
		FilesDir:   runFilesDir,
		WorkingDir: ".",
	}, bus, logger)
	if err != nil {
		return fmt.Errorf("gather sources: %w", err)
	}

	var sink artifacts.Sink = artifacts.NewFileSink(runDir)
	if cfg.Storage.ObjectStore.Enabled {
		mirror, err := artifacts.NewObjectStoreSink(ctx, cfg.Storage.ObjectStore, runID)
		if err != nil {
			logger.Warn("artifact mirror disabled", "error", err)
			printer.Warn("Artifact mirror disabled: %v", err)
		} else {
			sink = artifacts.MultiSink{sink, mirror}
		}
	}

	registry := openRegistry(ctx, cfg, printer, logger)
	if registry != nil {
		defer func() { _ = registry.Close() }()
	}

	var backend orchestrator.Backend
	if mode.IncludesCode() {
		lock, err := workspace.Acquire(cfg.Run.WorkspaceDir, runID, logger)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()
		backend, err = newBackend(cfg, backendDeps{
			gateway:  client,
			printer:  printer,
			logger:   logger,
			bus:      bus,
			registry: registry,
			runID:    runID,
		})
		if err != nil {
			return err
		}
	}

	gate := approval.NewGate(approval.NewLinePrompter(cmd.InOrStdin(), cmd.OutOrStdout()), cfg.Run.AutoApprove)
	gate.SetOutput(cmd.OutOrStdout())
	if !cfg.Run.AutoApprove && !approval.Interactive(os.Stdin) {
		printer.Warn("Input is not a terminal; approval answers are read from the input stream.")
	}

	ctrlDeps := orchestrator.Deps{
		Planner:  planner,
		Writer:   writer,
		Coder:    coder,
		Repairer: repairer,
		Critic:   critic,
		Backend:  backend,
		Approver: gate,
		Sink:     sink,
		Budget:   tokens,
		Bus:      bus,
		Console:  printer,
		Logger:   logger,
	}
	if registry != nil {
		ctrlDeps.Runs = registry
	}
	controller, err := orchestrator.NewController(orchestrator.Options{
		RunID:                runID,
		Topic:                runTopic,
		Mode:                 mode,
		Sources:              sourceText,
		MaxRounds:            cfg.Run.MaxRounds,
		MaxExecutionAttempts: cfg.Run.MaxExecutionAttempts,
		WorkDir:              cfg.Run.WorkspaceDir,
		EnvRoot:              cfg.Executor.EnvRoot,
		OutputDir:            runDir,
	}, ctrlDeps)
	if err != nil {
		return err
	}

	state, err := controller.Run(ctx)
	printer.Info("artifacts: %s", runDir)
	printer.Info("conversation log: %s (%d entries)", filepath.Join(runDir, convlog.FileName), conv.Len())
	printer.Info("gateway calls: %d, tokens: %s", client.Usage().Calls(), humanize.Comma(client.Usage().TotalTokens()))
	if err != nil {
		reportRunError(printer, logger, err)
		return err
	}
	logger.Info("run complete", "outcome", state.Outcome(), "iterations", state.Iterations)
	return nil
}
