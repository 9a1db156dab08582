package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/execution"
	"github.com/Iron-Ham/agentlab/internal/llm"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/model"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <job-id>",
	Short: "Resume monitoring a batch job left pending by an earlier run",
	Long: `Resume monitoring a batch job recorded in the job registry.

The job is polled with the configured check budget, its scheduler metadata
and logs are read once it leaves the queue, and the outcome is classified
and written back to the registry. A job that is still queued when the checks
run out stays pending and can be monitored again.

Examples:
  agentlab jobs
  agentlab monitor 4242.pbs
  agentlab monitor 4242.pbs --max-checks 120`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var monitorMaxChecks int

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().IntVar(&monitorMaxChecks, "max-checks", 0, "Status checks before giving up (default from config)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if monitorMaxChecks > 0 {
		cfg.Batch.MaxChecks = monitorMaxChecks
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	st, err := requireRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	rec, err := st.GetJob(ctx, args[0])
	if err != nil {
		return err
	}
	if !rec.Pending() {
		printJobOutcome(console.New(cmd.OutOrStdout(), true), rec.ID, model.ExecutionResult{
			Success:   rec.Success,
			Kind:      model.ErrorKind(rec.Kind),
			Reasoning: rec.Reasoning,
			JobID:     rec.ID,
		})
		return nil
	}
	if rec.Scheduler != "" {
		cfg.Batch.Scheduler = rec.Scheduler
	}

	printer := console.New(cmd.OutOrStdout(), cfg.Run.Verbose)
	logger := logging.NopLogger()
	client := llm.NewClient(cfg.LLM.URL, cfg.LLM.Model, cfg.LLM.Timeout())
	backend := newBatchBackend(cfg, execution.NewPoolRunner(int64(cfg.Executor.PoolSize), nil), backendDeps{
		gateway:  client,
		printer:  printer,
		logger:   logger,
		bus:      event.NewBus(),
		registry: st,
		runID:    rec.RunID,
	})

	printer.Header("Monitoring job %s (%s, iteration %d)", rec.ID, rec.Scheduler, rec.Iteration+1)
	result, err := backend.Monitor(ctx, execution.JobFromRecord(rec))
	if err != nil {
		if errors.IsUserFacing(err) {
			printer.Error("%v", err)
		}
		return err
	}
	printJobOutcome(printer, rec.ID, result)
	return nil
}

func printJobOutcome(p *console.Printer, id string, r model.ExecutionResult) {
	switch {
	case r.Success:
		p.Success("Job %s succeeded.", id)
	case r.Pending():
		p.Warn("Job %s is still pending. Resume with: agentlab monitor %s", id, id)
	default:
		p.Error("Job %s failed (%s).", id, r.Kind)
	}
	if r.Reasoning != "" {
		p.Block("Reasoning", r.Reasoning)
	}
}
