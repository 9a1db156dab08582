package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List batch jobs recorded in the job registry",
	Long: `List batch jobs recorded in the job registry.

By default only jobs whose outcome is still unknown are shown. Use
'agentlab monitor <job-id>' to resume polling one of them.`,
	RunE: runJobs,
}

var (
	jobsAll   bool
	jobsLimit int
)

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().BoolVar(&jobsAll, "all", false, "Show every recorded job, not only pending ones")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "Number of jobs to show with --all (0 for all)")
}

// requireRegistry opens the job registry, failing when none is configured.
func requireRegistry(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.Storage.RegistryPath == "" {
		return nil, fmt.Errorf("no job registry configured (set storage.registry_path)")
	}
	return store.Open(ctx, cfg.Storage.RegistryPath)
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	st, err := requireRegistry(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var jobs []store.Job
	if jobsAll {
		jobs, err = st.ListJobs(cmd.Context(), jobsLimit)
	} else {
		jobs, err = st.PendingJobs(cmd.Context())
	}
	if err != nil {
		return err
	}
	writeJobs(cmd.OutOrStdout(), jobs, jobsAll)
	return nil
}

func writeJobs(w io.Writer, jobs []store.Job, all bool) {
	if len(jobs) == 0 {
		if all {
			_, _ = fmt.Fprintln(w, "No jobs recorded.")
		} else {
			_, _ = fmt.Fprintln(w, "No pending jobs.")
		}
		return
	}

	_, _ = fmt.Fprintln(w, strings.Repeat("─", 70))
	_, _ = fmt.Fprintf(w, "%-16s %-9s %-14s %-16s %4s  %s\n", "JOB", "SCHEDULER", "STATE", "KIND", "ITER", "SUBMITTED")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 70))
	for _, j := range jobs {
		kind := j.Kind
		if kind == "" {
			kind = "-"
		}
		_, _ = fmt.Fprintf(w, "%-16s %-9s %-14s %-16s %4d  %s\n",
			j.ID, j.Scheduler, j.State, kind, j.Iteration+1, humanize.Time(j.SubmittedAt))
	}
	_, _ = fmt.Fprintf(w, "\n%d job(s)\n", len(jobs))
}
