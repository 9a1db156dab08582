package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/convlog"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/util"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View a run's debug log or conversation log",
	Long: `View and filter the logs of a run.

By default, shows the debug log of the most recent run in the output
directory. Use flags to pick a run and filter the output.

Examples:
  # Show the most recent run's debug log
  agentlab logs

  # Only warnings and errors from the critic
  agentlab logs --level warn --role critic

  # Everything logged during the second iteration
  agentlab logs --iteration 2

  # The role-by-role conversation of a specific run
  agentlab logs --run-dir output/run_20260101_120000 --conversation`,
	RunE: runLogs,
}

var (
	logsRunDir       string
	logsLevel        string
	logsRole         string
	logsIteration    int
	logsGrep         string
	logsConversation bool
	logsTail         int
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsRunDir, "run-dir", "", "Run directory (default: most recent run)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsRole, "role", "", "Only entries logged by this role")
	logsCmd.Flags().IntVar(&logsIteration, "iteration", 0, "Only entries from this iteration (1-based, 0 for all)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().BoolVar(&logsConversation, "conversation", false, "Show the conversation log instead of the debug log")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 0, "Number of entries to show from the end (0 for all)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	runDir := logsRunDir
	if runDir == "" {
		latest, err := latestRunDir(config.Get().Run.OutputDir)
		if err != nil {
			return err
		}
		runDir = latest
	}

	if logsConversation {
		entries, err := convlog.ReadFile(filepath.Join(runDir, convlog.FileName))
		if err != nil {
			return err
		}
		entries = filterConversation(entries, logsRole, logsIteration-1, logsGrep)
		writeConversation(cmd.OutOrStdout(), tail(entries, logsTail))
		return nil
	}

	entries, err := logging.ReadLogs(runDir)
	if err != nil {
		return err
	}
	filter := logging.NewLogFilter()
	filter.Level = logsLevel
	filter.Role = logsRole
	filter.MessageContains = logsGrep
	if logsIteration > 0 {
		filter.Iteration = logsIteration - 1
	}
	entries = logging.FilterLogs(entries, filter)
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No log entries match.")
		return nil
	}
	return logging.WriteText(cmd.OutOrStdout(), tail(entries, logsTail))
}

// latestRunDir returns the newest run directory under outputDir. Run
// directories are named by timestamp, so the lexically greatest is newest.
func latestRunDir(outputDir string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("no runs found in %s: %w", outputDir, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no runs found in %s", outputDir)
	}
	sort.Strings(dirs)
	return filepath.Join(outputDir, dirs[len(dirs)-1]), nil
}

func filterConversation(entries []convlog.Entry, role string, iteration int, contains string) []convlog.Entry {
	var out []convlog.Entry
	for _, e := range entries {
		if role != "" && e.Role != role {
			continue
		}
		if iteration >= 0 && e.Iteration != iteration {
			continue
		}
		if contains != "" && !strings.Contains(e.Message, contains) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func writeConversation(w io.Writer, entries []convlog.Entry) {
	for _, e := range entries {
		header := fmt.Sprintf("[%s] %s", e.Timestamp.Format("15:04:05"), e.Role)
		if e.Operation != "" {
			header += "." + e.Operation
		}
		header += fmt.Sprintf(" (iteration %d)", e.Iteration+1)
		if e.Error != "" {
			header += " ERROR: " + e.Error
		}
		_, _ = fmt.Fprintln(w, header)
		if msg := strings.TrimSpace(e.Message); msg != "" {
			_, _ = fmt.Fprintln(w, "  "+strings.ReplaceAll(util.TruncateString(msg, 600), "\n", "\n  "))
		}
	}
}

func tail[T any](entries []T, n int) []T {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}
