package execution

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/errors"
)

// Scheduler names.
const (
	SchedulerPBS   = "pbs"
	SchedulerSlurm = "slurm"
)

// Placeholders substituted in custom scheduler commands.
const (
	JobScriptPlaceholder = "{job_script}"
	JobIDPlaceholder     = "{job_id}"
)

func schedulerName(cfg config.BatchConfig) string {
	s := strings.ToLower(strings.TrimSpace(cfg.Scheduler))
	if s == "" {
		return SchedulerPBS
	}
	return s
}

// substitute replaces placeholder in every argument of template.
func substitute(template []string, placeholder, value string) []string {
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = strings.ReplaceAll(arg, placeholder, value)
	}
	return out
}

// SubmitCommand returns the command that submits jobScript. A configured
// override replaces the whole command; only {job_script} is filled in.
func SubmitCommand(cfg config.BatchConfig, jobScript, dir string) (Command, error) {
	if len(cfg.SubmitCommand) > 0 {
		argv := substitute(cfg.SubmitCommand, JobScriptPlaceholder, jobScript)
		return Command{Name: argv[0], Args: argv[1:], Dir: dir}, nil
	}
	switch s := schedulerName(cfg); s {
	case SchedulerPBS:
		return Command{Name: "qsub", Args: []string{jobScript}, Dir: dir}, nil
	case SchedulerSlurm:
		return Command{Name: "sbatch", Args: []string{jobScript}, Dir: dir}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q (set batch.submit_command)", errors.ErrUnsupportedScheduler, s)
	}
}

// StatusCommand returns the command that lists jobID in the queue. An
// override without {job_id} gets the id as its last argument. ok is false
// when the scheduler is unknown and no override is configured, in which
// case the job cannot be polled.
func StatusCommand(cfg config.BatchConfig, jobID, dir string) (cmd Command, ok bool) {
	if len(cfg.StatusCommand) > 0 {
		argv := substitute(cfg.StatusCommand, JobIDPlaceholder, jobID)
		if !slices.ContainsFunc(cfg.StatusCommand, func(arg string) bool {
			return strings.Contains(arg, JobIDPlaceholder)
		}) {
			argv = append(argv, jobID)
		}
		return Command{Name: argv[0], Args: argv[1:], Dir: dir}, true
	}
	switch schedulerName(cfg) {
	case SchedulerPBS:
		return Command{Name: "qstat", Args: []string{jobID}, Dir: dir}, true
	case SchedulerSlurm:
		return Command{Name: "squeue", Args: []string{"-h", "-j", jobID}, Dir: dir}, true
	}
	return Command{}, false
}

// MetadataCommand returns the command that reports a finished job's state
// and exit status.
func MetadataCommand(cfg config.BatchConfig, jobID, dir string) (cmd Command, ok bool) {
	switch schedulerName(cfg) {
	case SchedulerPBS:
		return Command{Name: "qstat", Args: []string{"-fx", jobID}, Dir: dir}, true
	case SchedulerSlurm:
		return Command{Name: "sacct", Args: []string{"-n", "-P", "-X", "-j", jobID, "--format=State,ExitCode"}, Dir: dir}, true
	}
	return Command{}, false
}

var jobIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Submitted batch job (\S+)`),
	regexp.MustCompile(`(?i)JobID[:\s]+(\S+)`),
	regexp.MustCompile(`(?i)submitted as job (\S+)`),
	regexp.MustCompile(`(?m)^(\d+\.\S+)$`),
	regexp.MustCompile(`(?m)^(\d+)$`),
}

// ExtractJobID finds the job identifier in submission output. Patterns are
// tried in a fixed priority order and the first match wins.
func ExtractJobID(stdout, stderr string) string {
	var parts []string
	for _, s := range []string{stdout, stderr} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	text := strings.Join(parts, "\n")
	for _, re := range jobIDPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// JobStillListed interprets one status check. For PBS a failing qstat means
// the job left the queue; otherwise any output means it is still listed.
func JobStillListed(jobID, scheduler, stdout, stderr string, exitCode int) bool {
	var parts []string
	for _, s := range []string{stdout, stderr} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	text := strings.Join(parts, "\n")

	switch strings.ToLower(scheduler) {
	case SchedulerPBS, "":
		if exitCode != 0 {
			return false
		}
		if strings.Contains(text, jobID) {
			return true
		}
		return strings.TrimSpace(text) != ""
	case SchedulerSlurm:
		if exitCode != 0 {
			return false
		}
		return strings.TrimSpace(stdout) != ""
	}
	return strings.TrimSpace(text) != ""
}

var (
	pbsStateRe = regexp.MustCompile(`job_state\s*=\s*(\w+)`)
	pbsExitRe  = regexp.MustCompile(`exit_status\s*=\s*(-?\d+)`)
	pbsExitRe2 = regexp.MustCompile(`Exit_status\s*=\s*(-?\d+)`)
)

// Metadata is what the scheduler reports about a finished job. ExitStatus
// is nil when the scheduler did not report one.
type Metadata struct {
	State      string
	ExitStatus *int
}

// ParseMetadata extracts the job state and exit status from the output of
// MetadataCommand.
func ParseMetadata(scheduler, text string) Metadata {
	var md Metadata
	switch strings.ToLower(scheduler) {
	case SchedulerSlurm:
		line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
		fields := strings.Split(strings.TrimSpace(line), "|")
		if len(fields) > 0 && fields[0] != "" {
			md.State, _, _ = strings.Cut(fields[0], " ")
		}
		if len(fields) > 1 {
			code, _, _ := strings.Cut(fields[1], ":")
			if n, err := strconv.Atoi(strings.TrimSpace(code)); err == nil {
				md.ExitStatus = &n
			}
		}
	default:
		if m := pbsStateRe.FindStringSubmatch(text); m != nil {
			md.State = m[1]
		}
		m := pbsExitRe.FindStringSubmatch(text)
		if m == nil {
			m = pbsExitRe2.FindStringSubmatch(text)
		}
		if m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				md.ExitStatus = &n
			}
		}
	}
	return md
}
