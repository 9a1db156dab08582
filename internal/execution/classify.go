package execution

import (
	"fmt"
	"os"
	"strings"

	"github.com/Iron-Ham/agentlab/internal/model"
)

// MaxLogChars is how much of the tail of a job log is kept.
const MaxLogChars = 20000

var failureTokens = []string{"error", "traceback", "exception", "fail", "segmentation fault"}

func containsFailureToken(s string) bool {
	lower := strings.ToLower(s)
	for _, tok := range failureTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// LogsSuggestSuccess guesses a job's outcome from its logs when the
// scheduler reported no exit status. Output with an empty stderr succeeds
// unless it mentions a failure token; two empty logs are a silently dead
// job and count as failure; otherwise the combined logs must be free of
// failure tokens. Program output that legitimately contains a word such as
// "error" is misread as failure.
func LogsSuggestSuccess(stdout, stderr string) bool {
	out, errOut := strings.TrimSpace(stdout), strings.TrimSpace(stderr)
	if out != "" && errOut == "" {
		return !containsFailureToken(stdout)
	}
	if out == "" && errOut == "" {
		return false
	}
	return !containsFailureToken(stdout + "\n" + stderr)
}

// PollStatus is how the poll loop ended.
type PollStatus string

const (
	// PollCompleted means the job left the queue.
	PollCompleted PollStatus = "completed"
	// PollTimedOut means the job was still listed after the last check.
	PollTimedOut PollStatus = "timeout"
	// PollUnconfirmed means no status command exists for the scheduler.
	PollUnconfirmed PollStatus = "unconfirmed"
	// PollInterrupted means the context ended while the job was queued.
	PollInterrupted PollStatus = "interrupted"
)

// Observation is everything known about a job when it is classified.
type Observation struct {
	Submitted bool
	Poll      PollStatus
	JobID     string
	Metadata  Metadata
	Stdout    string
	Stderr    string
}

// Classification is the outcome of a batch job. NeedsAnalysis is set for
// failed jobs, whose Reasoning should be extended with a failure analysis.
type Classification struct {
	Success       bool
	Kind          model.ErrorKind
	Reasoning     string
	NeedsAnalysis bool
}

// FormatDetails renders the known job facts, or "job metadata unavailable".
func FormatDetails(jobID string, md Metadata) string {
	var details []string
	if jobID != "" {
		details = append(details, "job id: "+jobID)
	}
	if md.State != "" {
		details = append(details, "state: "+md.State)
	}
	if md.ExitStatus != nil {
		details = append(details, fmt.Sprintf("exit_status: %d", *md.ExitStatus))
	}
	if len(details) == 0 {
		return "job metadata unavailable"
	}
	return strings.Join(details, ", ")
}

// Classify maps an observation to an outcome. It is a pure function of its
// input.
func Classify(o Observation) Classification {
	if !o.Submitted {
		return Classification{
			Kind:      model.KindSubmissionFailed,
			Reasoning: "batch submission failed; see stderr for details",
		}
	}

	details := FormatDetails(o.JobID, o.Metadata)
	switch o.Poll {
	case PollTimedOut:
		return Classification{
			Kind:      model.KindPending,
			Reasoning: details + "; monitoring window ended while job remained in the queue",
		}
	case PollInterrupted:
		return Classification{
			Kind:      model.KindPending,
			Reasoning: details + "; monitoring interrupted while job remained in the queue",
		}
	case PollCompleted:
	default:
		return Classification{
			Kind:      model.KindPending,
			Reasoning: details + "; job status could not be confirmed",
		}
	}

	var success bool
	if o.Metadata.ExitStatus != nil {
		success = *o.Metadata.ExitStatus == 0
	} else {
		success = LogsSuggestSuccess(o.Stdout, o.Stderr)
	}
	if success {
		return Classification{
			Success:   true,
			Kind:      model.KindJobSucceeded,
			Reasoning: fmt.Sprintf("batch job completed successfully (%s).", details),
		}
	}
	return Classification{
		Kind:          model.KindJobFailed,
		Reasoning:     fmt.Sprintf("batch job completed but reported a failure (%s).", details),
		NeedsAnalysis: true,
	}
}

// readTail returns the last MaxLogChars bytes of path, or "" if it cannot
// be read.
func readTail(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(data) > MaxLogChars {
		data = data[len(data)-MaxLogChars:]
	}
	return string(data)
}
