package agents

import (
	"context"

	"github.com/Iron-Ham/agentlab/internal/prompt"
	"github.com/Iron-Ham/agentlab/internal/util"
)

// Repairer is the last-resort fixer run after the retry budget is spent. It
// diagnoses the transcript first and then writes a fix from the diagnosis.
type Repairer struct {
	*worker
}

// NewRepairer creates a Repairer sampling at temperature.
func NewRepairer(deps Deps, temperature float64) *Repairer {
	return &Repairer{worker: newWorker(RoleRepairer, deps, temperature)}
}

// Repair returns repaired code for a failed run.
func (r *Repairer) Repair(ctx context.Context, code, transcript string) (string, error) {
	r.say("reviewing code execution results")
	analysis, err := r.generate(ctx, "review_analysis", prompt.ReviewerAnalysis(code, transcript))
	if err != nil {
		return "", err
	}
	r.preview("Analysis", analysis)

	fix, err := r.generate(ctx, "review_fix", prompt.ReviewerFix(code, transcript, analysis))
	if err != nil {
		return "", err
	}
	return util.ExtractCode(fix), nil
}
