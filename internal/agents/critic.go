package agents

import (
	"context"

	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/prompt"
)

// ReviewInput is what the critic sees for one iteration. Empty fields are
// skipped.
type ReviewInput struct {
	Report     string
	Code       string
	Transcript string // execution transcript; empty when nothing ran
	Reasoning  string // automated executor diagnosis
	Sources    string
}

// Critic reviews the iteration's artifacts and produces a CritiqueBundle.
type Critic struct {
	*worker
}

// NewCritic creates a Critic sampling at temperature.
func NewCritic(deps Deps, temperature float64) *Critic {
	return &Critic{worker: newWorker(RoleCritic, deps, temperature)}
}

// Review critiques the report against the sources and the code against its
// execution, then summarizes both. The executor's diagnosis is carried as
// the bundle's diagnostics.
func (c *Critic) Review(ctx context.Context, in ReviewInput) (model.CritiqueBundle, error) {
	var bundle model.CritiqueBundle
	var err error

	if in.Report != "" {
		bundle.DocumentFeedback, err = c.generate(ctx, "critique_document", prompt.DocumentCritique(in.Report, in.Sources))
		if err != nil {
			return model.CritiqueBundle{}, err
		}
	}

	if in.Code != "" && in.Transcript != "" {
		transcript := in.Transcript
		if in.Reasoning != "" {
			transcript += "\nDIAGNOSIS:\n" + in.Reasoning + "\n"
		}
		bundle.CodeFeedback, err = c.generate(ctx, "critique_code", prompt.CodeExecutionReview(in.Code, transcript))
		if err != nil {
			return model.CritiqueBundle{}, err
		}
	}

	if bundle.DocumentFeedback != "" || bundle.CodeFeedback != "" {
		bundle.Summary, err = c.generate(ctx, "summarize_feedback",
			prompt.SummaryFeedback(bundle.DocumentFeedback, bundle.CodeFeedback))
		if err != nil {
			return model.CritiqueBundle{}, err
		}
	}
	bundle.ExecutorDiagnostics = in.Reasoning

	if bundle.Summary != "" {
		c.preview("Critic summary", bundle.Summary)
	} else {
		c.say("no feedback")
	}
	return bundle, nil
}
