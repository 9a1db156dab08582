package agents

import (
	"context"

	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/prompt"
	"github.com/Iron-Ham/agentlab/internal/util"
)

// Writer drafts and refines the research report.
type Writer struct {
	*worker
}

// NewWriter creates a Writer sampling at temperature.
func NewWriter(deps Deps, temperature float64) *Writer {
	return &Writer{worker: newWorker(RoleWriter, deps, temperature)}
}

// Draft writes the first report for topic.
func (w *Writer) Draft(ctx context.Context, sources, topic, plan string, iteration int) (model.ResearchArtifact, error) {
	w.say("drafting report")
	raw, err := w.generate(ctx, "draft_document", prompt.ResearchDraft(sources, topic, plan))
	if err != nil {
		return model.ResearchArtifact{}, err
	}
	report := util.CleanReport(raw)
	w.preview("Report draft", report)
	return model.ResearchArtifact{Content: report, Iteration: iteration}, nil
}

// Improve revises draft using document feedback.
func (w *Writer) Improve(ctx context.Context, draft, feedback string, iteration int) (model.ResearchArtifact, error) {
	w.say("improving report")
	raw, err := w.generate(ctx, "improve_document", prompt.ResearchImprove(draft, feedback))
	if err != nil {
		return model.ResearchArtifact{}, err
	}
	report := util.CleanReport(raw)
	w.preview("Improved report", report)
	return model.ResearchArtifact{Content: report, Iteration: iteration}, nil
}
