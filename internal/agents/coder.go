package agents

import (
	"context"

	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/prompt"
	"github.com/Iron-Ham/agentlab/internal/util"
)

// Coder plans, writes and repairs the program.
type Coder struct {
	*worker
}

// NewCoder creates a Coder sampling at temperature.
func NewCoder(deps Deps, temperature float64) *Coder {
	return &Coder{worker: newWorker(RoleCoder, deps, temperature)}
}

// CreateCodingPlan writes a coding plan for operator review.
func (c *Coder) CreateCodingPlan(ctx context.Context, sources, topic, plan string) (string, error) {
	c.say("creating coding plan")
	text, err := c.generate(ctx, "create_coding_plan", prompt.CodingPlan(sources, topic, plan))
	if err != nil {
		return "", err
	}
	return text, nil
}

// ImproveCodingPlan revises a coding plan from operator feedback.
func (c *Coder) ImproveCodingPlan(ctx context.Context, feedback, codingPlan string) (string, error) {
	c.say("improving coding plan based on feedback: %s", feedback)
	return c.generate(ctx, "improve_coding_plan", prompt.ImprovedCodingPlan(feedback, codingPlan))
}

// CreateCode writes the first program from the approved coding plan.
func (c *Coder) CreateCode(ctx context.Context, sources, topic, plan, codingPlan string, iteration int) (model.CodeArtifact, error) {
	raw, err := c.generate(ctx, "create_code", prompt.CodeWriting(sources, topic, plan, codingPlan))
	if err != nil {
		return model.CodeArtifact{}, err
	}
	code := util.ExtractCode(raw)
	c.preview("Code", code)
	return model.CodeArtifact{Code: code, Iteration: iteration}, nil
}

// ImproveCode revises code from feedback: critic feedback between
// iterations, an execution transcript inside the retry loop.
func (c *Coder) ImproveCode(ctx context.Context, code, feedback string, iteration int) (model.CodeArtifact, error) {
	raw, err := c.generate(ctx, "improve_code", prompt.CodeImprove(code, feedback))
	if err != nil {
		return model.CodeArtifact{}, err
	}
	improved := util.ExtractCode(raw)
	c.preview("Improved code", improved)
	return model.CodeArtifact{Code: improved, Iteration: iteration}, nil
}
