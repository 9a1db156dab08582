package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/Iron-Ham/agentlab/internal/agents"
	"github.com/Iron-Ham/agentlab/internal/approval"
	"github.com/Iron-Ham/agentlab/internal/artifacts"
	"github.com/Iron-Ham/agentlab/internal/execution"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/store"
)

type fakePlanner struct {
	mu       sync.Mutex
	changes  []string
	feedback []string
	err      error
}

func (p *fakePlanner) CreatePlan(_ context.Context, _, topic string, _ model.Mode, changes string) (model.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return model.Plan{}, p.err
	}
	p.changes = append(p.changes, changes)
	plan := model.Plan{Text: fmt.Sprintf("plan %d for %s", len(p.changes), topic)}
	if changes != "" {
		plan.Reasoning = "because " + changes
	}
	return plan, nil
}

func (p *fakePlanner) RevisePlan(_ context.Context, _, _ string, _ model.Mode, feedback string) (model.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feedback = append(p.feedback, feedback)
	return model.Plan{Text: fmt.Sprintf("revised plan %d", len(p.feedback))}, nil
}

type fakeWriter struct {
	drafts   int
	feedback []string
}

func (w *fakeWriter) Draft(_ context.Context, _, _, plan string, iteration int) (model.ResearchArtifact, error) {
	w.drafts++
	return model.ResearchArtifact{Content: "report on " + plan, Iteration: iteration}, nil
}

func (w *fakeWriter) Improve(_ context.Context, draft, feedback string, iteration int) (model.ResearchArtifact, error) {
	w.feedback = append(w.feedback, feedback)
	return model.ResearchArtifact{Content: draft + " (revised)", Iteration: iteration}, nil
}

type fakeCoder struct {
	codingPlans    int
	planFeedback   []string
	created        int
	improveInputs  []string
	improveReplies []string // consumed in order; empty means append a fix marker
	sameCode       bool
}

func (c *fakeCoder) CreateCodingPlan(context.Context, string, string, string) (string, error) {
	c.codingPlans++
	return "coding plan", nil
}

func (c *fakeCoder) ImproveCodingPlan(_ context.Context, feedback, codingPlan string) (string, error) {
	c.planFeedback = append(c.planFeedback, feedback)
	return codingPlan + " + " + feedback, nil
}

func (c *fakeCoder) CreateCode(_ context.Context, _, _, _, codingPlan string, iteration int) (model.CodeArtifact, error) {
	c.created++
	return model.CodeArtifact{Code: "print('v0')", Iteration: iteration}, nil
}

func (c *fakeCoder) ImproveCode(_ context.Context, code, feedback string, iteration int) (model.CodeArtifact, error) {
	c.improveInputs = append(c.improveInputs, feedback)
	if c.sameCode {
		return model.CodeArtifact{Code: code, Iteration: iteration}, nil
	}
	if len(c.improveReplies) > 0 {
		next := c.improveReplies[0]
		c.improveReplies = c.improveReplies[1:]
		return model.CodeArtifact{Code: next, Iteration: iteration}, nil
	}
	return model.CodeArtifact{Code: fmt.Sprintf("%s\n# fix %d", code, len(c.improveInputs)), Iteration: iteration}, nil
}

func (c *fakeCoder) calls() int {
	return c.codingPlans + len(c.planFeedback) + c.created + len(c.improveInputs)
}

type fakeRepairer struct {
	calls  int
	inputs []string
	reply  string
	err    error
}

func (r *fakeRepairer) Repair(_ context.Context, code, transcript string) (string, error) {
	r.calls++
	r.inputs = append(r.inputs, transcript)
	if r.err != nil {
		return "", r.err
	}
	if r.reply == "" {
		return code, nil
	}
	return r.reply, nil
}

type fakeCritic struct {
	inputs []agents.ReviewInput
	bundle model.CritiqueBundle
	err    error
}

func (c *fakeCritic) Review(_ context.Context, in agents.ReviewInput) (model.CritiqueBundle, error) {
	c.inputs = append(c.inputs, in)
	return c.bundle, c.err
}

// fakeBackend replays results in order and repeats the last one.
type fakeBackend struct {
	results []model.ExecutionResult
	err     error
	codes   []string
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Execute(_ context.Context, req execution.Request) (model.ExecutionResult, error) {
	b.codes = append(b.codes, req.Code)
	if b.err != nil {
		return model.ExecutionResult{}, b.err
	}
	if len(b.results) == 0 {
		return model.ExecutionResult{Success: true, Stdout: "ok"}, nil
	}
	r := b.results[0]
	if len(b.results) > 1 {
		b.results = b.results[1:]
	}
	return r, nil
}

func failed(stderr string) model.ExecutionResult {
	return model.ExecutionResult{Stderr: stderr, Kind: model.KindExecutionError, Reasoning: "diagnosis: " + stderr}
}

func pendingJob(id string) model.ExecutionResult {
	return model.ExecutionResult{Kind: model.KindPending, JobID: id}
}

// fakeApprover replays decisions in order; once exhausted it approves.
type fakeApprover struct {
	decisions []approval.Decision
	questions []approval.Question
}

func (a *fakeApprover) Confirm(_ context.Context, q approval.Question) (approval.Decision, error) {
	a.questions = append(a.questions, q)
	if len(a.decisions) == 0 {
		return approval.Decision{Approved: true}, nil
	}
	d := a.decisions[0]
	a.decisions = a.decisions[1:]
	return d, nil
}

type memSink struct {
	saved []artifacts.Iteration
	err   error
}

func (s *memSink) SaveIteration(_ context.Context, it artifacts.Iteration) ([]string, error) {
	s.saved = append(s.saved, it)
	var names []string
	for _, f := range it.Files() {
		names = append(names, "mem://"+f.Name)
	}
	return names, s.err
}

type memRuns struct {
	created  []store.Run
	outcome  string
	finished int
}

func (r *memRuns) CreateRun(_ context.Context, run store.Run) error {
	r.created = append(r.created, run)
	return nil
}

func (r *memRuns) FinishRun(_ context.Context, _ string, outcome string, iterations int) error {
	r.outcome = outcome
	r.finished = iterations
	return nil
}
