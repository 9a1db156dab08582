// Package model defines the artifacts exchanged between the roles of a run:
// plans, reports, code, execution results and critiques, plus the RunState
// the iteration controller threads between rounds.
package model

import (
	"fmt"
	"strings"
)

// Mode selects which artifacts a run produces.
type Mode string

const (
	ModeResearchOnly Mode = "research_only"
	ModeCodeOnly     Mode = "code_only"
	ModeBoth         Mode = "both"
)

// ValidModes lists the accepted modes in display order.
var ValidModes = []Mode{ModeResearchOnly, ModeCodeOnly, ModeBoth}

// ParseMode converts a user-supplied string to a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range ValidModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q (want one of research_only, code_only, both)", s)
}

// IncludesResearch reports whether the mode produces a report.
func (m Mode) IncludesResearch() bool {
	return m == ModeResearchOnly || m == ModeBoth
}

// IncludesCode reports whether the mode produces and executes code.
func (m Mode) IncludesCode() bool {
	return m == ModeCodeOnly || m == ModeBoth
}

// Plan is the current task plan for all roles. A revision replaces the plan
// wholesale.
type Plan struct {
	Text      string `json:"plan"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ResearchArtifact is a drafted or refined report.
type ResearchArtifact struct {
	Content   string `json:"content"`
	Iteration int    `json:"iteration"`
}

// CodeArtifact is a drafted or refined program.
type CodeArtifact struct {
	Code      string `json:"code"`
	Iteration int    `json:"iteration"`
}

// ErrorKind classifies the outcome of an execution attempt.
type ErrorKind string

const (
	// KindNone marks a successful local execution.
	KindNone ErrorKind = ""
	// KindExecutionError marks a local run that exited non-zero.
	KindExecutionError ErrorKind = "execution_error"
	// KindSubmissionFailed marks a batch submission command that failed or printed no job id.
	KindSubmissionFailed ErrorKind = "submission_failed"
	// KindPending marks a batch job still queued when monitoring ended.
	KindPending ErrorKind = "pending"
	// KindJobSucceeded marks a batch job that completed successfully.
	KindJobSucceeded ErrorKind = "job_succeeded"
	// KindJobFailed marks a batch job that completed with a failure.
	KindJobFailed ErrorKind = "job_failed"
)

// ExecutionResult is the immutable outcome of one execution attempt.
type ExecutionResult struct {
	Success           bool      `json:"success"`
	Stdout            string    `json:"stdout"`
	Stderr            string    `json:"stderr"`
	Kind              ErrorKind `json:"error_kind,omitempty"`
	PackagesInstalled []string  `json:"packages_installed,omitempty"`
	Reasoning         string    `json:"reasoning,omitempty"`
	JobID             string    `json:"job_id,omitempty"`
}

// Pending reports whether the result is an inconclusive batch outcome.
func (r ExecutionResult) Pending() bool {
	return r.Kind == KindPending
}

// Transcript renders the result in the form fed to the repairer and critic.
func (r ExecutionResult) Transcript() string {
	pkgs := "[]"
	if len(r.PackagesInstalled) > 0 {
		quoted := make([]string, len(r.PackagesInstalled))
		for i, p := range r.PackagesInstalled {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		pkgs = "[" + strings.Join(quoted, ", ") + "]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SUCCESS: %t\n", r.Success)
	fmt.Fprintf(&b, "STDOUT:\n%s\n\n", r.Stdout)
	fmt.Fprintf(&b, "STDERR:\n%s\n\n", r.Stderr)
	fmt.Fprintf(&b, "PACKAGES_INSTALLED: %s\n", pkgs)
	if r.JobID != "" {
		fmt.Fprintf(&b, "JOB_ID: %s\n", r.JobID)
	}
	return b.String()
}

// Feedback combines the transcript with the diagnostic reasoning, which is
// what the coder receives when asked to repair a failed attempt.
func (r ExecutionResult) Feedback() string {
	if r.Reasoning == "" {
		return r.Transcript()
	}
	return r.Transcript() + "\nDIAGNOSIS:\n" + r.Reasoning + "\n"
}

// Section is one labeled block of critique feedback.
type Section struct {
	Label string
	Body  string
}

// Section labels in render order.
const (
	LabelSummary     = "Summary"
	LabelDocument    = "Document feedback"
	LabelCode        = "Code feedback"
	LabelDiagnostics = "Executor diagnostics"
)

// CritiqueBundle aggregates the feedback for one iteration. Empty fields are
// absent.
type CritiqueBundle struct {
	DocumentFeedback    string `json:"document_feedback,omitempty"`
	CodeFeedback        string `json:"code_feedback,omitempty"`
	ExecutorDiagnostics string `json:"executor_feedback,omitempty"`
	Summary             string `json:"summary,omitempty"`
}

// Sections returns the present fields in a stable order.
func (c CritiqueBundle) Sections() []Section {
	var out []Section
	add := func(label, body string) {
		if strings.TrimSpace(body) != "" {
			out = append(out, Section{Label: label, Body: strings.TrimSpace(body)})
		}
	}
	add(LabelSummary, c.Summary)
	add(LabelDocument, c.DocumentFeedback)
	add(LabelCode, c.CodeFeedback)
	add(LabelDiagnostics, c.ExecutorDiagnostics)
	return out
}

// Empty reports whether the bundle carries no feedback at all.
func (c CritiqueBundle) Empty() bool {
	return len(c.Sections()) == 0
}

// Render formats the present sections, each under its own label.
func (c CritiqueBundle) Render() string {
	return RenderSections(c.Sections())
}

// CodeSections returns the sections relevant to refining code.
func (c CritiqueBundle) CodeSections() []Section {
	var out []Section
	for _, s := range c.Sections() {
		if s.Label == LabelCode || s.Label == LabelDiagnostics {
			out = append(out, s)
		}
	}
	return out
}

// RenderSections formats a list of sections as "Label:\nbody" blocks.
func RenderSections(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, s.Label+":\n"+s.Body)
	}
	return strings.Join(parts, "\n\n")
}

// Outcome summarizes how a run ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
	// OutcomeCompleted marks a run without code, which has no execution outcome.
	OutcomeCompleted Outcome = "completed"
)

// RunState is the mutable state threaded through the iteration controller.
// It is owned by a single controller and never shared.
type RunState struct {
	Topic     string
	Mode      Mode
	Sources   string
	Plan      Plan
	Research  *ResearchArtifact
	Code      *CodeArtifact
	Execution *ExecutionResult
	Critique  *CritiqueBundle
	Iteration int
	// Iterations counts completed rounds.
	Iterations int
}

// Outcome derives the run outcome from the last execution result.
func (s *RunState) Outcome() Outcome {
	if s.Execution == nil {
		if s.Mode.IncludesCode() {
			return OutcomeFailed
		}
		return OutcomeCompleted
	}
	switch {
	case s.Execution.Success:
		return OutcomeSucceeded
	case s.Execution.Pending():
		return OutcomePending
	default:
		return OutcomeFailed
	}
}

// Done reports whether the run must stop after the current iteration.
func (s *RunState) Done() bool {
	return s.Execution != nil && (s.Execution.Success || s.Execution.Pending())
}
