// Package prompt builds the text sent to the generation service for each
// role operation. Builders are pure functions of their inputs.
package prompt

import (
	"fmt"
	"strings"
)

// PlanSection renders the current plan for inclusion in role prompts. An
// empty plan renders as the empty string.
func PlanSection(plan string) string {
	if strings.TrimSpace(plan) == "" {
		return ""
	}
	return "Plan from the principal investigator:\n" + plan
}

// QuickSearchSummary asks for a short factual answer grounded in search results.
func QuickSearchSummary(query, results string) string {
	return fmt.Sprintf(`You are a research assistant. Answer the question below using only the search results.

Question: %s

Search results:
%s

Give a short factual answer. Do not show your reasoning.
`, query, results)
}

// Plan asks the principal investigator for a plan covering every role. A
// non-empty changes string requests a new plan built around the operator's
// requested changes.
func Plan(sources, topic, mode, changes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the principal investigator for the topic %q.\n\n", topic)
	fmt.Fprintf(&b, "Sources:\n%s\n\nMode: %s\n\n", sources, mode)
	if changes != "" {
		fmt.Fprintf(&b, "The operator rejected the previous plan and asked for these changes:\n%s\n\n", changes)
		b.WriteString("Build a new plan around these changes. Keep only the work the operator asked for.\n\n")
	}
	b.WriteString(`Work step by step and produce a plan with:
1. The key insights from the sources.
2. What the listed files contain, if any were provided.
3. Concrete instructions for each role:
   - Writer: which aspects the report covers.
   - Coder: what to implement and which packages to import.
   - Executor: how to run the code and which packages it needs.
   - Repairer: what to check in the code and its execution output.
   - Critic: what to evaluate in the report and the code.

Skip time estimates. Do not plan work that was not requested.
`)
	return b.String()
}

// PlanChangesReasoning asks for an explanation of how operator changes shaped
// the new plan.
func PlanChangesReasoning(changes, topic, mode string) string {
	return fmt.Sprintf(`The plan for %q (mode %s) was rebuilt after the operator requested:
%s

Explain which parts of the plan changed, why the changes fit the request, and
how the new plan differs from the previous one.
`, topic, mode, changes)
}

// ResearchDraft asks for a first report.
func ResearchDraft(sources, topic, plan string) string {
	return fmt.Sprintf(`Write a research report on %q using these sources:

%s

%s

Organize it as Abstract, Introduction, Methods, Results, Discussion and Conclusion.
Return only the report as plain text, without markdown or commentary.
`, topic, sources, PlanSection(plan))
}

// ResearchImprove asks for a revision of draft using critic feedback.
func ResearchImprove(draft, feedback string) string {
	return fmt.Sprintf(`Revise the report below using the feedback.

Report:
%s

Feedback:
%s

Return only the revised report.
`, draft, feedback)
}

const filePathRules = `File paths:
- The program runs in the working directory. Use only files listed in the sources.
- Never use placeholder paths such as /path/to/data or input_dir.
- Never read command line arguments (sys.argv, argparse).
- Check that every file exists before using it and fail with a clear message.
`

// CodingPlan asks for a plan the operator reviews before any code is written.
func CodingPlan(sources, topic, plan string) string {
	return fmt.Sprintf(`You are an experienced Python developer working on this objective:
%q

Sources:
%s

%s

Before writing code, describe:
- the libraries you will use and why
- the input files you will read and why
- the overall structure and main functions
- how data flows through the program
- how errors and missing files are handled

%s
Keep to what the objective asks for.
`, topic, sources, PlanSection(plan), filePathRules)
}

// ImprovedCodingPlan asks for a revision of a coding plan from operator feedback.
func ImprovedCodingPlan(feedback, codingPlan string) string {
	return fmt.Sprintf(`Revise the coding plan below. The operator's feedback:
%q

Current plan:
%s
`, feedback, codingPlan)
}

// CodeWriting asks for a first program following an approved coding plan.
func CodeWriting(sources, topic, plan, codingPlan string) string {
	return fmt.Sprintf(`You are an experienced Python developer. Write a program for this objective:
%q

Sources:
%s

%s

Approved coding plan:
%s

%s
Requirements:
- Import only packages that exist and that the sources support.
- Comment the main steps.
- Return a single fenced block:
`+"```python\n<code>\n```"+`
`, topic, sources, PlanSection(plan), codingPlan, filePathRules)
}

// CodeImprove asks for a revision of code given feedback.
func CodeImprove(code, feedback string) string {
	return fmt.Sprintf(`Improve the Python program below using the feedback.

Feedback:
%s

Program:
%s

%s
Return a single `+"```python```"+` block with the full program.
`, feedback, code, filePathRules)
}

// ReviewerAnalysis asks for a diagnosis of an execution transcript.
func ReviewerAnalysis(code, transcript string) string {
	return fmt.Sprintf(`Diagnose this program run.

Program:
%s

Execution result:
%s

Answer in this form:
ISSUE_TYPE: execution_error | output_error | success
ROOT_CAUSE: <one line>
PROBLEMS: <list>
APPROACH: <how to fix>
`, code, transcript)
}

// ReviewerFix asks for corrected code given a diagnosis.
func ReviewerFix(code, transcript, analysis string) string {
	return fmt.Sprintf(`Using the diagnosis, fix the program.

Diagnosis:
%s

Program:
%s

Execution result:
%s

Fix the root cause and keep working parts unchanged. Return the complete
program in a `+"```python```"+` block.
`, analysis, code, transcript)
}

// DocumentCritique asks for a critique of a report against its sources.
func DocumentCritique(document, sources string) string {
	return fmt.Sprintf(`Critique this research report for clarity, completeness and relevance to the sources.

Report:
%s

Sources:
%s

List gaps, inconsistencies and missing information with concrete suggestions.
`, document, sources)
}

// CodeExecutionReview asks for a review of code and its execution transcript.
func CodeExecutionReview(code, transcript string) string {
	return fmt.Sprintf(`Review this program and its execution.

Program:
%s

Execution:
%s

If it failed, propose corrections. If it worked, propose improvements.
`, code, transcript)
}

// SummaryFeedback asks for one actionable message combining report and code
// feedback for the next planning round.
func SummaryFeedback(reportFeedback, codeFeedback string) string {
	return fmt.Sprintf(`Combine the feedback below into one actionable message for the principal investigator.

Report feedback:
%s

Code feedback:
%s

State what must change in the next iteration.
`, reportFeedback, codeFeedback)
}

// PackageResolution asks for the pip package that provides module.
func PackageResolution(module string) string {
	return fmt.Sprintf(`A Python program failed with "No module named %s".
Which pip package provides the module %q? Reply with the package name only.
`, module, module)
}

// ExecutionFailureReasoning asks for an explanation of a failed run.
func ExecutionFailureReasoning(code, stdout, stderr string) string {
	return fmt.Sprintf(`This Python program failed.

Program:
%s

Stdout:
%s

Stderr:
%s

Explain the most likely cause and what change would fix it. Be brief.
`, code, stdout, stderr)
}
