// Package approval provides the human approval gates of a run.
//
// A run pauses twice for the operator: once to approve the research plan
// before the first iteration, and once to approve the coding plan before
// the first program is written. Each gate blocks until the operator answers
// y or n; a "no" is followed by a request for the changes to make, which
// the caller feeds back to the role that produced the plan.
//
// The core type is [Gate], which reads answers through a [Prompter]. A gate
// created with auto-approve answers every question with yes without
// prompting, for unattended runs.
//
// # Usage
//
//	gate := approval.NewGate(approval.NewLinePrompter(os.Stdin, os.Stdout), false)
//
//	for {
//		d, err := gate.Confirm(ctx, approval.PlanQuestion)
//		if err != nil {
//			return err
//		}
//		if d.Approved {
//			break
//		}
//		plan, err = planner.CreatePlan(ctx, sources, topic, mode, d.Changes)
//	}
//
// # Thread Safety
//
// A [Gate] serializes prompts with an internal mutex.
package approval
