// Package execution runs generated programs. It provides two back ends
// behind one interface:
//
//   - [LocalBackend] runs the program as a subprocess and repairs missing
//     Python dependencies before giving up.
//   - [BatchBackend] renders a scheduler job script, submits it, polls the
//     queue and classifies the finished job from its metadata and logs.
//
// Subprocess and scheduler failures never surface as Go errors. They are
// recorded on the returned model.ExecutionResult. An error is returned only
// when the back end could not be set up (for example an unwritable working
// directory) or when the generation service fails.
package execution
