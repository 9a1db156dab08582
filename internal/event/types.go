package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns an identifier of the form "category.action".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeRunStarted         = "run.started"
	TypeRunCompleted       = "run.completed"
	TypeIterationStarted   = "iteration.started"
	TypeIterationCompleted = "iteration.completed"
	TypeRoleInvoked        = "role.invoked"
	TypeExecutionAttempt   = "execution.attempt"
	TypeJobStateChanged    = "job.state_changed"
	TypeBudgetWarning      = "budget.warning"
)

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// RunStartedEvent is emitted once the inputs are validated and the roles are ready.
type RunStartedEvent struct {
	baseEvent
	RunID     string
	Topic     string
	Mode      string
	MaxRounds int
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID, topic, mode string, maxRounds int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent(TypeRunStarted),
		RunID:     runID,
		Topic:     topic,
		Mode:      mode,
		MaxRounds: maxRounds,
	}
}

// RunCompletedEvent is emitted when the controller stops, whatever the outcome.
type RunCompletedEvent struct {
	baseEvent
	RunID      string
	Outcome    string // succeeded, pending, failed or completed
	Iterations int
	Err        error
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(runID, outcome string, iterations int, err error) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent:  newBaseEvent(TypeRunCompleted),
		RunID:      runID,
		Outcome:    outcome,
		Iterations: iterations,
		Err:        err,
	}
}

// -----------------------------------------------------------------------------
// Iteration Events
// -----------------------------------------------------------------------------

// IterationStartedEvent marks the beginning of round Iteration (0-based).
type IterationStartedEvent struct {
	baseEvent
	Iteration int
	MaxRounds int
}

// NewIterationStartedEvent creates an IterationStartedEvent.
func NewIterationStartedEvent(iteration, maxRounds int) IterationStartedEvent {
	return IterationStartedEvent{
		baseEvent: newBaseEvent(TypeIterationStarted),
		Iteration: iteration,
		MaxRounds: maxRounds,
	}
}

// IterationCompletedEvent marks the end of a round, after artifacts are persisted.
type IterationCompletedEvent struct {
	baseEvent
	Iteration int
	Success   bool
	Pending   bool
	Done      bool // the run stops after this round
}

// NewIterationCompletedEvent creates an IterationCompletedEvent.
func NewIterationCompletedEvent(iteration int, success, pending, done bool) IterationCompletedEvent {
	return IterationCompletedEvent{
		baseEvent: newBaseEvent(TypeIterationCompleted),
		Iteration: iteration,
		Success:   success,
		Pending:   pending,
		Done:      done,
	}
}

// -----------------------------------------------------------------------------
// Role Events
// -----------------------------------------------------------------------------

// RoleInvokedEvent records one completed role operation. It is the source of
// the conversation log.
type RoleInvokedEvent struct {
	baseEvent
	Role      string
	Operation string
	Iteration int
	Message   string
	Metadata  map[string]any
	Duration  time.Duration
	Err       error
}

// NewRoleInvokedEvent creates a RoleInvokedEvent.
func NewRoleInvokedEvent(role, operation string, iteration int, message string, metadata map[string]any) RoleInvokedEvent {
	return RoleInvokedEvent{
		baseEvent: newBaseEvent(TypeRoleInvoked),
		Role:      role,
		Operation: operation,
		Iteration: iteration,
		Message:   message,
		Metadata:  metadata,
	}
}

// -----------------------------------------------------------------------------
// Execution Events
// -----------------------------------------------------------------------------

// ExecutionAttemptEvent is emitted after each attempt of the retry engine.
type ExecutionAttemptEvent struct {
	baseEvent
	Iteration   int
	Attempt     int
	MaxAttempts int
	Backend     string
	Success     bool
	Kind        string
	JobID       string
}

// NewExecutionAttemptEvent creates an ExecutionAttemptEvent.
func NewExecutionAttemptEvent(iteration, attempt, maxAttempts int, backend string, success bool, kind, jobID string) ExecutionAttemptEvent {
	return ExecutionAttemptEvent{
		baseEvent:   newBaseEvent(TypeExecutionAttempt),
		Iteration:   iteration,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Backend:     backend,
		Success:     success,
		Kind:        kind,
		JobID:       jobID,
	}
}

// JobStateChangedEvent is emitted on every batch state machine transition.
type JobStateChangedEvent struct {
	baseEvent
	JobID     string
	Iteration int
	FromState string
	ToState   string
	Detail    string
}

// NewJobStateChangedEvent creates a JobStateChangedEvent.
func NewJobStateChangedEvent(jobID string, iteration int, from, to, detail string) JobStateChangedEvent {
	return JobStateChangedEvent{
		baseEvent: newBaseEvent(TypeJobStateChanged),
		JobID:     jobID,
		Iteration: iteration,
		FromState: from,
		ToState:   to,
		Detail:    detail,
	}
}

// -----------------------------------------------------------------------------
// Budget Events
// -----------------------------------------------------------------------------

// BudgetWarningEvent is emitted when cumulative token usage crosses a
// configured threshold.
type BudgetWarningEvent struct {
	baseEvent
	Tokens    int64
	Threshold int64
	Limit     bool // the hard limit, not the soft warning, was crossed
}

// NewBudgetWarningEvent creates a BudgetWarningEvent.
func NewBudgetWarningEvent(tokens, threshold int64, limit bool) BudgetWarningEvent {
	return BudgetWarningEvent{
		baseEvent: newBaseEvent(TypeBudgetWarning),
		Tokens:    tokens,
		Threshold: threshold,
		Limit:     limit,
	}
}
