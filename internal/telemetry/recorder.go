package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Iron-Ham/agentlab/internal/event"
)

// Recorder turns bus events into metrics.
type Recorder struct {
	iterations   metric.Int64Counter
	attempts     metric.Int64Counter
	transitions  metric.Int64Counter
	roleDuration metric.Float64Histogram
	warnings     metric.Int64Counter
	runs         metric.Int64Counter
}

// NewRecorder creates the instruments on m.
func NewRecorder(m metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error
	if r.iterations, err = m.Int64Counter("agentlab.iterations",
		metric.WithDescription("Completed iterations by result")); err != nil {
		return nil, err
	}
	if r.attempts, err = m.Int64Counter("agentlab.execution.attempts",
		metric.WithDescription("Execution attempts by backend and outcome")); err != nil {
		return nil, err
	}
	if r.transitions, err = m.Int64Counter("agentlab.batch.transitions",
		metric.WithDescription("Batch job state transitions")); err != nil {
		return nil, err
	}
	if r.roleDuration, err = m.Float64Histogram("agentlab.role.duration",
		metric.WithDescription("Role operation latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.warnings, err = m.Int64Counter("agentlab.budget.warnings",
		metric.WithDescription("Token budget warnings")); err != nil {
		return nil, err
	}
	if r.runs, err = m.Int64Counter("agentlab.runs",
		metric.WithDescription("Finished runs by outcome")); err != nil {
		return nil, err
	}
	return r, nil
}

// Subscribe attaches the recorder to every event on bus and returns the
// subscription ID.
func (r *Recorder) Subscribe(bus *event.Bus) string {
	return bus.SubscribeAll(r.Record)
}

// Record updates the instruments for one event.
func (r *Recorder) Record(e event.Event) {
	ctx := context.Background()
	switch ev := e.(type) {
	case event.IterationCompletedEvent:
		r.iterations.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("success", ev.Success),
			attribute.Bool("pending", ev.Pending),
		))
	case event.ExecutionAttemptEvent:
		r.attempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("backend", ev.Backend),
			attribute.String("kind", ev.Kind),
			attribute.Bool("success", ev.Success),
		))
	case event.JobStateChangedEvent:
		r.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", ev.ToState)))
	case event.RoleInvokedEvent:
		r.roleDuration.Record(ctx, ev.Duration.Seconds(), metric.WithAttributes(
			attribute.String("role", ev.Role),
			attribute.String("operation", ev.Operation),
			attribute.Bool("error", ev.Err != nil),
		))
	case event.BudgetWarningEvent:
		r.warnings.Add(ctx, 1, metric.WithAttributes(attribute.Bool("limit", ev.Limit)))
	case event.RunCompletedEvent:
		r.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", ev.Outcome)))
	}
}
