package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/telemetry"
	"github.com/Iron-Ham/agentlab/internal/util"
)

// messageChars bounds the message carried by a role invocation event.
const messageChars = 2000

// tracker wraps every role call in a span and publishes a RoleInvokedEvent
// when the call returns.
type tracker struct {
	bus    *event.Bus
	tracer trace.Tracer
	logger *logging.Logger
}

func newTracker(bus *event.Bus, logger *logging.Logger) *tracker {
	return &tracker{bus: bus, tracer: telemetry.Tracer(telemetry.Scope), logger: logger}
}

// finishFunc completes a tracked call.
type finishFunc func(message string, metadata map[string]any, err error)

// start opens a span for role.operation. The returned context carries the
// span and must be passed to the role.
func (t *tracker) start(ctx context.Context, role, operation string, iteration int) (context.Context, finishFunc) {
	ctx, span := t.tracer.Start(ctx, role+"."+operation, trace.WithAttributes(
		attribute.String("agentlab.role", role),
		attribute.String("agentlab.operation", operation),
		attribute.Int("agentlab.iteration", iteration),
	))
	began := time.Now()

	return ctx, func(message string, metadata map[string]any, err error) {
		elapsed := time.Since(began)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			t.logger.Error("role call failed",
				"role", role, "operation", operation, "iteration", iteration, "error", err)
		} else {
			t.logger.Debug("role call finished",
				"role", role, "operation", operation, "iteration", iteration, "duration", elapsed)
		}
		span.End()

		ev := event.NewRoleInvokedEvent(role, operation, iteration, util.TruncateString(message, messageChars), metadata)
		ev.Duration = elapsed
		ev.Err = err
		t.bus.Publish(ev)
	}
}
