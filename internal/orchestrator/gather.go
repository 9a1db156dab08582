package orchestrator

import (
	"context"

	"github.com/Iron-Ham/agentlab/internal/agents"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/logging"
)

// GatherSources runs the gatherer before the controller starts. The call is
// tracked like every other role call, so it reaches the conversation log of
// any subscriber already on bus.
func GatherSources(ctx context.Context, g SourceGatherer, req agents.GatherRequest, bus *event.Bus, logger *logging.Logger) (string, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ctx, finish := newTracker(bus, logger).start(ctx, agents.RoleGatherer, "gather_sources", 0)
	text, err := g.GatherSources(ctx, req)
	finish(text, map[string]any{
		"pdfs":      len(req.PDFs),
		"links":     len(req.Links),
		"files_dir": req.FilesDir,
	}, err)
	return text, err
}
