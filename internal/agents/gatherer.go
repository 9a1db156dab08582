package agents

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/agentlab/internal/prompt"
	"github.com/Iron-Ham/agentlab/internal/sources"
	"github.com/Iron-Ham/agentlab/internal/util"
)

// QuickSearchResults is how many search hits a quick search summarizes.
const QuickSearchResults = 3

// GatherRequest lists the operator's source inputs.
type GatherRequest struct {
	Topic    string
	PDFs     []string
	Links    []string
	FilesDir string
	// WorkingDir, when set, adds a listing of its files so the coder only
	// references files that exist.
	WorkingDir string
}

// Gatherer assembles the sources blob and runs quick searches.
type Gatherer struct {
	*worker
	fetcher  *sources.Fetcher
	searcher *sources.Searcher
}

// NewGatherer creates a Gatherer. Nil fetcher and searcher select the
// defaults.
func NewGatherer(deps Deps, temperature float64, fetcher *sources.Fetcher, searcher *sources.Searcher) *Gatherer {
	w := newWorker(RoleGatherer, deps, temperature)
	if fetcher == nil {
		fetcher = sources.NewFetcher(nil, w.logger)
	}
	if searcher == nil {
		searcher = sources.NewSearcher("", nil)
	}
	return &Gatherer{worker: w, fetcher: fetcher, searcher: searcher}
}

// GatherSources ingests every input and joins them into one labeled text.
func (g *Gatherer) GatherSources(ctx context.Context, req GatherRequest) (string, error) {
	g.say("gathering sources for %q", req.Topic)

	bundle := sources.Bundle{WorkingDir: req.WorkingDir}
	if len(req.Links) > 0 {
		bundle.Links = g.fetcher.Links(ctx, req.Links)
	}
	if len(req.PDFs) > 0 {
		bundle.PDFs = sources.PDFs(req.PDFs, g.logger)
	}
	if req.FilesDir != "" {
		listing, err := sources.ListDirectory(req.FilesDir)
		if err != nil {
			return "", err
		}
		bundle.FilesDirectory = listing
	}

	text, err := sources.Assemble(bundle)
	if err != nil {
		return "", err
	}
	g.preview("Assembled sources", text)
	return text, nil
}

// QuickSearch summarizes the top web results for query. A failed search is
// reported in the returned text; only gateway errors are returned as errors.
func (g *Gatherer) QuickSearch(ctx context.Context, query string) (string, error) {
	g.say("searching the web for %q", query)
	results, err := g.searcher.Search(ctx, query, QuickSearchResults)
	if err != nil {
		g.logger.Warn("quick search failed", "error", err)
		return fmt.Sprintf("DuckDuckGo search failed: %v", err), nil
	}
	raw := sources.FormatResults(results)

	g.say("summarizing top search results")
	summary, err := g.generate(ctx, "quick_search", prompt.QuickSearchSummary(query, raw))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Answer:\n%s\n\nBased on DuckDuckGo Search Results:\n\n%s", util.StripThinking(summary), raw), nil
}
