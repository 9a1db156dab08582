package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/Iron-Ham/agentlab/internal/llm"
)

type rule struct {
	substr    string
	responses []string
	served    int
}

// Gateway is a scripted llm.Gateway. Each prompt is matched against the
// registered substrings in registration order; a rule returns its responses
// in sequence and then repeats the last one. Unmatched prompts get the
// default response.
type Gateway struct {
	mu       sync.Mutex
	rules    []*rule
	fallback string
	err      error
	requests []llm.Request
}

// NewGateway creates a Gateway whose default response is "ok".
func NewGateway() *Gateway {
	return &Gateway{fallback: "ok"}
}

// On registers responses for prompts containing substr.
func (g *Gateway) On(substr string, responses ...string) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, &rule{substr: substr, responses: responses})
	return g
}

// Default sets the response for unmatched prompts.
func (g *Gateway) Default(resp string) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = resp
	return g
}

// Fail makes every call return err.
func (g *Gateway) Fail(err error) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
	return g
}

// Generate implements llm.Gateway.
func (g *Gateway) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, r := range g.rules {
		if !strings.Contains(req.Prompt, r.substr) || len(r.responses) == 0 {
			continue
		}
		i := r.served
		if i >= len(r.responses) {
			i = len(r.responses) - 1
		}
		r.served++
		return r.responses[i], nil
	}
	return g.fallback, nil
}

// Requests returns every request received so far.
func (g *Gateway) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// Count returns how many prompts contained substr.
func (g *Gateway) Count(substr string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if strings.Contains(r.Prompt, substr) {
			n++
		}
	}
	return n
}
