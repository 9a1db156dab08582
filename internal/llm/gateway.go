// Package llm is the capability gateway every role uses to generate text.
//
// The gateway contract is deliberately small: submit a prompt with a model
// name and a sampling temperature, receive text, or fail with a
// transport/auth error. Failures are *errors.GatewayError values and abort
// the run.
package llm

import (
	"context"
	"sync"
	"time"
)

// Request is a single generation request.
type Request struct {
	Prompt      string
	Model       string // empty selects the gateway's default model
	Temperature float64
}

// Gateway generates text.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GatewayFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Response is one logged exchange with the service.
type Response struct {
	Prompt   string
	Text     string
	Model    string
	Tokens   int
	Duration time.Duration
}

// Usage accumulates token counts and the response log for one gateway
// instance. It is append-only and safe for concurrent use.
type Usage struct {
	mu     sync.Mutex
	tokens int64
	log    []Response
}

// Record appends a response and returns the new token total.
func (u *Usage) Record(r Response) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tokens += int64(r.Tokens)
	u.log = append(u.log, r)
	return u.tokens
}

// TotalTokens returns the cumulative generated-token count.
func (u *Usage) TotalTokens() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tokens
}

// Calls returns how many responses were recorded.
func (u *Usage) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.log)
}

// Log returns a copy of the response log.
func (u *Usage) Log() []Response {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]Response, len(u.log))
	copy(out, u.log)
	return out
}
