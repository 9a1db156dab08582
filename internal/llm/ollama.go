package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Iron-Ham/agentlab/internal/errors"
)

// DefaultURL is the generate endpoint of a local Ollama server.
const DefaultURL = "http://localhost:11434/api/generate"

// DefaultTimeout bounds a single generate call.
const DefaultTimeout = 120 * time.Second

// Client talks to an Ollama-compatible /api/generate endpoint.
type Client struct {
	url        string
	model      string
	httpClient *http.Client
	usage      *Usage
	onTokens   func(total int64)

	tokenCounter metric.Int64Counter
	callCounter  metric.Int64Counter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, including its timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenHook registers a callback invoked with the cumulative token total
// after every successful call.
func WithTokenHook(fn func(total int64)) Option {
	return func(c *Client) { c.onTokens = fn }
}

// NewClient creates a Client. An empty url or a non-positive timeout selects
// the defaults.
func NewClient(url, model string, timeout time.Duration, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		url:        url,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		usage:      &Usage{},
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.GetMeterProvider().Meter("github.com/Iron-Ham/agentlab/internal/llm")
	c.tokenCounter, _ = meter.Int64Counter("agentlab.llm.tokens",
		metric.WithDescription("Tokens generated by the text-generation service"))
	c.callCounter, _ = meter.Int64Counter("agentlab.llm.calls",
		metric.WithDescription("Generate calls by outcome"))
	return c
}

// Usage returns the client's token accounting.
func (c *Client) Usage() *Usage {
	return c.usage
}

// Model returns the default model name.
func (c *Client) Model() string {
	return c.model
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response  string `json:"response"`
	EvalCount int    `json:"eval_count"`
}

// Generate posts the prompt and returns the trimmed response text.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	start := time.Now()

	body, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: generateOptions{Temperature: req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", c.fail(ctx, errors.NewGatewayError("create request", err), model)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			c.count(ctx, "canceled")
			return "", errors.Wrap(errors.Join(errors.ErrCanceled, ctx.Err()), "ollama: send request")
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.count(ctx, "timeout")
			return "", errors.NewTimeoutError("generate", c.httpClient.Timeout).
				WithCause(fmt.Errorf("%w: %v", errors.ErrGatewayUnavailable, err))
		}
		return "", c.fail(ctx, errors.NewGatewayError("send request",
			fmt.Errorf("%w: %v", errors.ErrGatewayUnavailable, err)), model)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		cause := errors.ErrGatewayStatus
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			cause = errors.ErrGatewayAuth
		}
		msg := "generate"
		if s := strings.TrimSpace(string(snippet)); s != "" {
			msg = "generate: " + s
		}
		return "", c.fail(ctx, errors.NewGatewayError(msg, cause).WithStatus(resp.StatusCode), model)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", c.fail(ctx, errors.NewGatewayError("decode response",
			fmt.Errorf("%w: %v", errors.ErrGatewayResponse, err)), model)
	}

	text := strings.TrimSpace(result.Response)
	total := c.usage.Record(Response{
		Prompt:   req.Prompt,
		Text:     text,
		Model:    model,
		Tokens:   result.EvalCount,
		Duration: time.Since(start),
	})
	c.tokenCounter.Add(ctx, int64(result.EvalCount), metric.WithAttributes(attribute.String("model", model)))
	c.count(ctx, "ok")
	if c.onTokens != nil {
		c.onTokens(total)
	}
	return text, nil
}

func (c *Client) fail(ctx context.Context, err *errors.GatewayError, model string) error {
	c.count(ctx, "error")
	return err.WithModel(model).WithEndpoint(c.url)
}

func (c *Client) count(ctx context.Context, outcome string) {
	c.callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
