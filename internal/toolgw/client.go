// Package toolgw is the HTTP client for the downstream tool gateway, the
// service that owns the business tools (catalog search, orders, payments,
// sales reporting) behind a small REST surface.
//
// Tool execution is deliberately infallible at the API level: a transport
// failure or a gateway-reported failure both come back as a ToolResult with
// Success false, never as a Go error. The model is supposed to see failed
// tool runs and explain them, not have the whole turn abort.
package toolgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jmvillota/orquesta/internal/resilience"
	"github.com/jmvillota/orquesta/pkg/types"
)

// ErrGatewayUnavailable is returned by ListTools when the gateway cannot be
// reached or answers with garbage. Callers degrade to an empty catalog.
var ErrGatewayUnavailable = errors.New("toolgw: tool gateway unavailable")

// DefaultTimeout bounds every request to the gateway.
const DefaultTimeout = 30 * time.Second

type listResponse struct {
	Tools []types.ToolDescriptor `json:"tools"`
}

type executeRequest struct {
	Arguments map[string]any `json:"arguments"`
}

type executeResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Formatted string `json:"formatted,omitempty"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Client talks to one tool gateway instance. A circuit breaker around the
// transport keeps a dead gateway from eating a full timeout on every tool
// call of every turn.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
	breaker *resilience.Breaker
}

// Option configures a [Client].
type Option func(*Client)

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpc.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely. Intended for
// tests and callers that need custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpc = hc
	}
}

// WithLogger sets the logger used for request and failure logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// New returns a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: DefaultTimeout},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker(resilience.Settings{
			Name:   "tool-gateway",
			Logger: c.log,
		})
	}
	return c
}

// ListTools fetches the tool catalog (GET /tools). A missing or empty tools
// field is a valid empty catalog; transport and decode failures are reported
// as ErrGatewayUnavailable.
func (c *Client) ListTools(ctx context.Context) ([]types.ToolDescriptor, error) {
	var tools []types.ToolDescriptor
	err := c.breaker.Do(func() error {
		var err error
		tools, err = c.fetchTools(ctx)
		return err
	})
	if errors.Is(err, resilience.ErrOpen) {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return tools, nil
}

func (c *Client) fetchTools(ctx context.Context) ([]types.ToolDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding tool list: %v", ErrGatewayUnavailable, err)
	}
	if out.Tools == nil {
		return []types.ToolDescriptor{}, nil
	}
	return out.Tools, nil
}

// Execute runs one tool (POST /tools/{name}/execute). It never returns an
// error: every failure mode is folded into the result so the caller can feed
// it back to the model.
func (c *Client) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	c.log.Debug("executing tool", "tool", call.Name)

	body, err := json.Marshal(executeRequest{Arguments: call.Arguments})
	if err != nil {
		return failure(call.Name, fmt.Sprintf("encoding arguments: %v", err))
	}

	// Only transport and protocol failures go through the breaker. A
	// well-formed failure response is the gateway working as intended.
	var result types.ToolResult
	err = c.breaker.Do(func() error {
		var err error
		result, err = c.post(ctx, call.Name, body)
		return err
	})
	if errors.Is(err, resilience.ErrOpen) {
		return failure(call.Name, "tool gateway unavailable: circuit open")
	}
	if err != nil {
		c.log.Warn("tool execution transport failure", "tool", call.Name, "error", err)
		return failure(call.Name, err.Error())
	}
	return result
}

func (c *Client) post(ctx context.Context, name string, body []byte) (types.ToolResult, error) {
	endpoint := c.baseURL + "/tools/" + url.PathEscape(name) + "/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return types.ToolResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return types.ToolResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.ToolResult{}, fmt.Errorf("reading response: %v", err)
	}

	var out executeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.ToolResult{}, fmt.Errorf("unexpected status %d from tool gateway", resp.StatusCode)
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "unknown tool execution error"
		}
		return failure(name, msg), nil
	}

	return types.ToolResult{
		Name:      name,
		Success:   true,
		Data:      out.Data,
		Formatted: out.Formatted,
	}, nil
}

// ExecuteAll runs calls strictly in order, one at a time. Tools can depend on
// the side effects of earlier tools in the same turn, so no parallelism.
func (c *Client) ExecuteAll(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, c.Execute(ctx, call))
	}
	return results
}

// HealthCheck reports whether the gateway answers its /health endpoint with
// an ok status. It never returns an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var out healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Status == "ok"
}

func failure(name, msg string) types.ToolResult {
	return types.ToolResult{Name: name, Success: false, Error: msg}
}
