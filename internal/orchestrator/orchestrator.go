// Package orchestrator owns the end-to-end "answer this user turn" operation.
//
// An answer turn pulls conversation state from the store, delegates to the
// model gateway, and whenever the model requests tool invocations drives a
// bounded loop through the tool gateway, feeding results back into the model
// until it produces a plain answer or the iteration cap is hit. The cap is
// the termination guarantee: without it a pathological model could request
// tools forever at provider cost.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmvillota/orquesta/internal/convo"
	"github.com/jmvillota/orquesta/internal/observe"
	"github.com/jmvillota/orquesta/internal/toolgw"
	"github.com/jmvillota/orquesta/pkg/provider/llm"
	"github.com/jmvillota/orquesta/pkg/types"
)

// DefaultMaxToolIterations bounds the tool loop when no explicit cap is
// configured.
const DefaultMaxToolIterations = 5

// ErrNotFound is returned for lookups of unknown conversation identifiers.
var ErrNotFound = convo.ErrNotFound

// ToolGateway is the downstream tool service as the orchestrator sees it.
type ToolGateway interface {
	ListTools(ctx context.Context) ([]types.ToolDescriptor, error)
	Execute(ctx context.Context, call types.ToolCall) types.ToolResult
	HealthCheck(ctx context.Context) bool
}

var _ ToolGateway = (*toolgw.Client)(nil)

// Request is one inbound user turn.
type Request struct {
	// ConversationID selects an existing conversation. Empty or unknown
	// identifiers start a fresh one.
	ConversationID string

	// UserText is the user's message.
	UserText string

	// Documents, when present, switch the turn to document mode: a single
	// model call over the extracted text, no conversation history, no tools.
	Documents []types.ExtractedDocument
}

// ToolUsage records one tool invocation made during a turn.
type ToolUsage struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
}

// Result is the outcome of a completed answer turn.
type Result struct {
	ConversationID string      `json:"conversationId"`
	AnswerText     string      `json:"message"`
	ToolsUsed      []ToolUsage `json:"toolsUsed"`
	Usage          *llm.Usage  `json:"usage,omitempty"`
}

// Orchestrator drives answer turns. Construct with [New]; all collaborators
// are injected so tests can substitute stubs for the model and tool gateways.
type Orchestrator struct {
	gateway  llm.Gateway
	tools    ToolGateway
	store    *convo.Store
	maxIters int
	provider string
	metrics  *observe.Metrics
	log      *slog.Logger

	mu      sync.RWMutex
	catalog []types.ToolDescriptor
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithMaxToolIterations overrides the tool loop cap. Values below 1 are
// rejected by New.
func WithMaxToolIterations(n int) Option {
	return func(o *Orchestrator) {
		o.maxIters = n
	}
}

// WithProviderName sets the provider label used in metrics and logs.
func WithProviderName(name string) Option {
	return func(o *Orchestrator) {
		o.provider = name
	}
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// New creates an [Orchestrator] with the given collaborators.
func New(gateway llm.Gateway, tools ToolGateway, store *convo.Store, opts ...Option) (*Orchestrator, error) {
	if gateway == nil {
		return nil, errors.New("orchestrator: model gateway is required")
	}
	if tools == nil {
		return nil, errors.New("orchestrator: tool gateway is required")
	}
	if store == nil {
		return nil, errors.New("orchestrator: conversation store is required")
	}

	o := &Orchestrator{
		gateway:  gateway,
		tools:    tools,
		store:    store,
		maxIters: DefaultMaxToolIterations,
		provider: "model",
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxIters < 1 {
		return nil, fmt.Errorf("orchestrator: max tool iterations must be at least 1, got %d", o.maxIters)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// Init loads the tool catalog from the tool gateway. An unreachable gateway
// degrades the catalog to empty rather than failing startup: the service
// still answers chat turns, just without tools.
func (o *Orchestrator) Init(ctx context.Context) {
	tools, err := o.tools.ListTools(ctx)
	if err != nil {
		o.log.Warn("tool catalog unavailable, starting with empty catalog", "error", err)
		tools = []types.ToolDescriptor{}
	}

	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	o.log.Info("tool catalog loaded", "count", len(tools), "tools", names)

	o.mu.Lock()
	o.catalog = tools
	o.mu.Unlock()
}

// RefreshTools re-fetches the catalog. Unlike Init, a fetch failure keeps the
// current catalog and reports the error, so a transient gateway outage cannot
// wipe a previously good catalog.
func (o *Orchestrator) RefreshTools(ctx context.Context) ([]types.ToolDescriptor, error) {
	tools, err := o.tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.catalog = tools
	o.mu.Unlock()
	return tools, nil
}

// Tools returns the cached catalog.
func (o *Orchestrator) Tools() []types.ToolDescriptor {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]types.ToolDescriptor, len(o.catalog))
	copy(out, o.catalog)
	return out
}

// Conversation returns the conversation's history, or ErrNotFound.
func (o *Orchestrator) Conversation(id string) (types.Conversation, error) {
	return o.store.Get(id)
}

// DeleteConversation removes the conversation and reports whether it existed.
func (o *Orchestrator) DeleteConversation(id string) bool {
	deleted := o.store.Delete(id)
	if deleted {
		o.metrics.ActiveConversations.Add(context.Background(), -1)
	}
	return deleted
}

// Answer runs one full user turn and returns the final assistant answer.
//
// When req.Documents is non-empty the turn runs in document mode: one model
// call over the document text, no history, no tool loop. Otherwise the model
// sees the full conversation history and the cached tool catalog, and any
// tool calls it emits are executed and fed back until it answers in plain
// text or the iteration cap is reached. Pending tool calls at the cap are
// discarded and the last text wins.
//
// Model gateway failures abort the turn; the already-appended user message
// stays in the conversation, so a retry on the same identifier re-sends that
// turn as context.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Result, error) {
	turnStart := time.Now()

	conv := o.store.GetOrCreate(req.ConversationID)
	if conv.ID != req.ConversationID {
		o.metrics.ActiveConversations.Add(ctx, 1)
	}

	// Serialise whole turns per conversation so concurrent requests against
	// the same identifier cannot interleave their appends.
	release := o.store.LockTurn(conv.ID)
	defer release()

	var meta *types.MessageMetadata
	if len(req.Documents) > 0 {
		names := make([]string, len(req.Documents))
		for i, d := range req.Documents {
			names[i] = d.Name
		}
		meta = &types.MessageMetadata{FilesAttached: names}
	}
	if err := o.store.Append(conv.ID, types.NewMessage(types.RoleUser, req.UserText, meta)); err != nil {
		return nil, err
	}

	conv, err := o.store.Get(conv.ID)
	if err != nil {
		return nil, err
	}
	catalog := o.Tools()

	documentMode := len(req.Documents) > 0

	var resp *llm.Response
	if documentMode {
		resp, err = o.generateFromDocuments(ctx, req, catalog)
	} else {
		resp, err = o.generate(ctx, conv.Messages, catalog)
	}
	if err != nil {
		return nil, err
	}

	toolsUsed := []ToolUsage{}

	// Document mode never enters the tool loop.
	if !documentMode {
		iterations := 0
		for len(resp.ToolCalls) > 0 && iterations < o.maxIters {
			iterations++
			o.metrics.RecordLoopIteration(ctx, false)
			o.log.Debug("executing tool calls", "conversation", conv.ID, "iteration", iterations, "count", len(resp.ToolCalls))

			results := make([]types.ToolResult, 0, len(resp.ToolCalls))
			for _, call := range resp.ToolCalls {
				result := o.executeTool(ctx, call)
				toolsUsed = append(toolsUsed, ToolUsage{Name: call.Name, Success: result.Success})
				results = append(results, result)
			}

			resp, err = o.continueWithResults(ctx, conv.Messages, results, catalog)
			if err != nil {
				return nil, err
			}
		}

		if len(resp.ToolCalls) > 0 {
			// Cap reached with tool calls still pending. Discard them and
			// keep whatever text the model produced last.
			o.metrics.RecordLoopIteration(ctx, true)
			o.log.Warn("tool iteration cap reached, discarding pending tool calls",
				"conversation", conv.ID, "pending", len(resp.ToolCalls), "cap", o.maxIters)
		}
	}

	var assistantMeta *types.MessageMetadata
	if len(toolsUsed) > 0 {
		names := make([]string, len(toolsUsed))
		for i, u := range toolsUsed {
			names[i] = u.Name
		}
		assistantMeta = &types.MessageMetadata{ToolsUsed: names}
	}
	if err := o.store.Append(conv.ID, types.NewMessage(types.RoleAssistant, resp.Text, assistantMeta)); err != nil {
		return nil, err
	}

	o.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())

	var usage *llm.Usage
	if resp.Usage != (llm.Usage{}) {
		u := resp.Usage
		usage = &u
	}

	return &Result{
		ConversationID: conv.ID,
		AnswerText:     resp.Text,
		ToolsUsed:      toolsUsed,
		Usage:          usage,
	}, nil
}

func (o *Orchestrator) generate(ctx context.Context, history []types.Message, catalog []types.ToolDescriptor) (*llm.Response, error) {
	return o.modelCall(ctx, "generate", func() (*llm.Response, error) {
		return o.gateway.Generate(ctx, llm.GenerateRequest{History: history, Tools: catalog})
	})
}

func (o *Orchestrator) generateFromDocuments(ctx context.Context, req Request, catalog []types.ToolDescriptor) (*llm.Response, error) {
	return o.modelCall(ctx, "generate_from_documents", func() (*llm.Response, error) {
		return o.gateway.GenerateFromDocuments(ctx, llm.DocumentRequest{
			Prompt:    req.UserText,
			Documents: req.Documents,
			Tools:     catalog,
		})
	})
}

func (o *Orchestrator) continueWithResults(ctx context.Context, history []types.Message, results []types.ToolResult, catalog []types.ToolDescriptor) (*llm.Response, error) {
	return o.modelCall(ctx, "continue", func() (*llm.Response, error) {
		return o.gateway.ContinueWithToolResults(ctx, llm.ContinueRequest{
			History: history,
			Results: results,
			Tools:   catalog,
		})
	})
}

// modelCall wraps one model gateway call with latency and outcome metrics.
func (o *Orchestrator) modelCall(ctx context.Context, operation string, call func() (*llm.Response, error)) (*llm.Response, error) {
	start := time.Now()
	resp, err := call()
	o.metrics.ModelCallDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		o.metrics.RecordModelRequest(ctx, o.provider, operation, "error")
		o.metrics.RecordModelError(ctx, o.provider)
		o.log.Error("model call failed", "provider", o.provider, "operation", operation, "error", err)
		return nil, err
	}
	o.metrics.RecordModelRequest(ctx, o.provider, operation, "ok")
	return resp, nil
}

// executeTool runs one tool call with latency and outcome metrics. Failures
// come back as failed results, never as errors.
func (o *Orchestrator) executeTool(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := o.tools.Execute(ctx, call)
	o.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if !result.Success {
		status = "failed"
		o.log.Warn("tool execution failed", "tool", call.Name, "error", result.Error)
	}
	o.metrics.RecordToolCall(ctx, call.Name, status)
	return result
}
