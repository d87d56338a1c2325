// Package llm defines the Gateway interface for language-model backends.
//
// A model gateway wraps a remote LLM API (e.g., Google Gemini, OpenAI, or any
// backend reachable through any-llm-go) and exposes a uniform capability set
// for the Orquesta orchestrator: produce a response from a message history
// plus a tool catalog, produce a one-shot response from a prompt plus
// extracted document text, and continue a conversation after tool results are
// known. Callers depend only on this interface, never on a concrete provider.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly. Any transport or provider-side failure is wrapped in
// a *ProviderError and returned — never silently swallowed. No retries happen
// at this layer.
package llm

import (
	"context"
	"fmt"

	"github.com/jmvillota/orquesta/pkg/types"
)

// Finish reasons reported by the model.
const (
	// FinishStop means the model produced a complete plain answer.
	FinishStop = "stop"

	// FinishLength means generation was cut off by the output token cap.
	FinishLength = "length"

	// FinishToolCalls means the model is requesting tool invocations.
	FinishToolCalls = "tool_calls"
)

// Defaults applied by adapters when the corresponding request field is unset.
const (
	// DefaultTemperature is the sampling temperature used when a request
	// leaves Temperature at zero.
	DefaultTemperature = 0.7

	// DefaultMaxTokens bounds the completion length when a request leaves
	// MaxTokens at zero.
	DefaultMaxTokens = 2048
)

// Usage holds token accounting returned by the model backend. Counts are in
// the model's native token unit and may differ between providers for the same
// textual content.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Response is the outcome of one gateway call. The orchestrator inspects only
// ToolCalls and FinishReason to decide whether to continue looping.
type Response struct {
	// Text is the model's answer. May be empty when the model responds
	// exclusively with tool calls.
	Text string

	// ToolCalls lists tool invocations the model is requesting, in the order
	// the model emitted them. Empty when the model produced a plain answer.
	ToolCalls []types.ToolCall

	// FinishReason is one of FinishStop, FinishLength, or FinishToolCalls.
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// GenerateRequest carries a conversation turn to the model.
type GenerateRequest struct {
	// History is the ordered conversation so far. The last element is the
	// newest user turn. Messages with role "system" are extracted and sent to
	// the provider as a standing instruction, not as conversational history;
	// when none is present the provider default instruction is substituted.
	History []types.Message

	// Tools is the catalog offered to the model for function calling.
	Tools []types.ToolDescriptor

	// Temperature controls output randomness. Zero means DefaultTemperature.
	Temperature float64

	// MaxTokens caps the completion length. Zero means DefaultMaxTokens.
	MaxTokens int
}

// DocumentRequest carries a one-shot, stateless completion over extracted
// document text. This path never consults conversation history and ignores
// tool-calling continuation: attaching documents switches the turn into a
// single non-agentic completion.
type DocumentRequest struct {
	// Prompt is the user's message text.
	Prompt string

	// Documents is the extracted text to ground the answer on. Each document
	// is truncated to DocumentCharBudget characters in the assembled prompt.
	Documents []types.ExtractedDocument

	// Tools is accepted for interface symmetry but not offered to the model.
	Tools []types.ToolDescriptor
}

// ContinueRequest resumes a conversation after tool execution. Results are
// serialised into a single synthetic assistant message appended to a copy of
// History; the conversation store is never touched by this call.
type ContinueRequest struct {
	History     []types.Message
	Results     []types.ToolResult
	Tools       []types.ToolDescriptor
	Temperature float64
	MaxTokens   int
}

// Gateway is the abstraction over a language-model provider's request,
// response, and function-calling mechanics.
type Gateway interface {
	// Generate produces a response from a message history plus a tool catalog.
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)

	// GenerateFromDocuments produces a one-shot response from a prompt plus
	// extracted document text. It never triggers the tool loop.
	GenerateFromDocuments(ctx context.Context, req DocumentRequest) (*Response, error)

	// ContinueWithToolResults feeds tool results back to the model and then
	// behaves exactly like Generate.
	ContinueWithToolResults(ctx context.Context, req ContinueRequest) (*Response, error)
}

// ProviderError wraps any failure coming out of a model provider. It is fatal
// to the answer call that triggered it and carries the upstream message so
// the caller sees why the provider rejected the request.
type ProviderError struct {
	// Provider is the adapter name (e.g., "gemini", "openai").
	Provider string

	// Err is the upstream error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

// Unwrap supports errors.Is/errors.As chains.
func (e *ProviderError) Unwrap() error { return e.Err }
