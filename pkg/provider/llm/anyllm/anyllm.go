// Package anyllm provides a model gateway backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. It lets a deployment point Orquesta at any of those backends with a
// single adapter.
//
// Usage:
//
//	gw, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/jmvillota/orquesta/pkg/provider/llm"
	"github.com/jmvillota/orquesta/pkg/types"
)

// Gateway implements llm.Gateway by wrapping github.com/mozilla-ai/any-llm-go.
type Gateway struct {
	backend     anyllmlib.Provider
	backendName string
	model       string
}

var _ llm.Gateway = (*Gateway)(nil)

// New creates a Gateway backed by the given provider name.
//
// backendName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq". model is the specific model to use. opts are
// any-llm-go options (e.g., anyllmlib.WithAPIKey); without an API key option
// the backend falls back to its usual environment variable.
func New(backendName, model string, opts ...anyllmlib.Option) (*Gateway, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backendName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(backendName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backendName, err)
	}
	return &Gateway{backend: backend, backendName: backendName, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq", name)
	}
}

// Generate implements llm.Gateway.
func (g *Gateway) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.Response, error) {
	params := g.buildParams(req.History, req.Tools, req.Temperature, req.MaxTokens)
	return g.complete(ctx, params)
}

// GenerateFromDocuments implements llm.Gateway.
func (g *Gateway) GenerateFromDocuments(ctx context.Context, req llm.DocumentRequest) (*llm.Response, error) {
	prompt := llm.DocumentPrompt(req.Prompt, req.Documents)
	history := []types.Message{{Role: types.RoleUser, Content: prompt}}

	resp, err := g.complete(ctx, g.buildParams(history, nil, 0, 0))
	if err != nil {
		return nil, err
	}
	resp.ToolCalls = nil
	if resp.FinishReason == llm.FinishToolCalls {
		resp.FinishReason = llm.FinishStop
	}
	return resp, nil
}

// ContinueWithToolResults implements llm.Gateway.
func (g *Gateway) ContinueWithToolResults(ctx context.Context, req llm.ContinueRequest) (*llm.Response, error) {
	return g.Generate(ctx, llm.GenerateRequest{
		History:     llm.AppendToolResults(req.History, req.Results),
		Tools:       req.Tools,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
}

// complete sends the request through the backend and normalises the response.
func (g *Gateway) complete(ctx context.Context, params anyllmlib.CompletionParams) (*llm.Response, error) {
	resp, err := g.backend.Completion(ctx, params)
	if err != nil {
		return nil, &llm.ProviderError{Provider: g.backendName, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.ProviderError{Provider: g.backendName, Err: fmt.Errorf("empty choices in response")}
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Text:         choice.Message.ContentString(),
		FinishReason: mapFinishReason(choice.FinishReason),
	}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &llm.ProviderError{
					Provider: g.backendName,
					Err:      fmt.Errorf("malformed arguments for tool %q: %w", tc.Function.Name, err),
				}
			}
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = llm.FinishToolCalls
	}
	return out, nil
}

// buildParams converts history and tools into anyllm CompletionParams.
func (g *Gateway) buildParams(history []types.Message, tools []types.ToolDescriptor, temperature float64, maxTokens int) anyllmlib.CompletionParams {
	messages := []anyllmlib.Message{{
		Role:    anyllmlib.RoleSystem,
		Content: llm.SystemInstruction(history),
	}}
	for _, m := range llm.WithoutSystem(history) {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	if temperature == 0 {
		temperature = llm.DefaultTemperature
	}
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	params := anyllmlib.CompletionParams{
		Model:       g.model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	for _, td := range tools {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  schemaToMap(td.Parameters),
			},
		})
	}
	return params
}

// schemaToMap converts a tool schema into the loose map the library expects.
func schemaToMap(s types.ToolSchema) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// mapFinishReason normalises the backend's finish reason.
func mapFinishReason(reason string) string {
	switch reason {
	case anyllmlib.FinishReasonToolCalls:
		return llm.FinishToolCalls
	case "length":
		return llm.FinishLength
	default:
		return llm.FinishStop
	}
}
