// Package openai provides a model gateway backed by the OpenAI API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/jmvillota/orquesta/pkg/provider/llm"
	"github.com/jmvillota/orquesta/pkg/types"
)

const providerName = "openai"

// Gateway implements llm.Gateway using the OpenAI chat completions API.
type Gateway struct {
	client oai.Client
	model  string
}

var _ llm.Gateway = (*Gateway)(nil)

// config holds optional configuration for the gateway.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Gateway.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI gateway.
func New(apiKey, model string, opts ...Option) (*Gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Gateway{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Generate implements llm.Gateway.
func (g *Gateway) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.Response, error) {
	params := g.buildParams(req.History, req.Tools, req.Temperature, req.MaxTokens)
	return g.complete(ctx, params)
}

// GenerateFromDocuments implements llm.Gateway. The assembled document prompt
// is sent as a single user message with no history and no tools.
func (g *Gateway) GenerateFromDocuments(ctx context.Context, req llm.DocumentRequest) (*llm.Response, error) {
	prompt := llm.DocumentPrompt(req.Prompt, req.Documents)
	history := []types.Message{{Role: types.RoleUser, Content: prompt}}

	params := g.buildParams(history, nil, 0, 0)
	resp, err := g.complete(ctx, params)
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

// complete sends the request and normalises the response.
func (g *Gateway) complete(ctx context.Context, params oai.ChatCompletionNewParams) (*llm.Response, error) {
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &llm.ProviderError{Provider: providerName, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.ProviderError{Provider: providerName, Err: fmt.Errorf("empty choices in response")}
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Text:         choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &llm.ProviderError{
					Provider: providerName,
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

// buildParams converts history and tools into OpenAI SDK params. The system
// instruction travels as a leading system message; system-role entries are
// stripped from the conversational history.
func (g *Gateway) buildParams(history []types.Message, tools []types.ToolDescriptor, temperature float64, maxTokens int) oai.ChatCompletionNewParams {
	messages := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(llm.SystemInstruction(history)),
	}
	for _, m := range llm.WithoutSystem(history) {
		switch m.Role {
		case types.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}

	if temperature == 0 {
		temperature = llm.DefaultTemperature
	}
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(g.model),
		Messages:            messages,
		Temperature:         param.NewOpt(temperature),
		MaxCompletionTokens: param.NewOpt(int64(maxTokens)),
	}

	for _, td := range tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(schemaToMap(td.Parameters)),
			},
		})
	}
	return params
}

// schemaToMap converts a tool schema into the loose map the SDK expects. The
// schema's JSON tags already match JSON-Schema, so a round-trip suffices.
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

// mapFinishReason normalises the SDK's finish reason to the gateway contract.
func mapFinishReason(reason string) string {
	switch reason {
	case "length":
		return llm.FinishLength
	case "tool_calls", "function_call":
		return llm.FinishToolCalls
	default:
		return llm.FinishStop
	}
}
