// Package gemini provides a model gateway backed by the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jmvillota/orquesta/pkg/provider/llm"
	"github.com/jmvillota/orquesta/pkg/types"
)

// providerName is used in wrapped errors and registry lookups.
const providerName = "gemini"

// Gateway implements llm.Gateway using the Gemini API.
type Gateway struct {
	client *genai.Client
	model  string
}

var _ llm.Gateway = (*Gateway)(nil)

// New constructs a Gemini gateway. apiKey and model must be non-empty.
func New(ctx context.Context, apiKey, model string) (*Gateway, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gateway{client: client, model: model}, nil
}

// Close releases the underlying API client.
func (g *Gateway) Close() error {
	return g.client.Close()
}

// Generate implements llm.Gateway.
//
// The system message is extracted from the history and sent through Gemini's
// SystemInstruction mechanism; the remaining messages become chat history,
// with the newest user turn sent as the prompt.
func (g *Gateway) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.Response, error) {
	history := llm.WithoutSystem(req.History)
	if len(history) == 0 {
		return nil, &llm.ProviderError{Provider: providerName, Err: errors.New("empty message history")}
	}

	model := g.configureModel(llm.SystemInstruction(req.History), req.Temperature, req.MaxTokens, req.Tools)

	chat := model.StartChat()
	chat.History = toGeminiHistory(history[:len(history)-1])

	last := history[len(history)-1]
	resp, err := chat.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return nil, &llm.ProviderError{Provider: providerName, Err: err}
	}
	return parseResponse(resp)
}

// GenerateFromDocuments implements llm.Gateway. The document path is one-shot
// and stateless: no chat history, no tools, a single completion over the
// assembled prompt.
func (g *Gateway) GenerateFromDocuments(ctx context.Context, req llm.DocumentRequest) (*llm.Response, error) {
	model := g.configureModel(llm.SystemInstruction(nil), 0, 0, nil)

	prompt := llm.DocumentPrompt(req.Prompt, req.Documents)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, &llm.ProviderError{Provider: providerName, Err: err}
	}

	parsed, err := parseResponse(resp)
	if err != nil {
		return nil, err
	}
	// Tool-calling continuation is ignored on the document path.
	parsed.ToolCalls = nil
	if parsed.FinishReason == llm.FinishToolCalls {
		parsed.FinishReason = llm.FinishStop
	}
	return parsed, nil
}

// ContinueWithToolResults implements llm.Gateway. Results are folded into a
// synthetic assistant message on a copy of the history; the rest is Generate.
func (g *Gateway) ContinueWithToolResults(ctx context.Context, req llm.ContinueRequest) (*llm.Response, error) {
	return g.Generate(ctx, llm.GenerateRequest{
		History:     llm.AppendToolResults(req.History, req.Results),
		Tools:       req.Tools,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
}

// configureModel builds a per-request GenerativeModel with the system
// instruction, sampling settings, and tool declarations applied.
func (g *Gateway) configureModel(systemInstruction string, temperature float64, maxTokens int, tools []types.ToolDescriptor) *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	if temperature == 0 {
		temperature = llm.DefaultTemperature
	}
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	model.SetTemperature(float32(temperature))
	model.SetMaxOutputTokens(int32(maxTokens))

	if len(tools) > 0 {
		model.Tools = toGeminiTools(tools)
	}
	return model
}

// toGeminiHistory converts messages to the Gemini SDK's content format.
// Gemini knows only "user" and "model" roles in chat history.
func toGeminiHistory(messages []types.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == types.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return history
}

// toGeminiTools translates tool descriptors into Gemini function declarations.
func toGeminiTools(tools []types.ToolDescriptor) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaToGemini(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// schemaToGemini converts the top-level input schema of one tool.
func schemaToGemini(s types.ToolSchema) *genai.Schema {
	out := &genai.Schema{
		Type:     genai.TypeObject,
		Required: s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = propertyToGemini(prop)
		}
	}
	return out
}

// propertyToGemini converts a single property, recursing through array items
// and nested object properties so nested required lists survive translation.
func propertyToGemini(p *types.ToolProperty) *genai.Schema {
	out := &genai.Schema{
		Type:        mapType(p.Type),
		Description: p.Description,
		Enum:        p.Enum,
	}
	if p.Items != nil {
		out.Items = propertyToGemini(p.Items)
	}
	if len(p.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, nested := range p.Properties {
			out.Properties[name] = propertyToGemini(nested)
		}
		out.Required = p.Required
	}
	return out
}

// mapType maps JSON-Schema type strings to Gemini schema types. Unknown types
// degrade to string, matching the registry's loosest declaration.
func mapType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// parseResponse converts a Gemini API response into an llm.Response.
func parseResponse(resp *genai.GenerateContentResponse) (*llm.Response, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &llm.ProviderError{Provider: providerName, Err: errors.New("no content in response")}
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	var toolCalls []types.ToolCall

	for _, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			toolCalls = append(toolCalls, types.ToolCall{
				Name:      v.Name,
				Arguments: v.Args,
			})
		}
	}

	out := &llm.Response{
		Text:         strings.TrimSpace(text.String()),
		ToolCalls:    toolCalls,
		FinishReason: finishReason(candidate, len(toolCalls) > 0),
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// finishReason normalises Gemini's finish reason to the gateway contract.
func finishReason(c *genai.Candidate, hasToolCalls bool) string {
	if hasToolCalls {
		return llm.FinishToolCalls
	}
	if c.FinishReason == genai.FinishReasonMaxTokens {
		return llm.FinishLength
	}
	return llm.FinishStop
}
