package gemini

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/jmvillota/orquesta/pkg/provider/llm"
	"github.com/jmvillota/orquesta/pkg/types"
)

func TestSchemaToGemini(t *testing.T) {
	schema := types.ToolSchema{
		Type: "object",
		Properties: map[string]*types.ToolProperty{
			"search":   {Type: "string", Description: "término de búsqueda"},
			"max":      {Type: "integer"},
			"in_stock": {Type: "boolean"},
			"tags":     {Type: "array", Items: &types.ToolProperty{Type: "string"}},
			"filter": {
				Type: "object",
				Properties: map[string]*types.ToolProperty{
					"category": {Type: "string", Enum: []string{"ropa", "electrónico"}},
				},
				Required: []string{"category"},
			},
		},
		Required: []string{"search"},
	}

	got := schemaToGemini(schema)
	if got.Type != genai.TypeObject {
		t.Errorf("top-level type = %v", got.Type)
	}
	if len(got.Required) != 1 || got.Required[0] != "search" {
		t.Errorf("required = %v", got.Required)
	}
	if got.Properties["search"].Type != genai.TypeString {
		t.Errorf("search type = %v", got.Properties["search"].Type)
	}
	if got.Properties["search"].Description != "término de búsqueda" {
		t.Errorf("search description = %q", got.Properties["search"].Description)
	}
	if got.Properties["max"].Type != genai.TypeInteger {
		t.Errorf("max type = %v", got.Properties["max"].Type)
	}
	if got.Properties["in_stock"].Type != genai.TypeBoolean {
		t.Errorf("in_stock type = %v", got.Properties["in_stock"].Type)
	}

	tags := got.Properties["tags"]
	if tags.Type != genai.TypeArray || tags.Items == nil || tags.Items.Type != genai.TypeString {
		t.Errorf("tags schema = %+v", tags)
	}

	filter := got.Properties["filter"]
	if filter.Type != genai.TypeObject {
		t.Errorf("filter type = %v", filter.Type)
	}
	if len(filter.Required) != 1 || filter.Required[0] != "category" {
		t.Errorf("nested required lost: %v", filter.Required)
	}
	if got := filter.Properties["category"].Enum; len(got) != 2 {
		t.Errorf("enum = %v", got)
	}
}

func TestMapTypeUnknownDegradesToString(t *testing.T) {
	if got := mapType("datetime"); got != genai.TypeString {
		t.Errorf("mapType(datetime) = %v, want string", got)
	}
}

func TestToGeminiHistoryRoles(t *testing.T) {
	history := toGeminiHistory([]types.Message{
		{Role: types.RoleUser, Content: "hola"},
		{Role: types.RoleAssistant, Content: "buenas"},
	})
	if len(history) != 2 {
		t.Fatalf("got %d entries", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "model" {
		t.Errorf("roles = %q, %q", history[0].Role, history[1].Role)
	}
	if history[1].Parts[0] != genai.Text("buenas") {
		t.Errorf("parts = %v", history[1].Parts)
	}
}

func TestToGeminiTools(t *testing.T) {
	tools := toGeminiTools([]types.ToolDescriptor{
		{Name: "buscar_productos", Description: "Busca productos"},
		{Name: "crear_orden", Description: "Crea una orden"},
	})
	if len(tools) != 1 {
		t.Fatalf("got %d tool groups, want 1", len(tools))
	}
	decls := tools[0].FunctionDeclarations
	if len(decls) != 2 || decls[0].Name != "buscar_productos" || decls[1].Name != "crear_orden" {
		t.Errorf("declarations = %+v", decls)
	}
}

func TestParseResponseTextAndToolCalls(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []genai.Part{
					genai.Text("Déjame buscar."),
					genai.FunctionCall{Name: "buscar_productos", Args: map[string]any{"search": "laptop"}},
				},
			},
		}},
		UsageMetadata: &genai.UsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 5,
			TotalTokenCount:      15,
		},
	}

	got, err := parseResponse(resp)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if got.Text != "Déjame buscar." {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "buscar_productos" {
		t.Fatalf("ToolCalls = %+v", got.ToolCalls)
	}
	if got.ToolCalls[0].Arguments["search"] != "laptop" {
		t.Errorf("Arguments = %v", got.ToolCalls[0].Arguments)
	}
	if got.FinishReason != llm.FinishToolCalls {
		t.Errorf("FinishReason = %q", got.FinishReason)
	}
	if got.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", got.Usage)
	}
}

func TestParseResponseFinishReasons(t *testing.T) {
	truncated := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonMaxTokens,
			Content:      &genai.Content{Parts: []genai.Part{genai.Text("respuesta parc")}},
		}},
	}
	got, err := parseResponse(truncated)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if got.FinishReason != llm.FinishLength {
		t.Errorf("FinishReason = %q, want length", got.FinishReason)
	}
}

func TestParseResponseEmpty(t *testing.T) {
	_, err := parseResponse(&genai.GenerateContentResponse{})
	if err == nil {
		t.Fatal("want error on empty response")
	}
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Errorf("err = %v, want ProviderError", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(t.Context(), "", "gemini-2.0-flash"); err == nil {
		t.Error("empty api key accepted")
	}
	if _, err := New(t.Context(), "key", ""); err == nil {
		t.Error("empty model accepted")
	}
}
