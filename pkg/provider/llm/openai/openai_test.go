package openai

import (
	"testing"

	"github.com/jmvillota/orquesta/pkg/provider/llm"
	"github.com/jmvillota/orquesta/pkg/types"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("empty api key accepted")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("empty model accepted")
	}
	if _, err := New("key", "gpt-4o-mini"); err != nil {
		t.Errorf("valid construction failed: %v", err)
	}
}

func TestBuildParamsMessages(t *testing.T) {
	g, err := New("key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	history := []types.Message{
		{Role: types.RoleSystem, Content: "Eres un bot de pruebas."},
		{Role: types.RoleUser, Content: "hola"},
		{Role: types.RoleAssistant, Content: "buenas"},
		{Role: types.RoleUser, Content: "busca laptops"},
	}
	params := g.buildParams(history, nil, 0, 0)

	// Leading system message plus the three conversational turns.
	if len(params.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message is not a system message")
	}
	if params.Messages[1].OfUser == nil || params.Messages[2].OfAssistant == nil || params.Messages[3].OfUser == nil {
		t.Error("conversational roles not preserved")
	}

	if got := params.Temperature.Or(0); got != llm.DefaultTemperature {
		t.Errorf("temperature = %v, want default", got)
	}
	if got := params.MaxCompletionTokens.Or(0); got != int64(llm.DefaultMaxTokens) {
		t.Errorf("max tokens = %d, want default", got)
	}
}

func TestBuildParamsTools(t *testing.T) {
	g, err := New("key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tools := []types.ToolDescriptor{{
		Name:        "buscar_productos",
		Description: "Busca productos en el catálogo",
		Parameters: types.ToolSchema{
			Type: "object",
			Properties: map[string]*types.ToolProperty{
				"search": {Type: "string"},
			},
			Required: []string{"search"},
		},
	}}
	params := g.buildParams([]types.Message{{Role: types.RoleUser, Content: "hola"}}, tools, 0, 0)

	if len(params.Tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(params.Tools))
	}
	fn := params.Tools[0].Function
	if fn.Name != "buscar_productos" {
		t.Errorf("function name = %q", fn.Name)
	}
	props, ok := fn.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("parameters = %v", fn.Parameters)
	}
	if _, ok := props["search"]; !ok {
		t.Error("search property lost in translation")
	}
}

func TestSchemaToMap(t *testing.T) {
	m := schemaToMap(types.ToolSchema{
		Type:     "object",
		Required: []string{"a"},
		Properties: map[string]*types.ToolProperty{
			"a": {Type: "integer", Description: "un número"},
		},
	})
	if m["type"] != "object" {
		t.Errorf("type = %v", m["type"])
	}
	req, ok := m["required"].([]any)
	if !ok || len(req) != 1 || req[0] != "a" {
		t.Errorf("required = %v", m["required"])
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"stop", llm.FinishStop},
		{"length", llm.FinishLength},
		{"tool_calls", llm.FinishToolCalls},
		{"function_call", llm.FinishToolCalls},
		{"content_filter", llm.FinishStop},
	}
	for _, tc := range tests {
		if got := mapFinishReason(tc.in); got != tc.want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
