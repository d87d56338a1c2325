package llm

import (
	"strings"
	"testing"

	"github.com/jmvillota/orquesta/pkg/types"
)

func TestSystemInstruction(t *testing.T) {
	custom := []types.Message{
		{Role: types.RoleUser, Content: "hola"},
		{Role: types.RoleSystem, Content: "Eres un bot de pruebas."},
	}
	if got := SystemInstruction(custom); got != "Eres un bot de pruebas." {
		t.Errorf("SystemInstruction = %q", got)
	}

	if got := SystemInstruction(nil); got != defaultSystemPrompt {
		t.Error("empty history must fall back to the default prompt")
	}
	noSystem := []types.Message{{Role: types.RoleUser, Content: "hola"}}
	if got := SystemInstruction(noSystem); got != defaultSystemPrompt {
		t.Error("history without a system message must fall back to the default prompt")
	}
}

func TestWithoutSystem(t *testing.T) {
	history := []types.Message{
		{Role: types.RoleSystem, Content: "instrucción"},
		{Role: types.RoleUser, Content: "hola"},
		{Role: types.RoleAssistant, Content: "buenas"},
	}
	got := WithoutSystem(history)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Role != types.RoleUser || got[1].Role != types.RoleAssistant {
		t.Errorf("roles = %q, %q", got[0].Role, got[1].Role)
	}
	if len(history) != 3 {
		t.Error("input slice was mutated")
	}
}

func TestDocumentPromptNoDocs(t *testing.T) {
	if got := DocumentPrompt("hola", nil); got != "hola" {
		t.Errorf("DocumentPrompt = %q", got)
	}
}

func TestDocumentPromptAssembly(t *testing.T) {
	got := DocumentPrompt("resume esto", []types.ExtractedDocument{
		{Name: "factura.pdf", Text: "Total: $120", PageCount: 1},
		{Name: "reporte.pdf", Text: "Ventas del mes", PageCount: 3},
	})

	for _, want := range []string{
		"resume esto",
		"--- Documentos adjuntos ---",
		"[factura.pdf] (1 página):",
		"[reporte.pdf] (3 páginas):",
		"Total: $120",
		"Ventas del mes",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt lacks %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, truncationMarker) {
		t.Error("short documents must not be marked truncated")
	}
}

func TestDocumentPromptTruncation(t *testing.T) {
	long := strings.Repeat("a", DocumentCharBudget+100)
	got := DocumentPrompt("lee", []types.ExtractedDocument{{Name: "grande.pdf", Text: long}})

	if !strings.Contains(got, truncationMarker) {
		t.Fatal("oversized document not marked truncated")
	}
	if strings.Contains(got, strings.Repeat("a", DocumentCharBudget+1)) {
		t.Error("document text exceeds the character budget")
	}
}

func TestAppendToolResults(t *testing.T) {
	history := []types.Message{{Role: types.RoleUser, Content: "busca laptops"}}
	results := []types.ToolResult{
		{Name: "buscar_productos", Success: true, Formatted: "3 resultados"},
		{Name: "crear_orden", Success: true, Data: map[string]any{"orden_id": "o-1"}},
		{Name: "procesar_pago", Success: false, Error: "timeout"},
	}

	got := AppendToolResults(history, results)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if len(history) != 1 {
		t.Error("input history was mutated")
	}

	last := got[1]
	if last.Role != types.RoleAssistant {
		t.Errorf("synthetic message role = %q", last.Role)
	}
	for _, want := range []string{
		"[Resultado de buscar_productos]: 3 resultados",
		`[Resultado de crear_orden]: {"orden_id":"o-1"}`,
		`[Resultado de procesar_pago]: {"error":"timeout"}`,
	} {
		if !strings.Contains(last.Content, want) {
			t.Errorf("synthetic message lacks %q:\n%s", want, last.Content)
		}
	}

	lines := strings.Split(last.Content, "\n")
	if len(lines) != 3 {
		t.Errorf("got %d lines, want 3 (one per result)", len(lines))
	}
}
