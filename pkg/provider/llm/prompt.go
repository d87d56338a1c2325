package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jmvillota/orquesta/pkg/types"
)

// DocumentCharBudget is the per-document character cap applied when document
// text is concatenated into a prompt. Bounds prompt size regardless of how
// large the uploaded document was.
const DocumentCharBudget = 5000

// truncationMarker is appended when a document was cut at the budget.
const truncationMarker = "\n... [texto truncado]"

// defaultSystemPrompt is the standing instruction substituted when the
// history carries no system message. Carried over from the marketplace
// assistant this service fronts.
const defaultSystemPrompt = `Eres un asistente inteligente del Marketplace Espigón Manta.

Tu rol es ayudar a los usuarios con:
- Buscar productos en el catálogo
- Crear órdenes de compra
- Consultar estados de pago
- Procesar pagos
- Ver resúmenes de ventas (para vendedores)

INSTRUCCIONES IMPORTANTES:
1. SIEMPRE ejecuta las herramientas cuando el usuario pregunte algo que requiera datos del sistema. NO muestres código, ejecuta la herramienta directamente.
2. Cuando el usuario dice "general", "todas", "todos" o no especifica subcategoría, NO envíes sub_category_name. Solo filtra por categoría.
3. Cuando busques productos por categoría, usa category_name con el nombre (ej: "electrónico", "ropa"), NO necesitas IDs.
4. Responde siempre en español de forma amigable y profesional.
5. Presenta los resultados de forma clara y legible, no como código.
6. Si no encuentras resultados, sugiere alternativas.`

// SystemInstruction returns the standing instruction for a history: the
// content of the first system-role message when one exists, otherwise the
// provider default. Exactly one instruction is ever used per request.
func SystemInstruction(history []types.Message) string {
	for _, m := range history {
		if m.Role == types.RoleSystem {
			return m.Content
		}
	}
	return defaultSystemPrompt
}

// WithoutSystem returns a copy of history with system-role messages removed.
// Adapters send the system instruction through the provider's dedicated
// mechanism rather than as conversational history.
func WithoutSystem(history []types.Message) []types.Message {
	out := make([]types.Message, 0, len(history))
	for _, m := range history {
		if m.Role == types.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// DocumentPrompt assembles the one-shot prompt for GenerateFromDocuments:
// the user's text followed by each document's extracted content, truncated
// per document to DocumentCharBudget with a visible marker.
func DocumentPrompt(prompt string, docs []types.ExtractedDocument) string {
	if len(docs) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n--- Documentos adjuntos ---\n")
	for _, doc := range docs {
		sb.WriteString("\n[")
		sb.WriteString(doc.Name)
		sb.WriteString("]")
		if doc.PageCount > 0 {
			sb.WriteString(" (")
			sb.WriteString(pluralPages(doc.PageCount))
			sb.WriteString(")")
		}
		sb.WriteString(":\n")
		if len(doc.Text) > DocumentCharBudget {
			sb.WriteString(doc.Text[:DocumentCharBudget])
			sb.WriteString(truncationMarker)
		} else {
			sb.WriteString(doc.Text)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func pluralPages(n int) string {
	if n == 1 {
		return "1 página"
	}
	return strconv.Itoa(n) + " páginas"
}

// AppendToolResults serialises tool results into one synthetic
// assistant-authored message appended to a copy of history. Successful
// results contribute their formatted rendering when present, otherwise their
// structured payload as JSON; failures contribute their error message. The
// input slice is never mutated.
func AppendToolResults(history []types.Message, results []types.ToolResult) []types.Message {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, "[Resultado de "+r.Name+"]: "+renderResult(r))
	}

	out := make([]types.Message, len(history), len(history)+1)
	copy(out, history)
	return append(out, types.NewMessage(types.RoleAssistant, strings.Join(lines, "\n"), nil))
}

// renderResult picks the representation of one tool result fed back to the
// model: formatted text when the tool provided one, raw data as JSON
// otherwise, and the error description for failures.
func renderResult(r types.ToolResult) string {
	if !r.Success {
		data, err := json.Marshal(map[string]string{"error": r.Error})
		if err != nil {
			return `{"error":"` + r.Error + `"}`
		}
		return string(data)
	}
	if r.Formatted != "" {
		return r.Formatted
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return "null"
	}
	return string(data)
}
