// Package types defines the shared data model used across all Orquesta packages.
//
// These types form the lingua franca between the conversation store, the model
// gateway adapters, the tool gateway client, and the orchestrator. Each package
// defines its own domain types, but cross-cutting data structures live here to
// avoid circular imports.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// MessageMetadata carries optional bookkeeping attached to a message.
type MessageMetadata struct {
	// ToolsUsed lists the names of the tools executed to produce this message.
	ToolsUsed []string `json:"toolsUsed,omitempty"`

	// FilesAttached lists the names of documents attached to this message.
	FilesAttached []string `json:"filesAttached,omitempty"`
}

// Message is a single turn in a conversation. Messages are immutable once
// created and owned exclusively by the conversation that contains them.
type Message struct {
	// ID is unique within the conversation's lifetime.
	ID string `json:"id"`

	// Role is one of "user", "assistant", or "system".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// Timestamp is when the message was created (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Metadata holds optional tool/attachment bookkeeping. May be nil.
	Metadata *MessageMetadata `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh identifier and a UTC timestamp.
func NewMessage(role, content string, metadata *MessageMetadata) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// AnonymousUser is the owning-user marker for conversations created without
// an authenticated caller.
const AnonymousUser = "anonymous"

// Conversation is an ordered, append-only sequence of messages plus identity
// and bookkeeping. Mutation happens only through the conversation store.
type Conversation struct {
	// ID is opaque and generated at creation.
	ID string `json:"id"`

	// UserID references the owning user; AnonymousUser when absent.
	UserID string `json:"userId"`

	// Messages is the ordered history. Insertion order is the conversation order.
	Messages []Message `json:"messages"`

	// CreatedAt is when the conversation was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is bumped on every append.
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToolProperty describes a single named property of a tool's input schema.
// Array and object properties nest recursively via Items and Properties.
type ToolProperty struct {
	// Type is the JSON-Schema primitive: "string", "number", "integer",
	// "boolean", "array", or "object".
	Type string `json:"type"`

	// Description explains the property to the model. May be empty.
	Description string `json:"description,omitempty"`

	// Enum restricts string properties to a fixed set of values.
	Enum []string `json:"enum,omitempty"`

	// Items describes the element schema when Type is "array".
	Items *ToolProperty `json:"items,omitempty"`

	// Properties describes the nested members when Type is "object".
	Properties map[string]*ToolProperty `json:"properties,omitempty"`

	// Required lists the mandatory nested members when Type is "object".
	Required []string `json:"required,omitempty"`
}

// ToolSchema is the JSON-Schema-like input declaration of a tool. The tool
// registry always declares the top level as an object.
type ToolSchema struct {
	Type       string                   `json:"type"`
	Properties map[string]*ToolProperty `json:"properties,omitempty"`
	Required   []string                 `json:"required,omitempty"`
}

// ToolDescriptor is the static definition of one callable tool, as served by
// the tool registry. Immutable; cached by the orchestrator.
type ToolDescriptor struct {
	// Name is unique within the catalog.
	Name string `json:"name"`

	// Description is consumed by the model for tool selection.
	Description string `json:"description"`

	// Parameters declares the tool's input schema.
	Parameters ToolSchema `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model. It exists only within
// one orchestration iteration.
type ToolCall struct {
	// Name is the tool to invoke.
	Name string `json:"name"`

	// Arguments maps argument names to values as emitted by the model.
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of executing one ToolCall.
type ToolResult struct {
	// Name is the tool that was executed.
	Name string `json:"name"`

	// Success reports whether the execution completed without error.
	Success bool `json:"success"`

	// Data is the structured result payload. Nil on failure.
	Data any `json:"data,omitempty"`

	// Formatted is an optional pre-rendered human-readable version of Data.
	Formatted string `json:"formatted,omitempty"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}

// ExtractedDocument is the plain-text output of the external document
// extraction collaborator. Extraction itself is out of scope here; documents
// arrive already extracted.
type ExtractedDocument struct {
	// Name is the original file name (e.g., "factura.pdf").
	Name string `json:"name"`

	// Text is the extracted plain text.
	Text string `json:"text"`

	// PageCount is the number of pages in the source document.
	PageCount int `json:"pageCount"`
}
