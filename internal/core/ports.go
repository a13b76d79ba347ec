package core

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a callable tool offered to a model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResponse is the outcome of a tool-enabled completion: free-form
// content plus zero or more tool invocations.
type ToolResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ModelTransport is the abstract capability the core requires from any
// model backend. The vendor wire protocol behind it is not this package's
// concern.
type ModelTransport interface {
	// Complete returns free-form text for a system/user prompt pair.
	Complete(ctx context.Context, system, user string) (string, error)

	// CompleteStructured returns JSON text conforming to the given schema.
	CompleteStructured(ctx context.Context, system, user string, schema json.RawMessage, schemaName string) (string, error)

	// CompleteVisionStructured returns JSON text for a prompt over images.
	CompleteVisionStructured(ctx context.Context, system, user string, images [][]byte, schema json.RawMessage, schemaName string) (string, error)

	// CompleteWithTools runs a completion that may request tool calls.
	CompleteWithTools(ctx context.Context, system, user string, tools []ToolDefinition) (*ToolResponse, error)
}

// TextExtractor pulls plain text out of a PDF document.
type TextExtractor interface {
	ExtractText(pdf []byte) (string, error)
}

// RenderOptions configures report PDF rendering.
type RenderOptions struct {
	PageSize string
	Margin   string
}

// ReportRenderer turns report HTML into a PDF. A nil result with nil error
// means rendering was unavailable; callers tolerate that and keep the HTML.
type ReportRenderer interface {
	Render(ctx context.Context, html string, images [][]byte, opts RenderOptions) ([]byte, error)
}

// CodeRequirement is one building-code lookup hit.
type CodeRequirement struct {
	Jurisdiction  string `json:"jurisdiction"`
	Topic         string `json:"topic"`
	CodeReference string `json:"code_reference"`
	Requirement   string `json:"requirement"`
	Source        string `json:"source"`
}

// CodeLookup resolves building-code requirements for a jurisdiction.
type CodeLookup interface {
	Lookup(ctx context.Context, jurisdiction string, topics []string) ([]CodeRequirement, error)
}

// SupplementExample is a previously approved supplement used as precedent.
type SupplementExample struct {
	ID            string  `json:"id"`
	Carrier       string  `json:"carrier"`
	Description   string  `json:"description"`
	Justification string  `json:"justification"`
	ApprovedValue float64 `json:"approved_value"`
}

// ExampleFilter narrows example retrieval.
type ExampleFilter struct {
	Carrier string
	Limit   int
}

// ExampleRetriever finds approved-supplement precedents matching a query.
type ExampleRetriever interface {
	Retrieve(ctx context.Context, query string, filter ExampleFilter) ([]SupplementExample, error)
}
