package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
// Name, Description and the properties/required structure inside
// Parameters are the wire contract the tool-calling layer depends on.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"input_schema"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool. Expected failures
// (store errors, bad parameters, unknown tool names) come back as
// IsError results with the message in Content; an empty search result
// is informational, not an error. The Go error return of Tool.Execute
// is reserved for internal faults. Sources carries the citation
// records produced by this execution, when the tool tracks any.
type ToolResult struct {
	Content string   `json:"content"`
	Sources []Source `json:"sources,omitempty"`
	IsError bool     `json:"is_error,omitempty"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// SourceProvider is an optional capability for tools that cache the
// citation sources of their most recent execution. The registry checks
// for it explicitly; tools that do not produce citations simply do not
// implement it.
type SourceProvider interface {
	// LastSources returns the sources cached by the most recent execution,
	// or an empty slice when the last execution produced none.
	LastSources() []Source
	// ClearSources resets the cached source list to empty.
	ClearSources()
}

// ToolExecutor is the registry surface callers drive: schema listing for
// the tool-calling layer, dispatch by name, and the citation side channel
// aggregated across registered tools.
type ToolExecutor interface {
	Schemas() []ToolSchema
	Dispatch(ctx context.Context, name string, params json.RawMessage) *ToolResult
	LastSources() []Source
	ClearSources()
}
