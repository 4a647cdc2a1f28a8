package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"lectern/internal/domain"
)

// Registry holds named tools and aggregates their citation state. It is the
// dispatch surface handed to the assistant loop and the MCP server.
type Registry struct {
	mu      sync.RWMutex
	entries []*registryEntry
	byName  map[string]*registryEntry
	logger  *slog.Logger
}

// registryEntry pairs the dispatchable tool (possibly wrapped with schema
// validation) with the registered tool's citation capability, when it has one.
type registryEntry struct {
	name    string
	tool    domain.Tool
	sources domain.SourceProvider
}

var _ domain.ToolExecutor = (*Registry)(nil)

// NewRegistry creates an empty tool registry.
// If logger is non-nil, tools are wrapped with schema validation on Register;
// compilation errors are logged and the tool is registered unwrapped.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]*registryEntry),
		logger: logger,
	}
}

// Register adds a tool under its schema name. A tool without a name is a
// configuration error. Re-registering a name replaces the previous tool in
// place, keeping its position; the overwrite is logged so accidental
// collisions stay visible.
func (r *Registry) Register(t domain.Tool) error {
	name := t.Schema().Name
	if name == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput,
			fmt.Sprintf("tool %T has no name", t))
	}

	src, _ := t.(domain.SourceProvider)

	if r.logger != nil {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool",
				"tool", name, "error", err)
		} else {
			t = wrapped
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.byName[name]; exists {
		if r.logger != nil {
			r.logger.Warn("tool overwritten", "tool", name)
		}
		e.tool = t
		e.sources = src
		return nil
	}

	e := &registryEntry{name: name, tool: t, sources: src}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Schemas returns all tool schemas for LLM function-calling, in registration
// order.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.entries))
	for _, e := range r.entries {
		schemas = append(schemas, e.tool.Schema())
	}
	return schemas
}

// Dispatch executes the named tool. An unregistered name or an internal tool
// fault comes back as an error result, not a Go error, so callers relay the
// message text either way.
func (r *Registry) Dispatch(ctx context.Context, name string, params json.RawMessage) *domain.ToolResult {
	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("Tool '%s' not found", name),
		}
	}

	result, err := e.tool.Execute(ctx, params)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("tool execution failed", "tool", name, "error", err)
		}
		return &domain.ToolResult{IsError: true, Content: err.Error()}
	}
	return result
}

// LastSources returns the citation list cached by the most recent search:
// tools are scanned in registration order and the first non-empty list wins.
func (r *Registry) LastSources() []domain.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.sources == nil {
			continue
		}
		if s := e.sources.LastSources(); len(s) > 0 {
			return s
		}
	}
	return nil
}

// ClearSources resets the citation cache of every tool that keeps one.
func (r *Registry) ClearSources() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.sources != nil {
			e.sources.ClearSources()
		}
	}
}
