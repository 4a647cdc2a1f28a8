// Package mcpserver exposes the tool registry over the Model Context
// Protocol, so MCP clients such as editors and desktop assistants can
// search course content directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"lectern/internal/domain"
)

// defaultServerName and serverVersion identify this process to MCP clients.
const (
	defaultServerName = "lectern"
	serverVersion     = "1.0.0"
)

// Toolset is the slice of the tool registry the MCP server needs: schema
// listing at startup and dispatch by name per call.
type Toolset interface {
	Schemas() []domain.ToolSchema
	Dispatch(ctx context.Context, name string, params json.RawMessage) *domain.ToolResult
}

// Server serves registered tools to MCP clients over stdio.
type Server struct {
	mcp    *server.MCPServer
	tools  Toolset
	logger *slog.Logger
}

// New builds an MCP server with every tool in the toolset registered.
// An empty name falls back to the default server name.
func New(name string, tools Toolset, logger *slog.Logger) *Server {
	if name == "" {
		name = defaultServerName
	}
	s := &Server{
		mcp:    server.NewMCPServer(name, serverVersion, server.WithToolCapabilities(false)),
		tools:  tools,
		logger: logger,
	}

	schemas := tools.Schemas()
	for _, schema := range schemas {
		s.mcp.AddTool(mcpToolFromSchema(schema), s.handler(schema.Name))
		s.logger.Debug("mcp tool registered", "tool", schema.Name)
	}
	s.logger.Info("mcp server ready", "tools", len(schemas))

	return s
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
// While serving, stdout carries the protocol; logs must go elsewhere.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening", "transport", "stdio")
	return server.ServeStdio(s.mcp)
}

// HandleMessage processes a single raw JSON-RPC message and returns the
// response, for callers embedding the server in a transport other than
// stdio.
func (s *Server) HandleMessage(ctx context.Context, msg json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, msg)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		s.logger.Debug("mcp tool call", "tool", name)

		result := s.tools.Dispatch(ctx, name, raw)
		if result.IsError {
			return mcp.NewToolResultError(result.Content), nil
		}
		return mcp.NewToolResultText(result.Content), nil
	}
}

// mcpToolFromSchema converts a tool schema to the MCP wire representation,
// passing the raw JSON schema through untouched.
func mcpToolFromSchema(schema domain.ToolSchema) mcp.Tool {
	params := schema.Parameters
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage(`{"type": "object"}`)
	}
	return mcp.NewToolWithRawSchema(schema.Name, schema.Description, params)
}
