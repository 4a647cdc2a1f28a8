package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lectern/internal/domain"
	"lectern/internal/infra/config"
)

func TestAnthropicProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("unexpected api key: %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != defaultAnthropicVersion {
			t.Errorf("unexpected version: %s", r.Header.Get("anthropic-version"))
		}

		resp := anthropicResponse{
			ID:    "msg_test",
			Model: "claude-sonnet-4-5-20250929",
			Content: []anthropicContent{
				{Type: "text", Text: "Test response"},
			},
			Usage: anthropicUsage{InputTokens: 5, OutputTokens: 3},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic-test",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "claude-sonnet-4-5-20250929",
	}, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "Test response" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("TotalTokens = %d, want 8", resp.Usage.TotalTokens)
	}
	if provider.Name() != "anthropic-test" {
		t.Errorf("Name = %q", provider.Name())
	}
}

func TestAnthropicProviderErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
	}{
		{
			name:       "429 rate limit",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"type":"rate_limit_error","message":"rate limit exceeded"}}`,
			wantErr:    domain.ErrRateLimit,
		},
		{
			name:       "401 unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			wantErr:    domain.ErrAuthInvalid,
		},
		{
			name:       "403 forbidden",
			statusCode: http.StatusForbidden,
			body:       `{"error":{"type":"permission_error","message":"access denied"}}`,
			wantErr:    domain.ErrAuthInvalid,
		},
		{
			name:       "413 context overflow",
			statusCode: http.StatusRequestEntityTooLarge,
			body:       `{"error":{"type":"invalid_request_error","message":"prompt is too long"}}`,
			wantErr:    domain.ErrContextOverflow,
		},
		{
			name:       "500 server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"type":"api_error","message":"internal server error"}}`,
			wantErr:    domain.ErrProviderDown,
		},
		{
			name:       "529 overloaded",
			statusCode: 529,
			body:       `{"error":{"type":"overloaded_error","message":"overloaded"}}`,
			wantErr:    domain.ErrProviderDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := NewAnthropicProvider(config.ProviderConfig{
				Name:    "test",
				BaseURL: server.URL,
				APIKey:  "test-key",
				Model:   "claude-sonnet-4-5-20250929",
			}, newTestLogger())

			_, err := provider.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "test"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			// Error message should include status code for debugging.
			if !strings.Contains(err.Error(), fmt.Sprintf("API error %d", tt.statusCode)) {
				t.Errorf("error should contain status code, got: %s", err.Error())
			}
		})
	}
}

func TestAnthropicChatReadBodyError(t *testing.T) {
	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: "http://localhost",
		APIKey:  "test-key",
		Model:   "claude-sonnet-4-5-20250929",
	}, newTestLogger())

	// Replace the client's transport to return a response with a broken body.
	provider.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       &errorReadCloser{},
				Header:     make(http.Header),
			}, nil
		}),
	}

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "test"}},
	})
	if err == nil {
		t.Fatal("expected error from body read failure")
	}
	if !strings.Contains(err.Error(), "read response") {
		t.Errorf("error = %q, want it to contain 'read response'", err.Error())
	}
}

func TestAnthropicRequestConversion(t *testing.T) {
	req := domain.ChatRequest{
		Model: "claude-sonnet-4-5-20250929",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are a course assistant."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
		MaxTokens: 1024,
	}

	antReq := toAnthropicRequest(req)

	if antReq.System != "You are a course assistant." {
		t.Errorf("System = %q", antReq.System)
	}
	if len(antReq.Messages) != 1 {
		t.Fatalf("Messages len = %d, want 1 (system extracted)", len(antReq.Messages))
	}
	if antReq.Messages[0].Role != "user" {
		t.Errorf("Message role = %q, want %q", antReq.Messages[0].Role, "user")
	}
	if antReq.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", antReq.MaxTokens)
	}
	if antReq.Temperature != nil {
		t.Errorf("Temperature = %v, want nil when unset", antReq.Temperature)
	}
}

func TestAnthropicDefaultMaxTokens(t *testing.T) {
	req := domain.ChatRequest{
		Model: "claude-sonnet-4-5-20250929",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "Hello"},
		},
	}

	antReq := toAnthropicRequest(req)

	if antReq.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096 default", antReq.MaxTokens)
	}
}

func TestAnthropicRequestTemperature(t *testing.T) {
	req := domain.ChatRequest{
		Model:       "claude-sonnet-4-5-20250929",
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		Temperature: 0.7,
	}

	antReq := toAnthropicRequest(req)

	if antReq.Temperature == nil || *antReq.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", antReq.Temperature)
	}
}

func TestAnthropicRequestWithToolCalls(t *testing.T) {
	req := domain.ChatRequest{
		Model: "claude-sonnet-4-5-20250929",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "What does lesson 3 cover?"},
			{
				Role: domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{
					{ID: "toolu_1", Name: "search_course_content", Arguments: json.RawMessage(`{"query":"lesson 3"}`)},
				},
			},
			{
				Role:    domain.RoleTool,
				Content: "[Course - Lesson 3]\nretrieved text",
				ToolCalls: []domain.ToolCall{
					{ID: "toolu_1", Name: "search_course_content"},
				},
			},
		},
		Tools: []domain.ToolSchema{
			{Name: "search_course_content", Description: "Search course materials", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
	}

	antReq := toAnthropicRequest(req)

	if len(antReq.Tools) != 1 {
		t.Fatalf("Tools len = %d, want 1", len(antReq.Tools))
	}
	if antReq.Tools[0].Name != "search_course_content" {
		t.Errorf("Tool name = %q", antReq.Tools[0].Name)
	}
	if len(antReq.Messages) != 3 {
		t.Fatalf("Messages len = %d, want 3", len(antReq.Messages))
	}

	// Assistant message with tool calls carries tool_use content.
	asst := antReq.Messages[1]
	if len(asst.Content) != 1 || asst.Content[0].Type != "tool_use" {
		t.Fatalf("assistant content = %+v, want one tool_use block", asst.Content)
	}
	if asst.Content[0].ID != "toolu_1" {
		t.Errorf("tool_use ID = %q", asst.Content[0].ID)
	}

	// Tool result rides as a user message with a tool_result block.
	toolMsg := antReq.Messages[2]
	if toolMsg.Role != "user" {
		t.Errorf("tool result role = %q, want user", toolMsg.Role)
	}
	if len(toolMsg.Content) != 1 || toolMsg.Content[0].Type != "tool_result" {
		t.Fatalf("tool result content = %+v", toolMsg.Content)
	}
	if toolMsg.Content[0].ToolUseID != "toolu_1" {
		t.Errorf("ToolUseID = %q, want toolu_1", toolMsg.Content[0].ToolUseID)
	}
}

func TestAnthropicRequestThinkingReplay(t *testing.T) {
	req := domain.ChatRequest{
		Model: "claude-sonnet-4-5-20250929",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "question"},
			{
				Role:     domain.RoleAssistant,
				Content:  "answer",
				Thinking: "reasoning about the question",
			},
		},
	}

	antReq := toAnthropicRequest(req)

	asst := antReq.Messages[1]
	if len(asst.Content) != 2 {
		t.Fatalf("assistant content = %+v, want thinking + text", asst.Content)
	}
	if asst.Content[0].Type != "thinking" || asst.Content[0].Thinking != "reasoning about the question" {
		t.Errorf("first block = %+v, want thinking block", asst.Content[0])
	}
	if asst.Content[1].Type != "text" || asst.Content[1].Text != "answer" {
		t.Errorf("second block = %+v, want text block", asst.Content[1])
	}
}

func TestAnthropicResponseConversion(t *testing.T) {
	resp := anthropicResponse{
		ID:    "msg_123",
		Model: "claude-sonnet-4-5-20250929",
		Content: []anthropicContent{
			{Type: "text", Text: "Hello there!"},
		},
		Usage: anthropicUsage{
			InputTokens:  10,
			OutputTokens: 5,
		},
	}

	result := fromAnthropicResponse(resp)

	if result.ID != "msg_123" {
		t.Errorf("ID = %q", result.ID)
	}
	if result.Message.Content != "Hello there!" {
		t.Errorf("Content = %q", result.Message.Content)
	}
	if result.Usage.PromptTokens != 10 {
		t.Errorf("PromptTokens = %d", result.Usage.PromptTokens)
	}
	if result.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", result.Usage.TotalTokens)
	}
}

func TestAnthropicResponseWithToolUse(t *testing.T) {
	resp := anthropicResponse{
		ID:    "msg_456",
		Model: "claude-sonnet-4-5-20250929",
		Content: []anthropicContent{
			{Type: "text", Text: "Let me search the course."},
			{Type: "tool_use", ID: "toolu_1", Name: "search_course_content", Input: json.RawMessage(`{"query":"MCP"}`)},
		},
		Usage: anthropicUsage{InputTokens: 20, OutputTokens: 15},
	}

	result := fromAnthropicResponse(resp)

	if result.Message.Content != "Let me search the course." {
		t.Errorf("Content = %q", result.Message.Content)
	}
	if len(result.Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls len = %d, want 1", len(result.Message.ToolCalls))
	}
	if result.Message.ToolCalls[0].Name != "search_course_content" {
		t.Errorf("ToolCall name = %q", result.Message.ToolCalls[0].Name)
	}
	if result.Message.ToolCalls[0].ID != "toolu_1" {
		t.Errorf("ToolCall ID = %q", result.Message.ToolCalls[0].ID)
	}
}

func TestAnthropicResponseWithThinking(t *testing.T) {
	resp := anthropicResponse{
		ID: "msg_789",
		Content: []anthropicContent{
			{Type: "thinking", Thinking: "the user wants lesson 4"},
			{Type: "text", Text: "Lesson 4 covers tool calling."},
		},
	}

	result := fromAnthropicResponse(resp)

	if result.Message.Thinking != "the user wants lesson 4" {
		t.Errorf("Thinking = %q", result.Message.Thinking)
	}
	if result.Message.Content != "Lesson 4 covers tool calling." {
		t.Errorf("Content = %q", result.Message.Content)
	}
}

func TestAnthropicDefaultModelApplied(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		json.NewEncoder(w).Encode(anthropicResponse{ID: "m"})
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: server.URL,
		APIKey:  "k",
		Model:   "claude-sonnet-4-5-20250929",
	}, newTestLogger())

	if _, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gotModel != "claude-sonnet-4-5-20250929" {
		t.Errorf("model = %q, want provider default", gotModel)
	}
}
