//go:build bedrock

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"lectern/internal/domain"
)

// --- Mock Bedrock client ---

type mockBedrockClient struct {
	converseFunc func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

func (m *mockBedrockClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if m.converseFunc != nil {
		return m.converseFunc(ctx, params, optFns...)
	}
	return nil, fmt.Errorf("not implemented")
}

// --- Tests ---

func TestBedrockChat(t *testing.T) {
	var receivedInput *bedrockruntime.ConverseInput

	mock := &mockBedrockClient{
		converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			receivedInput = params
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role: types.ConversationRoleAssistant,
						Content: []types.ContentBlock{
							&types.ContentBlockMemberText{Value: "Hello from Bedrock!"},
						},
					},
				},
				Usage: &types.TokenUsage{
					InputTokens:  aws.Int32(10),
					OutputTokens: aws.Int32(5),
				},
			}, nil
		},
	}

	provider := newBedrockProviderWithClient("bedrock-test", "anthropic.claude-3-5-sonnet", mock, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are a course assistant."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "Hello from Bedrock!" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.PromptTokens != 10 {
		t.Errorf("PromptTokens = %d", resp.Usage.PromptTokens)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}

	// Verify request conversion
	if receivedInput == nil {
		t.Fatal("expected input to be captured")
	}
	if aws.ToString(receivedInput.ModelId) != "anthropic.claude-3-5-sonnet" {
		t.Errorf("ModelId = %q", aws.ToString(receivedInput.ModelId))
	}
	if len(receivedInput.System) != 1 {
		t.Fatalf("System len = %d, want 1", len(receivedInput.System))
	}
	if len(receivedInput.Messages) != 1 {
		t.Fatalf("Messages len = %d, want 1 (system extracted)", len(receivedInput.Messages))
	}

	if provider.Name() != "bedrock-test" {
		t.Errorf("Name = %q", provider.Name())
	}
}

func TestBedrockChatWithToolUse(t *testing.T) {
	mock := &mockBedrockClient{
		converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			// Verify tools were sent
			if params.ToolConfig == nil || len(params.ToolConfig.Tools) != 1 {
				t.Errorf("expected 1 tool, got %v", params.ToolConfig)
			}

			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role: types.ConversationRoleAssistant,
						Content: []types.ContentBlock{
							&types.ContentBlockMemberText{Value: "Let me search the course."},
							&types.ContentBlockMemberToolUse{
								Value: types.ToolUseBlock{
									ToolUseId: aws.String("toolu_123"),
									Name:      aws.String("search_course_content"),
									Input:     document.NewLazyDocument(map[string]interface{}{"query": "MCP"}),
								},
							},
						},
					},
				},
				Usage: &types.TokenUsage{
					InputTokens:  aws.Int32(20),
					OutputTokens: aws.Int32(15),
				},
			}, nil
		},
	}

	provider := newBedrockProviderWithClient("test", "model", mock, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "What is MCP?"},
		},
		Tools: []domain.ToolSchema{
			{Name: "search_course_content", Description: "Search course materials", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "Let me search the course." {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls len = %d", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].ID != "toolu_123" {
		t.Errorf("ToolCall ID = %q", resp.Message.ToolCalls[0].ID)
	}
	if resp.Message.ToolCalls[0].Name != "search_course_content" {
		t.Errorf("ToolCall Name = %q", resp.Message.ToolCalls[0].Name)
	}
}

func TestBedrockChatWithToolResult(t *testing.T) {
	var receivedInput *bedrockruntime.ConverseInput

	mock := &mockBedrockClient{
		converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			receivedInput = params
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role: types.ConversationRoleAssistant,
						Content: []types.ContentBlock{
							&types.ContentBlockMemberText{Value: "The lesson covers tool calling"},
						},
					},
				},
				Usage: &types.TokenUsage{
					InputTokens:  aws.Int32(30),
					OutputTokens: aws.Int32(10),
				},
			}, nil
		},
	}

	provider := newBedrockProviderWithClient("test", "model", mock, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "What does lesson 4 cover?"},
			{
				Role: domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{
					{ID: "toolu_abc", Name: "search_course_content", Arguments: json.RawMessage(`{"query":"lesson 4"}`)},
				},
			},
			{
				Role:    domain.RoleTool,
				Content: "retrieved content",
				ToolCalls: []domain.ToolCall{
					{ID: "toolu_abc"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	// Verify tool result was properly converted
	if len(receivedInput.Messages) != 3 {
		t.Fatalf("Messages len = %d, want 3", len(receivedInput.Messages))
	}
	toolMsg := receivedInput.Messages[2]
	if toolMsg.Role != types.ConversationRoleUser {
		t.Errorf("Tool result role = %q, want user", toolMsg.Role)
	}
	if len(toolMsg.Content) != 1 {
		t.Fatalf("Tool result content len = %d", len(toolMsg.Content))
	}
	toolResult, ok := toolMsg.Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatal("expected ContentBlockMemberToolResult")
	}
	if aws.ToString(toolResult.Value.ToolUseId) != "toolu_abc" {
		t.Errorf("ToolUseId = %q", aws.ToString(toolResult.Value.ToolUseId))
	}
}

func TestBedrockChatDefaultMaxTokens(t *testing.T) {
	var receivedMaxTokens int32

	mock := &mockBedrockClient{
		converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			if params.InferenceConfig != nil && params.InferenceConfig.MaxTokens != nil {
				receivedMaxTokens = *params.InferenceConfig.MaxTokens
			}
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role:    types.ConversationRoleAssistant,
						Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "ok"}},
					},
				},
				Usage: &types.TokenUsage{InputTokens: aws.Int32(1), OutputTokens: aws.Int32(1)},
			}, nil
		},
	}

	provider := newBedrockProviderWithClient("test", "model", mock, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if receivedMaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", receivedMaxTokens)
	}
}

// --- Error mapping tests ---

type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return e.message }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestBedrockErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name:    "throttling",
			err:     &mockAPIError{code: "ThrottlingException", message: "rate limited"},
			wantErr: domain.ErrRateLimit,
		},
		{
			name:    "too many requests",
			err:     &mockAPIError{code: "TooManyRequestsException", message: "too many"},
			wantErr: domain.ErrRateLimit,
		},
		{
			name:    "access denied",
			err:     &mockAPIError{code: "AccessDeniedException", message: "no access"},
			wantErr: domain.ErrAuthInvalid,
		},
		{
			name:    "validation context too long",
			err:     &mockAPIError{code: "ValidationException", message: "input is too long"},
			wantErr: domain.ErrContextOverflow,
		},
		{
			name:    "internal server error",
			err:     &mockAPIError{code: "InternalServerException", message: "server error"},
			wantErr: domain.ErrProviderDown,
		},
		{
			name:    "service unavailable",
			err:     &mockAPIError{code: "ServiceUnavailableException", message: "unavailable"},
			wantErr: domain.ErrProviderDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockBedrockClient{
				converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
					return nil, tt.err
				},
			}

			provider := newBedrockProviderWithClient("test", "model", mock, newTestLogger())

			_, err := provider.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "test"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBedrockRequestConversion(t *testing.T) {
	req := domain.ChatRequest{
		Model: "anthropic.claude-3-haiku",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "Answer from course content"},
			{Role: domain.RoleUser, Content: "Hello"},
		},
		MaxTokens:   2048,
		Temperature: 0.7,
	}

	input := toBedrockConverseInput(req)

	if aws.ToString(input.ModelId) != "anthropic.claude-3-haiku" {
		t.Errorf("ModelId = %q", aws.ToString(input.ModelId))
	}
	if len(input.System) != 1 {
		t.Fatalf("System len = %d", len(input.System))
	}
	if len(input.Messages) != 1 {
		t.Fatalf("Messages len = %d, want 1 (system extracted)", len(input.Messages))
	}
	if aws.ToInt32(input.InferenceConfig.MaxTokens) != 2048 {
		t.Errorf("MaxTokens = %d", aws.ToInt32(input.InferenceConfig.MaxTokens))
	}
	if aws.ToFloat32(input.InferenceConfig.Temperature) != 0.7 {
		t.Errorf("Temperature = %f", aws.ToFloat32(input.InferenceConfig.Temperature))
	}
}
