package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"lectern/internal/domain"
	"lectern/internal/infra/tracer"
)

// AssistantDeps holds injected dependencies for the assistant.
type AssistantDeps struct {
	LLM     domain.LLMProvider
	Tools   domain.ToolExecutor
	Counter domain.TokenCounter // optional, nil = no transcript budget
	Logger  *slog.Logger

	Model            string
	SystemPrompt     string
	MaxTokens        int
	Temperature      float64
	MaxToolRounds    int
	MaxContextTokens int
}

// Assistant answers one question at a time: it offers the registered tool
// schemas to the LLM, executes requested tool calls, feeds results back, and
// returns the final text with the citations the tools produced. No session
// state is kept between calls.
type Assistant struct {
	deps AssistantDeps
}

// Answer is the assistant's reply with the citations behind it.
type Answer struct {
	Text    string
	Sources []domain.Source
	Usage   domain.Usage
}

// NewAssistant creates an assistant with the given dependencies.
func NewAssistant(deps AssistantDeps) *Assistant {
	if deps.MaxToolRounds <= 0 {
		deps.MaxToolRounds = 3
	}
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = 2048
	}
	return &Assistant{deps: deps}
}

// Answer runs one question through the chat/tool loop. The LLM sees the tool
// schemas for at most MaxToolRounds rounds; the last call offers no tools, so
// the model must produce text. Citation sources come from the tool results of
// this call, falling back to the registry's cached list, and the cache is
// cleared before returning.
func (a *Assistant) Answer(ctx context.Context, question string) (*Answer, error) {
	ctx, span := tracer.StartSpan(ctx, "assistant.answer")
	defer span.End()

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: a.deps.SystemPrompt, Timestamp: time.Now()},
		{Role: domain.RoleUser, Content: question, Timestamp: time.Now()},
	}

	schemas := a.deps.Tools.Schemas()

	var sources []domain.Source
	var totalUsage domain.Usage

	for round := 0; round <= a.deps.MaxToolRounds; round++ {
		if err := a.checkBudget(messages); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}

		span.AddEvent("assistant.round", trace.WithAttributes(tracer.IntAttr("round", round)))

		req := domain.ChatRequest{
			Model:       a.deps.Model,
			Messages:    messages,
			MaxTokens:   a.deps.MaxTokens,
			Temperature: a.deps.Temperature,
		}
		if round < a.deps.MaxToolRounds {
			req.Tools = schemas
		}

		llmCtx, llmSpan := tracer.StartSpan(ctx, "assistant.llm_call")
		resp, err := a.deps.LLM.Chat(llmCtx, req)
		llmSpan.End()
		if err != nil {
			tracer.RecordError(span, err)
			return nil, domain.WrapOp("Assistant.Answer", err)
		}

		totalUsage.PromptTokens += resp.Usage.PromptTokens
		totalUsage.CompletionTokens += resp.Usage.CompletionTokens
		totalUsage.TotalTokens += resp.Usage.TotalTokens

		messages = append(messages, resp.Message)

		a.deps.Logger.Debug("llm response",
			"round", round,
			"tool_calls", len(resp.Message.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		if len(resp.Message.ToolCalls) == 0 {
			if len(sources) == 0 {
				sources = a.deps.Tools.LastSources()
			}
			a.deps.Tools.ClearSources()
			tracer.SetOK(span)
			return &Answer{Text: resp.Message.Content, Sources: sources, Usage: totalUsage}, nil
		}

		// Execute tool calls in parallel; results keep the call order.
		results := make([]*domain.ToolResult, len(resp.Message.ToolCalls))
		var wg sync.WaitGroup
		for i, call := range resp.Message.ToolCalls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				results[idx] = a.executeToolCall(ctx, c)
			}(i, call)
		}
		wg.Wait()

		for i, result := range results {
			call := resp.Message.ToolCalls[i]
			messages = append(messages, domain.Message{
				Role:      domain.RoleTool,
				Content:   result.Content,
				ToolCalls: []domain.ToolCall{{ID: call.ID, Name: call.Name}},
				Timestamp: time.Now(),
			})
			sources = append(sources, result.Sources...)
		}
	}

	tracer.RecordError(span, domain.ErrMaxToolRounds)
	return nil, domain.NewDomainError("Assistant.Answer", domain.ErrMaxToolRounds,
		fmt.Sprintf("no final answer after %d rounds", a.deps.MaxToolRounds))
}

// executeToolCall dispatches a single tool call under its own span.
func (a *Assistant) executeToolCall(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	ctx, span := tracer.StartSpan(ctx, "assistant.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	result := a.deps.Tools.Dispatch(ctx, call.Name, call.Arguments)
	if result.IsError {
		a.deps.Logger.Warn("tool call returned error result",
			"tool", call.Name, "message", result.Content)
		tracer.RecordError(span, fmt.Errorf("%s", result.Content))
		return result
	}

	tracer.SetOK(span)
	return result
}

// checkBudget refuses to replay a transcript over the context token budget.
func (a *Assistant) checkBudget(messages []domain.Message) error {
	if a.deps.Counter == nil || a.deps.MaxContextTokens <= 0 {
		return nil
	}
	tokens := a.deps.Counter.CountMessages(messages)
	if tokens <= a.deps.MaxContextTokens {
		return nil
	}
	a.deps.Logger.Error("transcript over context budget",
		"tokens", tokens, "budget", a.deps.MaxContextTokens)
	return domain.NewDomainError("Assistant.Answer", domain.ErrContextOverflow,
		fmt.Sprintf("transcript is %d tokens, budget %d", tokens, a.deps.MaxContextTokens))
}
