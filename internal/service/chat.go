package service

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	answerSystemPrompt  = "You are a helpful assistant that answers questions accurately and concisely based on the provided context."
	summarySystemPrompt = "You are a helpful assistant that provides clear, concise summaries."
)

// ChatService produces completions from an OpenAI-compatible chat endpoint,
// both buffered and streamed.
type ChatService struct {
	client       *openai.Client
	defaultModel string
	summaryLimit int
}

// ChatOptions holds configuration for the chat service.
type ChatOptions struct {
	BaseURL      string
	Model        string
	APIKey       string
	SummaryLimit int
}

// NewChatService creates a chat service backed by the configured endpoint.
func NewChatService(opts *ChatOptions) *ChatService {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	summaryLimit := opts.SummaryLimit
	if summaryLimit <= 0 {
		summaryLimit = 8000
	}
	return &ChatService{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: opts.Model,
		summaryLimit: summaryLimit,
	}
}

// buildPrompt frames the user question with retrieved context. When nothing
// was retrieved the model is told so outright, rather than being left to
// invent sources.
func buildPrompt(question, contextText string) string {
	if contextText == "" {
		return fmt.Sprintf("No relevant content was found in the user's library for this question. Say so if the question depends on their content.\n\nUser question: %s", question)
	}
	return fmt.Sprintf("%s\n\nUser question: %s\n\nPlease provide a helpful response based on the content above.", contextText, question)
}

func (s *ChatService) resolveModel(model string) string {
	if model != "" {
		return model
	}
	return s.defaultModel
}

// Answer produces a complete response to a question grounded in the
// retrieved context.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - question: the user's question.
//   - contextText: assembled retrieval context; may be empty.
//   - model: model override; empty uses the configured default.
// Returns:
//   - string: the model's answer.
//   - error: non-nil if the completion fails.
func (s *ChatService) Answer(ctx context.Context, question, contextText, model string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.resolveModel(model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(question, contextText)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnswerStream opens a streaming completion for a question. The caller owns
// the stream and must Close it.
func (s *ChatService) AnswerStream(ctx context.Context, question, contextText, model string) (*openai.ChatCompletionStream, error) {
	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: s.resolveModel(model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(question, contextText)},
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat stream failed to open: %w", err)
	}
	return stream, nil
}

// ListModels reports the model identifiers the chat endpoint serves, for
// the per-request model override.
func (s *ChatService) ListModels(ctx context.Context) ([]string, error) {
	list, err := s.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat models: %w", err)
	}
	ids := make([]string, len(list.Models))
	for i, m := range list.Models {
		ids[i] = m.ID
	}
	return ids, nil
}

// HealthCheck reports whether the chat endpoint is reachable. The models
// listing costs no tokens, so it doubles as a liveness check.
func (s *ChatService) HealthCheck(ctx context.Context) error {
	_, err := s.client.ListModels(ctx)
	return err
}

// Summarize produces a short summary of a transcript. Long transcripts are
// truncated to the configured limit before prompting.
func (s *ChatService) Summarize(ctx context.Context, transcript string) (string, error) {
	runes := []rune(transcript)
	if len(runes) > s.summaryLimit {
		transcript = string(runes[:s.summaryLimit]) + "... [truncated for processing]"
	}

	prompt := fmt.Sprintf("Please provide a concise summary of the following text, highlighting the key learnings and main points:\n\n%s", transcript)
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.defaultModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary generation returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
