package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voxdial/voxdial/pkg/logging"
)

var llmTracer = otel.Tracer("voxdial.internal.session.llm")

const llmCallTimeout = 30 * time.Second

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Responder generates the agent's next utterance from the running turn
// history and the per-turn system prompt.
type Responder interface {
	Reply(ctx context.Context, systemPrompt string, turns []ConversationTurn) (string, error)
}

// OpenAIResponder backs Responder with chat completions.
type OpenAIResponder struct {
	client      chatClient
	model       string
	maxTokens   int
	temperature float32
	logger      *logging.Logger
}

// NewOpenAIResponder creates the LLM reply generator.
func NewOpenAIResponder(client chatClient, model string, maxTokens int, temperature float32, logger *logging.Logger) *OpenAIResponder {
	if client == nil {
		panic("session: chat client cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxTokens <= 0 {
		maxTokens = 200
	}
	if temperature <= 0 {
		temperature = 0.7
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAIResponder{client: client, model: model, maxTokens: maxTokens, temperature: temperature, logger: logger}
}

var _ Responder = (*OpenAIResponder)(nil)

// Reply asks the model for the next agent line. Failures propagate as typed
// errors; the webhook layer decides what the caller hears instead.
func (r *OpenAIResponder) Reply(ctx context.Context, systemPrompt string, turns []ConversationTurn) (string, error) {
	ctx, span := llmTracer.Start(ctx, "session.llm.reply")
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Speaker == SpeakerAgent {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("session: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("session: chat completion returned no choices")
		span.RecordError(err)
		return "", err
	}
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Int("voxdial.llm.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("voxdial.llm.completion_tokens", resp.Usage.CompletionTokens),
		)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
