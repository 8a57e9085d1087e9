package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxdial/voxdial/pkg/logging"
)

const analyzerTimeout = 8 * time.Second

// emotionLabels is the closed label set the classifier may answer with.
var emotionLabels = []string{
	"happiness", "sadness", "anger", "fear", "surprise", "disgust",
	"love", "desire", "excitement", "shame", "guilt", "confusion",
	"sarcasm", "impatience", "annoyance", "neutral",
}

var intentLabels = []string{
	"interested", "question", "objection", "ready", "commit",
	"not-interested", "callback", "unknown",
}

// OpenAIAnalyzer classifies a caller utterance into an emotion label, an
// intent label, and a confidence. It never blocks the conversation: callers
// treat a failed analysis as a plain transcript.
type OpenAIAnalyzer struct {
	client chatClient
	model  string
	logger *logging.Logger
}

// NewOpenAIAnalyzer creates the utterance classifier.
func NewOpenAIAnalyzer(client chatClient, model string, logger *logging.Logger) *OpenAIAnalyzer {
	if client == nil {
		panic("session: chat client cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAIAnalyzer{client: client, model: model, logger: logger}
}

var _ SpeechAnalyzer = (*OpenAIAnalyzer)(nil)

type analyzerVerdict struct {
	Emotion    string  `json:"emotion"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Analyze classifies the transcript. On failure it returns a neutral
// analysis carrying the original transcript alongside the error.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, audioURL, transcript string) (Analysis, error) {
	neutral := Analysis{Transcript: transcript, Emotion: "neutral", Intent: "unknown", Confidence: 0.5}
	if strings.TrimSpace(transcript) == "" {
		return neutral, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, analyzerTimeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analyzerSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		MaxTokens:   60,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return neutral, fmt.Errorf("session: utterance analysis failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return neutral, fmt.Errorf("session: utterance analysis returned no choices")
	}

	var verdict analyzerVerdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return neutral, fmt.Errorf("session: utterance analysis unparseable: %w", err)
	}

	out := Analysis{
		Transcript: transcript,
		Emotion:    normalizeLabel(verdict.Emotion, emotionLabels, "neutral"),
		Intent:     normalizeLabel(verdict.Intent, intentLabels, "unknown"),
		Confidence: verdict.Confidence,
	}
	if out.Confidence <= 0 || out.Confidence > 1 {
		out.Confidence = 0.5
	}
	return out, nil
}

func analyzerSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify a single utterance from a phone call. ")
	b.WriteString("Respond with JSON only: {\"emotion\": ..., \"intent\": ..., \"confidence\": 0.0-1.0}.\n")
	b.WriteString("emotion must be one of: ")
	b.WriteString(strings.Join(emotionLabels, ", "))
	b.WriteString(".\nintent must be one of: ")
	b.WriteString(strings.Join(intentLabels, ", "))
	b.WriteString(".")
	return b.String()
}

func normalizeLabel(got string, allowed []string, fallback string) string {
	got = strings.ToLower(strings.TrimSpace(got))
	for _, label := range allowed {
		if got == label {
			return label
		}
	}
	return fallback
}
