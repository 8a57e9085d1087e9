package session

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func verdictResponse(body string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: body}},
		},
	}
}

func TestAnalyzeClassifiesUtterance(t *testing.T) {
	client := &stubChatClient{
		response: verdictResponse(`{"emotion":"impatience","intent":"objection","confidence":0.82}`),
	}
	a := NewOpenAIAnalyzer(client, "gpt-4o-mini", nil)

	got, err := a.Analyze(context.Background(), "", "I really do not have time for this")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Emotion != "impatience" {
		t.Fatalf("emotion = %q, want impatience", got.Emotion)
	}
	if got.Intent != "objection" {
		t.Fatalf("intent = %q, want objection", got.Intent)
	}
	if got.Confidence != 0.82 {
		t.Fatalf("confidence = %v, want 0.82", got.Confidence)
	}
	if got.Transcript != "I really do not have time for this" {
		t.Fatalf("transcript altered: %q", got.Transcript)
	}

	if len(client.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(client.requests))
	}
	req := client.requests[0]
	if req.Temperature != 0 {
		t.Fatalf("temperature = %v, want 0", req.Temperature)
	}
	if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Fatal("expected a JSON response format")
	}
}

func TestAnalyzeUnknownLabelsFallBack(t *testing.T) {
	client := &stubChatClient{
		response: verdictResponse(`{"emotion":"elated","intent":"maybe","confidence":1.4}`),
	}
	a := NewOpenAIAnalyzer(client, "", nil)

	got, err := a.Analyze(context.Background(), "", "sounds great honestly")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Emotion != "neutral" {
		t.Fatalf("emotion = %q, want neutral", got.Emotion)
	}
	if got.Intent != "unknown" {
		t.Fatalf("intent = %q, want unknown", got.Intent)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", got.Confidence)
	}
}

func TestAnalyzeFailureReturnsNeutral(t *testing.T) {
	client := &stubChatClient{err: errors.New("rate limited")}
	a := NewOpenAIAnalyzer(client, "", nil)

	got, err := a.Analyze(context.Background(), "", "hello?")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got.Emotion != "neutral" || got.Intent != "unknown" || got.Confidence != 0.5 {
		t.Fatalf("fallback analysis = %+v", got)
	}
	if got.Transcript != "hello?" {
		t.Fatalf("transcript = %q", got.Transcript)
	}
}

func TestAnalyzeUnparseableVerdict(t *testing.T) {
	client := &stubChatClient{response: verdictResponse("certainly! here is the json")}
	a := NewOpenAIAnalyzer(client, "", nil)

	got, err := a.Analyze(context.Background(), "", "uh huh")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got.Emotion != "neutral" {
		t.Fatalf("emotion = %q, want neutral", got.Emotion)
	}
}

func TestAnalyzeEmptyTranscriptSkipsModel(t *testing.T) {
	client := &stubChatClient{}
	a := NewOpenAIAnalyzer(client, "", nil)

	got, err := a.Analyze(context.Background(), "", "   ")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(client.requests) != 0 {
		t.Fatalf("model called %d times, want 0", len(client.requests))
	}
	if got.Emotion != "neutral" {
		t.Fatalf("emotion = %q, want neutral", got.Emotion)
	}
}
