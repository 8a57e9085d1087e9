package twiml

import (
	"strings"
	"testing"
)

func TestRenderSayGather(t *testing.T) {
	resp := Response{Verbs: []Verb{
		Gather{
			Input:         "speech",
			Action:        "/webhooks/voice",
			Method:        "POST",
			SpeechTimeout: "auto",
			Verbs: []Verb{
				Say{Voice: "Polly.Joanna", Text: "Hi! This is Alex from Acme."},
			},
		},
	}}
	out, err := Render(resp, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	s := string(out)
	for _, want := range []string{"<Response>", "<Gather", `input="speech"`, `action="/webhooks/voice"`, "<Say", "Hi! This is Alex from Acme.", "</Response>"} {
		if !strings.Contains(s, want) {
			t.Fatalf("output missing %q:\n%s", want, s)
		}
	}
}

func TestRenderPlayAndHangup(t *testing.T) {
	resp := Response{Verbs: []Verb{
		Play{URL: "https://cdn.example.com/audio/abc.mp3"},
		Hangup{},
	}}
	out, err := Render(resp, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "<Play>https://cdn.example.com/audio/abc.mp3</Play>") {
		t.Fatalf("missing play:\n%s", s)
	}
	if !strings.Contains(s, "<Hangup></Hangup>") {
		t.Fatalf("missing hangup:\n%s", s)
	}
}

func TestRenderEscapesText(t *testing.T) {
	out, err := Render(Response{Verbs: []Verb{Say{Text: `Tom & Jerry <say> "hi"`}}}, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	s := string(out)
	if strings.Contains(s, "<say>") {
		t.Fatalf("text not escaped:\n%s", s)
	}
	if !strings.Contains(s, "Tom &amp; Jerry") {
		t.Fatalf("ampersand not escaped:\n%s", s)
	}
}

func TestRenderEnforcesCeiling(t *testing.T) {
	big := strings.Repeat("a", 2048)
	_, err := Render(Response{Verbs: []Verb{Play{URL: big}}}, 1024)
	if err == nil {
		t.Fatal("expected ceiling violation")
	}

	small := Response{Verbs: []Verb{Say{Text: "ok"}}}
	if _, err := Render(small, 1024); err != nil {
		t.Fatalf("small document rejected: %v", err)
	}
}
