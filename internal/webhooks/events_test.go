package webhooks

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func formRequest(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://voice.example.com/webhooks/voice", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestParseVoiceEvent(t *testing.T) {
	req := formRequest(t, url.Values{
		"CallSid":      {"CA123"},
		"From":         {"+15550100000"},
		"To":           {"+15551234567"},
		"CallStatus":   {"in-progress"},
		"SpeechResult": {"  yes please  "},
		"Confidence":   {"0.87"},
	})
	ev, err := ParseVoiceEvent(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.SpeechResult != "yes please" {
		t.Fatalf("speech %q", ev.SpeechResult)
	}
	if ev.Confidence != 0.87 {
		t.Fatalf("confidence %v", ev.Confidence)
	}
	if ev.Answered() {
		t.Fatal("event with speech must not read as answer")
	}
}

func TestParseVoiceEventAnswer(t *testing.T) {
	req := formRequest(t, url.Values{"CallSid": {"CA123"}, "CallStatus": {"in-progress"}})
	ev, err := ParseVoiceEvent(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ev.Answered() {
		t.Fatal("expected answer event")
	}
}

func TestParseVoiceEventMissingSID(t *testing.T) {
	req := formRequest(t, url.Values{"From": {"+15550100000"}})
	if _, err := ParseVoiceEvent(req); err == nil {
		t.Fatal("expected error for missing CallSid")
	}
}

func TestParseStatusEvent(t *testing.T) {
	req := formRequest(t, url.Values{
		"CallSid":        {"CA123"},
		"CallStatus":     {"completed"},
		"CallDuration":   {"95"},
		"SequenceNumber": {"4"},
	})
	ev, err := ParseStatusEvent(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.CallDuration != 95 || ev.SequenceNumber != 4 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestParseStatusEventMissingStatus(t *testing.T) {
	req := formRequest(t, url.Values{"CallSid": {"CA123"}})
	if _, err := ParseStatusEvent(req); err == nil {
		t.Fatal("expected error for missing CallStatus")
	}
}

func TestParseRecordingEvent(t *testing.T) {
	req := formRequest(t, url.Values{
		"CallSid":           {"CA123"},
		"RecordingSid":      {"RE1"},
		"RecordingUrl":      {"https://api.example.com/recordings/RE1.mp3"},
		"RecordingStatus":   {"completed"},
		"RecordingDuration": {"88"},
	})
	ev, err := ParseRecordingEvent(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.RecordingDuration != 88 {
		t.Fatalf("duration %d", ev.RecordingDuration)
	}
}

func TestParseRecordingEventMissingURL(t *testing.T) {
	req := formRequest(t, url.Values{"CallSid": {"CA123"}})
	if _, err := ParseRecordingEvent(req); err == nil {
		t.Fatal("expected error for missing RecordingUrl")
	}
}
