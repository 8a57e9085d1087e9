package webhooks

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/voxdial/voxdial/internal/calls"
)

// VoiceEvent is a carrier voice callback: either the initial answer fetch or
// a speech-gather round-trip while the call is live.
type VoiceEvent struct {
	CallSID    string
	From       string
	To         string
	CallStatus string
	// SpeechResult is the caller's transcribed utterance; empty on the
	// initial answer event.
	SpeechResult string
	Confidence   float64
	Digits       string
}

// Answered reports whether this event is the initial answer callback rather
// than a gather round-trip.
func (e VoiceEvent) Answered() bool {
	return e.SpeechResult == "" && e.Digits == ""
}

// StatusEvent is an asynchronous call lifecycle notification.
type StatusEvent struct {
	CallSID        string
	CallStatus     string
	CallDuration   int
	SequenceNumber int
}

// RecordingEvent signals a finished call recording.
type RecordingEvent struct {
	CallSID           string
	RecordingSID      string
	RecordingURL      string
	RecordingStatus   string
	RecordingDuration int
}

// ParseVoiceEvent reads a voice callback from form data. Requests without a
// call SID are rejected as an unrecognized shape.
func ParseVoiceEvent(r *http.Request) (VoiceEvent, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceEvent{}, fmt.Errorf("webhooks: parse voice form: %w", err)
	}
	ev := VoiceEvent{
		CallSID:      r.FormValue("CallSid"),
		From:         r.FormValue("From"),
		To:           r.FormValue("To"),
		CallStatus:   r.FormValue("CallStatus"),
		SpeechResult: strings.TrimSpace(r.FormValue("SpeechResult")),
		Digits:       r.FormValue("Digits"),
	}
	if ev.CallSID == "" {
		return VoiceEvent{}, fmt.Errorf("webhooks: voice event missing CallSid")
	}
	if v := r.FormValue("Confidence"); v != "" {
		if c, err := strconv.ParseFloat(v, 64); err == nil {
			ev.Confidence = c
		}
	}
	return ev, nil
}

// ParseStatusEvent reads a status callback from form data.
func ParseStatusEvent(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, fmt.Errorf("webhooks: parse status form: %w", err)
	}
	ev := StatusEvent{
		CallSID:    r.FormValue("CallSid"),
		CallStatus: r.FormValue("CallStatus"),
	}
	if ev.CallSID == "" {
		return StatusEvent{}, fmt.Errorf("webhooks: status event missing CallSid")
	}
	if ev.CallStatus == "" {
		return StatusEvent{}, fmt.Errorf("webhooks: status event missing CallStatus")
	}
	if v := r.FormValue("CallDuration"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			ev.CallDuration = d
		}
	}
	if v := r.FormValue("SequenceNumber"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			ev.SequenceNumber = n
		}
	}
	return ev, nil
}

// ParseRecordingEvent reads a recording callback from form data.
func ParseRecordingEvent(r *http.Request) (RecordingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingEvent{}, fmt.Errorf("webhooks: parse recording form: %w", err)
	}
	ev := RecordingEvent{
		CallSID:         r.FormValue("CallSid"),
		RecordingSID:    r.FormValue("RecordingSid"),
		RecordingURL:    r.FormValue("RecordingUrl"),
		RecordingStatus: r.FormValue("RecordingStatus"),
	}
	if ev.CallSID == "" || ev.RecordingURL == "" {
		return RecordingEvent{}, fmt.Errorf("webhooks: recording event missing CallSid or RecordingUrl")
	}
	if v := r.FormValue("RecordingDuration"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			ev.RecordingDuration = d
		}
	}
	return ev, nil
}

// statusFor maps a carrier status string onto the record lifecycle. The
// carrier's "canceled" collapses into failed. Unknown statuses map to the
// zero value; the state machine rejects them explicitly.
func statusFor(carrierStatus string) calls.Status {
	switch carrierStatus {
	case "completed":
		return calls.StatusCompleted
	case "busy":
		return calls.StatusBusy
	case "no-answer":
		return calls.StatusNoAnswer
	case "failed", "canceled":
		return calls.StatusFailed
	default:
		return ""
	}
}
