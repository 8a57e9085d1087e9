// Package twiml renders the voice-response markup the carrier consumes to
// drive a call: speak, play, gather caller speech, redirect, hang up. The
// byte size of the final document is enforced before it leaves the process.
package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// DefaultByteCeiling is a conservative bound under Twilio's 64 KiB TwiML
// document limit, leaving headroom for transport framing.
const DefaultByteCeiling = 60 * 1024

// Verb is one call-control instruction.
type Verb interface {
	isVerb()
}

// Say speaks text with the carrier's built-in TTS.
type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

func (Say) isVerb() {}

// Play fetches and plays audio, either a URL or a base64 data URI.
type Play struct {
	XMLName xml.Name `xml:"Play"`
	Loop    int      `xml:"loop,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

func (Play) isVerb() {}

// Pause waits for the given number of seconds.
type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

func (Pause) isVerb() {}

// Gather collects caller speech and posts it to Action.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	SpeechModel   string   `xml:"speechModel,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	// Verbs nested in a Gather execute while listening.
	Verbs []Verb `xml:",any"`
}

func (Gather) isVerb() {}

// Redirect fetches new markup from a URL.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

func (Redirect) isVerb() {}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func (Hangup) isVerb() {}

// Dial connects the caller to another number.
type Dial struct {
	XMLName xml.Name `xml:"Dial"`
	Action  string   `xml:"action,attr,omitempty"`
	Number  string   `xml:",chardata"`
}

func (Dial) isVerb() {}

// Response is the root document.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []Verb   `xml:",any"`
}

// Render serializes the response and enforces the wire-protocol byte
// ceiling. Exceeding the ceiling is an error at this boundary so callers can
// fall back before answering the carrier.
func Render(resp Response, byteCeiling int) ([]byte, error) {
	if byteCeiling <= 0 {
		byteCeiling = DefaultByteCeiling
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(resp); err != nil {
		return nil, fmt.Errorf("twiml: encode: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("twiml: flush: %w", err)
	}
	if buf.Len() > byteCeiling {
		return nil, fmt.Errorf("twiml: document is %d bytes, exceeds ceiling %d", buf.Len(), byteCeiling)
	}
	return buf.Bytes(), nil
}
