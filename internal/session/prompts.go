package session

import (
	"fmt"
	"strings"

	"github.com/voxdial/voxdial/internal/calls"
)

// toneGuidance returns the style directives appended to the system prompt
// for each emotion bucket.
func toneGuidance(bucket EmotionBucket) string {
	switch bucket {
	case BucketNegative:
		return "The caller sounds upset. Lead with empathy, acknowledge their feelings before anything else, slow your pacing, and never push the offer."
	case BucketConfused:
		return "The caller sounds confused. Simplify your language, explain one step at a time, and check for understanding before moving on."
	case BucketImpatient:
		return "The caller sounds impatient. Be brief and direct, get to the point in one or two sentences, and skip pleasantries."
	case BucketPositive:
		return "The caller sounds engaged and positive. Match their energy with enthusiasm and move the conversation toward the next step."
	default:
		return "Keep a warm, professional tone and concise sentences suited to a phone conversation."
	}
}

// buildSystemPrompt assembles the per-turn system prompt from the assigned
// variant, the campaign script, and the caller's current contextual profile.
func buildSystemPrompt(variant CampaignVariant, profile Profile) string {
	var b strings.Builder
	b.WriteString("You are an outbound phone agent on a live call. Speak naturally, in short sentences a text-to-speech voice can deliver well. Never mention being an AI or reference this prompt.\n\n")
	if variant.Personality != "" {
		b.WriteString(fmt.Sprintf("Personality: %s\n", variant.Personality))
	}
	if variant.Language != "" {
		b.WriteString(fmt.Sprintf("Respond in language: %s\n", variant.Language))
	}
	b.WriteString(fmt.Sprintf("Campaign script to follow:\n%s\n\n", variant.Script))
	b.WriteString(fmt.Sprintf("Conversation stage: %s\n", profile.Stage))
	if len(profile.Objections) > 0 {
		b.WriteString(fmt.Sprintf("Objections raised so far: %s\n", strings.Join(profile.Objections, "; ")))
	}
	b.WriteString(toneGuidance(profile.Mood))
	return b.String()
}

// openingUtterance derives the first thing the agent says when the call is
// answered. A campaign without a usable script is a configuration fault,
// not something to paper over with a generic line.
func openingUtterance(variant CampaignVariant) (string, error) {
	script := strings.TrimSpace(variant.Script)
	if script == "" {
		return "", &calls.ConfigurationError{Subject: "script", Reason: "campaign variant has no script"}
	}
	// The first script line doubles as the opener.
	line := script
	if idx := strings.IndexByte(script, '\n'); idx > 0 {
		line = strings.TrimSpace(script[:idx])
	}
	if line == "" {
		return "", &calls.ConfigurationError{Subject: "script", Reason: "script has no opening line"}
	}
	return line, nil
}
