package session

import (
	"sync"
	"time"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerAgent    Speaker = "agent"
	SpeakerCustomer Speaker = "customer"
)

// Stage tracks where in the script the conversation currently sits.
type Stage string

const (
	StageOpening    Stage = "opening"
	StageDiscovery  Stage = "discovery"
	StageObjections Stage = "objections"
	StageClosing    Stage = "closing"
)

// ConversationTurn is one utterance in a call, in wall-clock order.
type ConversationTurn struct {
	Speaker     Speaker   `json:"speaker"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Emotion     string    `json:"emotion,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Personality string    `json:"personality,omitempty"`
}

// Profile is the running read on the caller, updated after every customer
// turn and folded into the next system prompt.
type Profile struct {
	Mood       EmotionBucket `json:"mood"`
	Engagement float64       `json:"engagement"`
	Objections []string      `json:"objections,omitempty"`
	Stage      Stage         `json:"stage"`
}

// CallSession is the live in-memory state for one active call. All mutation
// goes through the Manager, which serializes turns with the session mutex so
// concurrent webhook deliveries for the same call cannot interleave.
type CallSession struct {
	mu sync.Mutex

	ID         string
	CampaignID string
	LeadID     string
	Variant    CampaignVariant

	turns        []ConversationTurn
	profile      Profile
	turnCount    int
	lastActivity time.Time
	createdAt    time.Time
}

func newCallSession(id, campaignID, leadID string, variant CampaignVariant, now time.Time) *CallSession {
	return &CallSession{
		ID:         id,
		CampaignID: campaignID,
		LeadID:     leadID,
		Variant:    variant,
		profile: Profile{
			Mood:       BucketNeutral,
			Engagement: 0.5,
			Stage:      StageOpening,
		},
		lastActivity: now,
		createdAt:    now,
	}
}

// Turns returns a copy of the turn list in arrival order.
func (s *CallSession) Turns() []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Snapshot returns a copy of the contextual profile.
func (s *CallSession) Snapshot() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profile
	p.Objections = append([]string(nil), s.profile.Objections...)
	return p
}

// TurnCount reports how many customer/agent exchange pairs have happened.
func (s *CallSession) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

func (s *CallSession) appendTurn(turn ConversationTurn) {
	s.turns = append(s.turns, turn)
}

// absorbAnalysis folds the analyzed customer utterance into the profile.
// Must be called with s.mu held.
func (s *CallSession) absorbAnalysis(a Analysis) {
	bucket := bucketFor(a.Emotion)
	s.profile.Mood = bucket

	switch bucket {
	case BucketPositive:
		s.profile.Engagement = clamp01(s.profile.Engagement + 0.1)
	case BucketNegative, BucketImpatient:
		s.profile.Engagement = clamp01(s.profile.Engagement - 0.15)
	}

	switch a.Intent {
	case "objection":
		if a.Transcript != "" {
			s.profile.Objections = append(s.profile.Objections, a.Transcript)
		}
		s.profile.Stage = StageObjections
	case "interested", "question":
		if s.profile.Stage == StageOpening {
			s.profile.Stage = StageDiscovery
		}
	case "ready", "commit":
		s.profile.Stage = StageClosing
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Summary is what survives a session after it is destroyed: the aggregate
// numbers the webhook state machine writes onto the call record.
type Summary struct {
	TurnCount           int
	Engagement          float64
	EmotionDistribution map[string]float64
	Variant             CampaignVariant
}

// summarize computes the terminal summary. Must be called with s.mu held.
func (s *CallSession) summarize() Summary {
	dist := make(map[string]float64)
	customerTurns := 0
	for _, t := range s.turns {
		if t.Speaker != SpeakerCustomer || t.Emotion == "" {
			continue
		}
		dist[string(bucketFor(t.Emotion))]++
		customerTurns++
	}
	if customerTurns > 0 {
		for k := range dist {
			dist[k] /= float64(customerTurns)
		}
	}
	return Summary{
		TurnCount:           s.turnCount,
		Engagement:          s.profile.Engagement,
		EmotionDistribution: dist,
		Variant:             s.Variant,
	}
}
