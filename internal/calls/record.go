package calls

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an outbound call.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusDialing    Status = "dialing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBusy       Status = "busy"
	StatusNoAnswer   Status = "no-answer"
)

// Terminal reports whether no further status mutation is accepted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	}
	return false
}

// validNext enumerates the allowed forward transitions. Transitions are
// monotonic: queued → dialing → in-progress → terminal, with failure exits
// allowed from queued and dialing.
var validNext = map[Status][]Status{
	StatusQueued:     {StatusDialing, StatusFailed},
	StatusDialing:    {StatusInProgress, StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Metrics is the per-call analytics block written at finalization.
type Metrics struct {
	QualityScore        float64            `json:"quality_score,omitempty"`
	EmotionDistribution map[string]float64 `json:"emotion_distribution,omitempty"`
	ComplianceScore     float64            `json:"compliance_score,omitempty"`
	TurnCount           int                `json:"turn_count,omitempty"`
}

// Record is the durable lifecycle entity for one outbound call. It is
// created by the dispatcher and mutated only by the dispatcher (dispatch
// failures) and the webhook state machine. Records are never deleted here;
// archival is an external concern.
type Record struct {
	ID           string        `json:"id"`
	Destination  string        `json:"destination"`
	CampaignID   string        `json:"campaign_id"`
	LeadID       string        `json:"lead_id"`
	VariantID    string        `json:"variant_id,omitempty"`
	Status       Status        `json:"status"`
	ProviderSID  string        `json:"provider_sid,omitempty"`
	FailReason   string        `json:"fail_reason,omitempty"`
	RecordingURL string        `json:"recording_url,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	AnsweredAt   time.Time     `json:"answered_at,omitzero"`
	EndedAt      time.Time     `json:"ended_at,omitzero"`
	Duration     time.Duration `json:"duration,omitempty"`
	ScheduledAt  time.Time     `json:"scheduled_at,omitzero"`
	Metrics      Metrics       `json:"metrics,omitempty"`
}

// Advance applies a status transition in place, rejecting moves out of a
// terminal state or backward along the lifecycle.
func (r *Record) Advance(to Status, now time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("calls: record %s is terminal (%s), cannot move to %s", r.ID, r.Status, to)
	}
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("calls: illegal transition %s → %s for record %s", r.Status, to, r.ID)
	}
	r.Status = to
	switch to {
	case StatusInProgress:
		r.AnsweredAt = now
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		r.EndedAt = now
		if !r.AnsweredAt.IsZero() {
			r.Duration = now.Sub(r.AnsweredAt)
		}
	}
	return nil
}
