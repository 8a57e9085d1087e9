package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/pkg/logging"
)

var managerTracer = otel.Tracer("voxdial.internal.session")

// Manager owns the active-session map. Sessions are created when a call is
// answered, mutated one turn at a time, and destroyed on terminal status or
// by the idle reaper. Different calls proceed fully in parallel; turns
// within one call are serialized on the session mutex.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession

	selector  *VariantSelector
	responder Responder
	logger    *logging.Logger

	idleTimeout time.Duration
	maxTurns    int
	now         func() time.Time
}

// ManagerConfig assembles a Manager.
type ManagerConfig struct {
	Selector    *VariantSelector
	Responder   Responder
	IdleTimeout time.Duration
	MaxTurns    int
	Logger      *logging.Logger
}

// NewManager creates the conversation session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Responder == nil {
		panic("session: responder cannot be nil")
	}
	selector := cfg.Selector
	if selector == nil {
		selector = NewVariantSelector(0, time.Now().UnixNano())
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		sessions:    make(map[string]*CallSession),
		selector:    selector,
		responder:   cfg.Responder,
		logger:      logger,
		idleTimeout: idle,
		maxTurns:    maxTurns,
		now:         time.Now,
	}
}

// CreateParams describes the call a new session belongs to.
type CreateParams struct {
	CallID     string
	CampaignID string
	LeadID     string
	Variants   []CampaignVariant
}

// CreateSession assigns a variant, registers the session, and returns the
// opening utterance. Creating a session for an id that already has one
// returns the existing session's opener, so redelivered answer webhooks stay
// idempotent.
func (m *Manager) CreateSession(ctx context.Context, params CreateParams) (string, error) {
	_, span := managerTracer.Start(ctx, "session.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("voxdial.call_id", params.CallID),
		attribute.String("voxdial.campaign_id", params.CampaignID),
	)

	if strings.TrimSpace(params.CallID) == "" {
		return "", &calls.ValidationError{Field: "call_id", Reason: "required"}
	}

	m.mu.Lock()
	if existing, ok := m.sessions[params.CallID]; ok {
		m.mu.Unlock()
		return openingUtterance(existing.Variant)
	}
	m.mu.Unlock()

	variant, err := m.selector.Select(params.CampaignID, params.Variants)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	opener, err := openingUtterance(variant)
	if err != nil {
		m.selector.Release(params.CampaignID, variant.ID)
		span.RecordError(err)
		return "", err
	}

	sess := newCallSession(params.CallID, params.CampaignID, params.LeadID, variant, m.now())
	sess.appendTurn(ConversationTurn{
		Speaker:     SpeakerAgent,
		Content:     opener,
		Timestamp:   m.now(),
		Personality: variant.Personality,
	})

	m.mu.Lock()
	// Re-check: a concurrent create for the same call may have won. The
	// losing goroutine's session is discarded, so its assignment is too.
	if existing, ok := m.sessions[params.CallID]; ok {
		m.mu.Unlock()
		m.selector.Release(params.CampaignID, variant.ID)
		return openingUtterance(existing.Variant)
	}
	m.sessions[params.CallID] = sess
	m.mu.Unlock()

	m.logger.Info("session: created",
		"call_id", params.CallID,
		"campaign_id", params.CampaignID,
		"variant", variant.ID,
	)
	return opener, nil
}

// Turn processes one analyzed caller utterance and returns the agent's
// reply. Concurrent turns for the same session are serialized in arrival
// order on the session mutex.
func (m *Manager) Turn(ctx context.Context, callID string, analysis Analysis) (string, error) {
	ctx, span := managerTracer.Start(ctx, "session.turn")
	defer span.End()
	span.SetAttributes(attribute.String("voxdial.call_id", callID))

	sess, err := m.get(callID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.turnCount >= m.maxTurns {
		return "", fmt.Errorf("session: turn limit reached for call %s", callID)
	}

	now := m.now()
	sess.appendTurn(ConversationTurn{
		Speaker:    SpeakerCustomer,
		Content:    analysis.Transcript,
		Timestamp:  now,
		Emotion:    analysis.Emotion,
		Intent:     analysis.Intent,
		Confidence: analysis.Confidence,
	})
	sess.absorbAnalysis(analysis)
	sess.lastActivity = now

	prompt := buildSystemPrompt(sess.Variant, sess.profile)
	reply, err := m.responder.Reply(ctx, prompt, sess.turns)
	if err != nil {
		// Roll back the customer turn so a redelivered webhook can replay it.
		sess.turns = sess.turns[:len(sess.turns)-1]
		span.RecordError(err)
		return "", err
	}

	sess.appendTurn(ConversationTurn{
		Speaker:     SpeakerAgent,
		Content:     reply,
		Timestamp:   m.now(),
		Personality: sess.Variant.Personality,
	})
	sess.turnCount++
	sess.lastActivity = m.now()
	return reply, nil
}

// EndSession destroys the session and returns its summary. Ending an
// unknown session returns ok=false; terminal webhooks may arrive more than
// once or after the reaper already ran.
func (m *Manager) EndSession(callID string, success bool) (Summary, bool) {
	m.mu.Lock()
	sess, ok := m.sessions[callID]
	if ok {
		delete(m.sessions, callID)
	}
	m.mu.Unlock()
	if !ok {
		return Summary{}, false
	}

	sess.mu.Lock()
	summary := sess.summarize()
	sess.mu.Unlock()

	m.selector.RecordOutcome(sess.CampaignID, sess.Variant.ID, success)
	m.logger.Info("session: ended",
		"call_id", callID,
		"turns", summary.TurnCount,
		"success", success,
	)
	return summary, true
}

// Get returns the live session for a call id.
func (m *Manager) Get(callID string) (*CallSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[callID]
	return sess, ok
}

// ActiveCount reports how many sessions are live.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) get(callID string) (*CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("session: no active session for call %s", callID)
	}
	return sess, nil
}

// ReapIdle destroys sessions idle past the timeout and returns how many were
// removed. Terminal webhooks for a reaped call are treated as already ended.
func (m *Manager) ReapIdle() int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var stale []string
	for id, sess := range m.sessions {
		sess.mu.Lock()
		idle := sess.lastActivity.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			stale = append(stale, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.logger.Warn("session: reaped idle session", "call_id", id)
	}
	return len(stale)
}

// Run sweeps idle sessions on the given interval until ctx is canceled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReapIdle()
		}
	}
}
