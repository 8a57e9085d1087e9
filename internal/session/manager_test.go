package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxdial/voxdial/internal/calls"
)

type stubResponder struct {
	mu      sync.Mutex
	replies int
	err     error
	prompts []string
}

func (r *stubResponder) Reply(_ context.Context, prompt string, _ []ConversationTurn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.replies++
	r.prompts = append(r.prompts, prompt)
	return fmt.Sprintf("agent reply %d", r.replies), nil
}

func testVariants() []CampaignVariant {
	return []CampaignVariant{
		{ID: "v1", Script: "Hi, this is Sam from Acme.\nAsk about their quote.", Personality: "warm"},
	}
}

func newTestManager(responder Responder) *Manager {
	return NewManager(ManagerConfig{
		Selector:  NewVariantSelector(5, 1),
		Responder: responder,
	})
}

func TestCreateSessionReturnsOpener(t *testing.T) {
	m := newTestManager(&stubResponder{})
	opener, err := m.CreateSession(context.Background(), CreateParams{
		CallID: "call-1", CampaignID: "camp-1", Variants: testVariants(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if opener != "Hi, this is Sam from Acme." {
		t.Fatalf("unexpected opener %q", opener)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("expected one live session, got %d", m.ActiveCount())
	}

	sess, ok := m.Get("call-1")
	if !ok {
		t.Fatal("session missing")
	}
	turns := sess.Turns()
	if len(turns) != 1 || turns[0].Speaker != SpeakerAgent || turns[0].Content != opener {
		t.Fatalf("opener not recorded as first agent turn: %+v", turns)
	}
}

func TestCreateSessionIdempotent(t *testing.T) {
	m := newTestManager(&stubResponder{})
	params := CreateParams{CallID: "call-1", CampaignID: "camp-1", Variants: testVariants()}

	first, err := m.CreateSession(context.Background(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := m.CreateSession(context.Background(), params)
	if err != nil {
		t.Fatalf("redelivered create: %v", err)
	}
	if first != second {
		t.Fatalf("openers differ: %q vs %q", first, second)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("duplicate create grew the session map to %d", m.ActiveCount())
	}
}

func TestDuplicateCreateKeepsOneAssignment(t *testing.T) {
	selector := NewVariantSelector(5, 1)
	m := NewManager(ManagerConfig{Selector: selector, Responder: &stubResponder{}})
	params := CreateParams{CallID: "call-1", CampaignID: "camp-1", Variants: testVariants()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.CreateSession(context.Background(), params); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range selector.Assignments("camp-1") {
		total += n
	}
	if total != 1 {
		t.Fatalf("one session should hold one assignment, got %d", total)
	}
}

func TestCreateSessionRequiresScript(t *testing.T) {
	selector := NewVariantSelector(5, 1)
	m := NewManager(ManagerConfig{Selector: selector, Responder: &stubResponder{}})
	_, err := m.CreateSession(context.Background(), CreateParams{
		CallID: "call-1", CampaignID: "camp-1",
		Variants: []CampaignVariant{{ID: "v1"}},
	})
	var cfgErr *calls.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if m.ActiveCount() != 0 {
		t.Fatal("failed create left a session behind")
	}
	if n := selector.Assignments("camp-1")["v1"]; n != 0 {
		t.Fatalf("failed create should not hold an assignment, got %d", n)
	}
}

func TestTurnAppendsCustomerAndAgent(t *testing.T) {
	responder := &stubResponder{}
	m := newTestManager(responder)
	if _, err := m.CreateSession(context.Background(), CreateParams{
		CallID: "call-1", CampaignID: "camp-1", Variants: testVariants(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	reply, err := m.Turn(context.Background(), "call-1", Analysis{
		Transcript: "How much does it cost?",
		Emotion:    "confusion",
		Intent:     "question",
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if reply != "agent reply 1" {
		t.Fatalf("unexpected reply %q", reply)
	}

	sess, _ := m.Get("call-1")
	turns := sess.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected opener + 2 turns, got %d", len(turns))
	}
	if turns[1].Speaker != SpeakerCustomer || turns[2].Speaker != SpeakerAgent {
		t.Fatalf("turn order wrong: %+v", turns)
	}

	profile := sess.Snapshot()
	if profile.Mood != BucketConfused {
		t.Fatalf("profile mood %s, want confused", profile.Mood)
	}
	if profile.Stage != StageDiscovery {
		t.Fatalf("profile stage %s, want discovery", profile.Stage)
	}
	if len(responder.prompts) != 1 || !strings.Contains(responder.prompts[0], "one step at a time") {
		t.Fatal("system prompt did not carry confused-caller guidance")
	}
}

func TestTurnUnknownSession(t *testing.T) {
	m := newTestManager(&stubResponder{})
	if _, err := m.Turn(context.Background(), "ghost", Analysis{Transcript: "hello?"}); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestTurnRollsBackOnResponderFailure(t *testing.T) {
	responder := &stubResponder{err: errors.New("llm down")}
	m := newTestManager(responder)
	if _, err := m.CreateSession(context.Background(), CreateParams{
		CallID: "call-1", CampaignID: "camp-1", Variants: testVariants(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := m.Turn(context.Background(), "call-1", Analysis{Transcript: "hi"}); err == nil {
		t.Fatal("expected responder error to propagate")
	}

	sess, _ := m.Get("call-1")
	if got := len(sess.Turns()); got != 1 {
		t.Fatalf("failed turn left %d turns, want just the opener", got)
	}

	// The same utterance replayed after recovery succeeds.
	responder.err = nil
	if _, err := m.Turn(context.Background(), "call-1", Analysis{Transcript: "hi"}); err != nil {
		t.Fatalf("replayed turn: %v", err)
	}
	if got := len(sess.Turns()); got != 3 {
		t.Fatalf("expected 3 turns after replay, got %d", got)
	}
}

func TestConcurrentTurnsAlternateWithinOneSession(t *testing.T) {
	const n = 20
	responder := &stubResponder{}
	m := newTestManager(responder)

	for _, id := range []string{"call-1", "call-2"} {
		if _, err := m.CreateSession(context.Background(), CreateParams{
			CallID: id, CampaignID: "camp-1", Variants: testVariants(),
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		for _, id := range []string{"call-1", "call-2"} {
			wg.Add(1)
			go func(callID string, i int) {
				defer wg.Done()
				if _, err := m.Turn(context.Background(), callID, Analysis{
					Transcript: fmt.Sprintf("utterance %d", i),
				}); err != nil {
					t.Errorf("turn %s: %v", callID, err)
				}
			}(id, i)
		}
	}
	wg.Wait()

	for _, id := range []string{"call-1", "call-2"} {
		sess, _ := m.Get(id)
		turns := sess.Turns()
		if len(turns) != 2*n+1 {
			t.Fatalf("%s: expected %d turns, got %d", id, 2*n+1, len(turns))
		}
		// After the opener, turns strictly alternate customer/agent with no
		// interleaving from the other call's session.
		for i := 1; i < len(turns); i++ {
			want := SpeakerCustomer
			if i%2 == 0 {
				want = SpeakerAgent
			}
			if turns[i].Speaker != want {
				t.Fatalf("%s: turn %d speaker %s, want %s", id, i, turns[i].Speaker, want)
			}
		}
		if sess.TurnCount() != n {
			t.Fatalf("%s: turn count %d, want %d", id, sess.TurnCount(), n)
		}
	}
}

func TestTurnLimit(t *testing.T) {
	m := NewManager(ManagerConfig{
		Selector:  NewVariantSelector(5, 1),
		Responder: &stubResponder{},
		MaxTurns:  2,
	})
	if _, err := m.CreateSession(context.Background(), CreateParams{
		CallID: "call-1", CampaignID: "camp-1", Variants: testVariants(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := m.Turn(context.Background(), "call-1", Analysis{Transcript: "more"}); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	if _, err := m.Turn(context.Background(), "call-1", Analysis{Transcript: "more"}); err == nil {
		t.Fatal("expected turn limit error")
	}
}

func TestEndSessionSummaryAndIdempotence(t *testing.T) {
	m := newTestManager(&stubResponder{})
	if _, err := m.CreateSession(context.Background(), CreateParams{
		CallID: "call-1", CampaignID: "camp-1", Variants: testVariants(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, emotion := range []string{"happiness", "happiness", "anger", "neutral"} {
		if _, err := m.Turn(context.Background(), "call-1", Analysis{Transcript: "x", Emotion: emotion}); err != nil {
			t.Fatalf("turn: %v", err)
		}
	}

	summary, ok := m.EndSession("call-1", true)
	if !ok {
		t.Fatal("end: session not found")
	}
	if summary.TurnCount != 4 {
		t.Fatalf("summary turn count %d, want 4", summary.TurnCount)
	}
	if got := summary.EmotionDistribution[string(BucketPositive)]; got != 0.5 {
		t.Fatalf("positive share %v, want 0.5", got)
	}
	if m.ActiveCount() != 0 {
		t.Fatal("session survived EndSession")
	}

	if _, ok := m.EndSession("call-1", true); ok {
		t.Fatal("second EndSession should report missing")
	}
}

func TestReapIdleSessions(t *testing.T) {
	m := NewManager(ManagerConfig{
		Selector:    NewVariantSelector(5, 1),
		Responder:   &stubResponder{},
		IdleTimeout: 10 * time.Minute,
	})
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	for _, id := range []string{"stale", "fresh"} {
		if _, err := m.CreateSession(context.Background(), CreateParams{
			CallID: id, CampaignID: "camp-1", Variants: testVariants(),
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	// Only "fresh" sees activity before the clock jumps past the timeout.
	m.now = func() time.Time { return base.Add(9 * time.Minute) }
	if _, err := m.Turn(context.Background(), "fresh", Analysis{Transcript: "still here"}); err != nil {
		t.Fatalf("turn: %v", err)
	}

	m.now = func() time.Time { return base.Add(12 * time.Minute) }
	if reaped := m.ReapIdle(); reaped != 1 {
		t.Fatalf("reaped %d sessions, want 1", reaped)
	}
	if _, ok := m.Get("stale"); ok {
		t.Fatal("stale session survived the reaper")
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Fatal("fresh session was reaped")
	}
}
