package calls

import (
	"testing"
	"time"
)

func TestAdvanceHappyPath(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := &Record{ID: "c1", Status: StatusQueued, CreatedAt: now}

	if err := rec.Advance(StatusDialing, now); err != nil {
		t.Fatalf("queued→dialing: %v", err)
	}
	if err := rec.Advance(StatusInProgress, now.Add(5*time.Second)); err != nil {
		t.Fatalf("dialing→in-progress: %v", err)
	}
	if rec.AnsweredAt.IsZero() {
		t.Fatal("answered timestamp not set")
	}
	if err := rec.Advance(StatusCompleted, now.Add(65*time.Second)); err != nil {
		t.Fatalf("in-progress→completed: %v", err)
	}
	if rec.Duration != time.Minute {
		t.Fatalf("expected 1m duration, got %s", rec.Duration)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	now := time.Now().UTC()
	for _, terminal := range []Status{StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer} {
		rec := &Record{ID: "c1", Status: terminal}
		for _, next := range []Status{StatusQueued, StatusDialing, StatusInProgress, StatusCompleted, StatusFailed} {
			if err := rec.Advance(next, now); err == nil {
				t.Fatalf("terminal %s accepted transition to %s", terminal, next)
			}
		}
		if rec.Status != terminal {
			t.Fatalf("terminal status mutated to %s", rec.Status)
		}
	}
}

func TestAdvanceRejectsBackwardMoves(t *testing.T) {
	now := time.Now().UTC()
	rec := &Record{ID: "c1", Status: StatusInProgress}
	for _, bad := range []Status{StatusQueued, StatusDialing, StatusInProgress} {
		if err := rec.Advance(bad, now); err == nil {
			t.Fatalf("in-progress accepted move to %s", bad)
		}
	}
}

func TestCanTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusDialing, true},
		{StatusQueued, StatusFailed, true},
		{StatusQueued, StatusInProgress, false},
		{StatusDialing, StatusNoAnswer, true},
		{StatusDialing, StatusBusy, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusCompleted, StatusFailed, false},
		{StatusDialing, StatusDialing, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s,%s)=%v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestNormalizeAndValidate(t *testing.T) {
	if got := NormalizeE164(" (555) 012-3456 "); got != "+5550123456" {
		t.Fatalf("normalize: got %s", got)
	}
	if NormalizeE164("") != "" {
		t.Fatal("normalize empty should stay empty")
	}
	if !ValidE164("+15550123456") {
		t.Fatal("expected valid number")
	}
	for _, bad := range []string{"15550123456", "+0123", "+abc", "+12", "+01234567890"} {
		if ValidE164(bad) {
			t.Fatalf("expected %q invalid", bad)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+15550123456"); got != "***3456" {
		t.Fatalf("mask: got %s", got)
	}
	if got := MaskPhone("123"); got != "****" {
		t.Fatalf("mask short: got %s", got)
	}
}
