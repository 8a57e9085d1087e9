package guard

import (
	"testing"
	"time"
)

func TestDialingWindowIn(t *testing.T) {
	w, err := ParseDialingWindow("09:00", "20:00", "UTC")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tests := []struct {
		ts   string
		want bool
	}{
		{"2026-03-02T10:00:00Z", true},
		{"2026-03-02T08:59:00Z", false},
		{"2026-03-02T09:00:00Z", true},
		{"2026-03-02T19:59:00Z", true},
		{"2026-03-02T20:00:00Z", false},
		{"2026-03-02T23:30:00Z", false},
	}
	for _, tc := range tests {
		ts, _ := time.Parse(time.RFC3339, tc.ts)
		if got := w.In(ts); got != tc.want {
			t.Fatalf("In(%s)=%v want %v", tc.ts, got, tc.want)
		}
	}
}

func TestDialingWindowCrossesMidnight(t *testing.T) {
	w, err := ParseDialingWindow("22:00", "02:00", "UTC")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ts, _ := time.Parse(time.RFC3339, "2026-03-02T23:00:00Z")
	if !w.In(ts) {
		t.Fatal("expected 23:00 inside 22:00-02:00")
	}
	ts, _ = time.Parse(time.RFC3339, "2026-03-02T12:00:00Z")
	if w.In(ts) {
		t.Fatal("expected noon outside 22:00-02:00")
	}
}

func TestDialingWindowRespectsTimezone(t *testing.T) {
	w, err := ParseDialingWindow("09:00", "20:00", "America/New_York")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// 13:00 UTC in winter is 08:00 in New York: closed.
	ts, _ := time.Parse(time.RFC3339, "2026-01-15T13:00:00Z")
	if w.In(ts) {
		t.Fatal("expected 08:00 local to be outside the window")
	}
	// 15:00 UTC is 10:00 local: open.
	ts, _ = time.Parse(time.RFC3339, "2026-01-15T15:00:00Z")
	if !w.In(ts) {
		t.Fatal("expected 10:00 local inside the window")
	}
}

func TestNextOpen(t *testing.T) {
	w, err := ParseDialingWindow("09:00", "20:00", "UTC")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	inside, _ := time.Parse(time.RFC3339, "2026-03-02T10:00:00Z")
	if got := w.NextOpen(inside); !got.Equal(inside) {
		t.Fatalf("NextOpen inside window should be identity, got %s", got)
	}

	early, _ := time.Parse(time.RFC3339, "2026-03-02T07:00:00Z")
	got := w.NextOpen(early)
	want, _ := time.Parse(time.RFC3339, "2026-03-02T09:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("NextOpen early: got %s want %s", got, want)
	}

	late, _ := time.Parse(time.RFC3339, "2026-03-02T21:00:00Z")
	got = w.NextOpen(late)
	want, _ = time.Parse(time.RFC3339, "2026-03-03T09:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("NextOpen late: got %s want %s", got, want)
	}
}

func TestParseDialingWindowErrors(t *testing.T) {
	if _, err := ParseDialingWindow("", "20:00", "UTC"); err == nil {
		t.Fatal("expected error for empty start")
	}
	if _, err := ParseDialingWindow("09:00", "20:00", "Mars/Phobos"); err == nil {
		t.Fatal("expected error for bad tz")
	}
	if _, err := ParseDialingWindow("25:00", "20:00", "UTC"); err == nil {
		t.Fatal("expected error for bad clock")
	}
}
