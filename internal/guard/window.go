package guard

import (
	"fmt"
	"time"
)

// DialingWindow represents the daily local-time window in which outbound
// dialing is permitted.
type DialingWindow struct {
	StartMinutes int
	EndMinutes   int
	location     *time.Location
	enabled      bool
}

// ParseDialingWindow returns a dialing window from HH:MM strings and an IANA
// time zone name.
func ParseDialingWindow(start, end, tz string) (DialingWindow, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return DialingWindow{}, fmt.Errorf("guard: load dialing window tz: %w", err)
		}
	}
	startMin, err := parseClock(start)
	if err != nil {
		return DialingWindow{}, fmt.Errorf("guard: parse dialing window start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return DialingWindow{}, fmt.Errorf("guard: parse dialing window end: %w", err)
	}
	return DialingWindow{
		StartMinutes: startMin,
		EndMinutes:   endMin,
		location:     loc,
		enabled:      true,
	}, nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// In reports whether the given moment falls inside the dialing window.
func (w DialingWindow) In(now time.Time) bool {
	if !w.enabled || w.StartMinutes == w.EndMinutes {
		return true
	}
	local := now.In(w.location)
	minutes := local.Hour()*60 + local.Minute()
	if w.StartMinutes < w.EndMinutes {
		return minutes >= w.StartMinutes && minutes < w.EndMinutes
	}
	// Window crosses midnight.
	return minutes >= w.StartMinutes || minutes < w.EndMinutes
}

// NextOpen returns the next moment at or after now when the window opens.
// If now is already inside the window, now is returned unchanged.
func (w DialingWindow) NextOpen(now time.Time) time.Time {
	if w.In(now) {
		return now
	}
	local := now.In(w.location)
	open := time.Date(local.Year(), local.Month(), local.Day(),
		w.StartMinutes/60, w.StartMinutes%60, 0, 0, w.location)
	if !open.After(local) {
		open = open.AddDate(0, 0, 1)
	}
	return open
}
