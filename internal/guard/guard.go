package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/pkg/logging"
)

// globalKey is the bucket key for the process-wide outbound budget.
const globalKey = "_global"

// CampaignPolicy carries the per-campaign compliance knobs evaluated at
// admission time.
type CampaignPolicy struct {
	// Timezone is the IANA zone of the destination; empty falls back to the
	// guard's default window zone.
	Timezone string
	// WindowStart/WindowEnd override the default dialing window (HH:MM).
	WindowStart string
	WindowEnd   string
}

// Admission is the guard's verdict for one dial attempt.
type Admission struct {
	Admitted bool
	// RetryAfter is how long until the attempt could succeed. Zero for hard
	// rejections.
	RetryAfter time.Duration
	// Reschedulable distinguishes window rejections (re-queue at RetryAfter)
	// from cap rejections (drop to the caller).
	Reschedulable bool
	Rule          string
}

// Config tunes the guard.
type Config struct {
	RatePerWindow int
	RateWindow    time.Duration
	DailyCap      int
	Window        DialingWindow
	SweepInterval time.Duration
	Logger        *logging.Logger
}

// Guard enforces the global dial rate, the per-destination daily cap, and
// the dialing window. All limiter state is in-process and self-expiring.
type Guard struct {
	global  *slidingLimiter
	daily   *slidingLimiter
	window  DialingWindow
	sweep   time.Duration
	logger  *logging.Logger
	nowFunc func() time.Time
}

// New creates a Guard from cfg.
func New(cfg Config) *Guard {
	if cfg.RatePerWindow <= 0 {
		cfg.RatePerWindow = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.DailyCap <= 0 {
		cfg.DailyCap = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	return &Guard{
		global:  newSlidingLimiter(cfg.RatePerWindow, cfg.RateWindow),
		daily:   newSlidingLimiter(cfg.DailyCap, 24*time.Hour),
		window:  cfg.Window,
		sweep:   cfg.SweepInterval,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Admit checks one dial attempt against all compliance rules: window first
// (reschedulable, consumes no budget), then the daily cap (hard rejection),
// then the global rate.
func (g *Guard) Admit(destination string, policy CampaignPolicy) Admission {
	now := g.nowFunc()

	window := g.window
	if policy.WindowStart != "" && policy.WindowEnd != "" {
		if w, err := ParseDialingWindow(policy.WindowStart, policy.WindowEnd, policy.Timezone); err == nil {
			window = w
		} else {
			g.logger.Warn("guard: bad campaign window, using default",
				"start", policy.WindowStart, "end", policy.WindowEnd, "tz", policy.Timezone, "error", err)
		}
	} else if policy.Timezone != "" {
		if w, err := ParseDialingWindow(clockString(g.window.StartMinutes), clockString(g.window.EndMinutes), policy.Timezone); err == nil {
			window = w
		}
	}

	if !window.In(now) {
		nextOpen := window.NextOpen(now)
		g.logger.Info("guard: outside dialing window",
			"destination", calls.MaskPhone(destination),
			"next_open", nextOpen,
		)
		return Admission{
			Admitted:      false,
			RetryAfter:    nextOpen.Sub(now),
			Reschedulable: true,
			Rule:          "dialing-window",
		}
	}

	if ok, _ := g.daily.allow(destination); !ok {
		g.logger.Warn("guard: daily cap reached",
			"destination", calls.MaskPhone(destination))
		return Admission{Admitted: false, Rule: "daily-cap"}
	}

	if ok, retryAfter := g.global.allow(globalKey); !ok {
		// The attempt never went out; give the destination its token back.
		g.daily.refund(destination)
		return Admission{
			Admitted:      false,
			RetryAfter:    retryAfter,
			Reschedulable: true,
			Rule:          "global-rate",
		}
	}

	return Admission{Admitted: true}
}

// Rejection converts a non-admitted Admission into the typed compliance
// error the dispatcher surfaces to callers.
func (a Admission) Rejection() *calls.ComplianceRejection {
	if a.Admitted {
		return nil
	}
	return &calls.ComplianceRejection{
		Rule:          a.Rule,
		RetryAfter:    a.RetryAfter,
		Reschedulable: a.Reschedulable,
	}
}

// Run sweeps expired limiter entries until ctx is done.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.global.sweep()
			g.daily.sweep()
		}
	}
}

func clockString(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
