package carrier

import (
	"sync"
	"time"

	"github.com/voxdial/voxdial/internal/calls"
)

// BreakerState is the circuit position for one external dependency.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// Window is the trailing interval over which the error rate is measured.
	Window time.Duration
	// MinRequests is the minimum sample size before the breaker can trip.
	MinRequests int
	// ErrorThreshold is the failure ratio (0..1] that opens the circuit.
	ErrorThreshold float64
	// ResetTimeout is how long an open circuit short-circuits before
	// allowing a half-open trial.
	ResetTimeout time.Duration
}

// Breaker is a rolling-window circuit breaker. Allow must be called before
// each attempt; Record after each outcome. While open, Allow fast-fails with
// CircuitOpenError and no network attempt is made. After ResetTimeout one
// trial request is let through (half-open); its outcome closes or re-opens
// the circuit.
type Breaker struct {
	mu sync.Mutex

	dependency string
	cfg        BreakerConfig

	state         BreakerState
	windowStart   time.Time
	requests      int
	failures      int
	openedAt      time.Time
	trialInFlight bool

	now func() time.Time
}

// NewBreaker creates a closed breaker guarding the named dependency.
func NewBreaker(dependency string, cfg BreakerConfig) *Breaker {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 5
	}
	if cfg.ErrorThreshold <= 0 || cfg.ErrorThreshold > 1 {
		cfg.ErrorThreshold = 0.5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		dependency: dependency,
		cfg:        cfg,
		state:      BreakerClosed,
		now:        time.Now,
	}
}

// State returns the current circuit position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether an attempt may proceed. It returns a
// CircuitOpenError carrying the remaining cool-down when the circuit is
// open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cfg.ResetTimeout {
			return &calls.CircuitOpenError{
				Dependency: b.dependency,
				RetryAfter: b.cfg.ResetTimeout - elapsed,
			}
		}
		b.state = BreakerHalfOpen
		b.trialInFlight = true
		return nil
	case BreakerHalfOpen:
		if b.trialInFlight {
			return &calls.CircuitOpenError{
				Dependency: b.dependency,
				RetryAfter: b.cfg.ResetTimeout,
			}
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// Record feeds one attempt outcome into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()

	if b.state == BreakerHalfOpen {
		b.trialInFlight = false
		if success {
			b.reset(now)
		} else {
			b.trip(now)
		}
		return
	}

	if now.Sub(b.windowStart) > b.cfg.Window {
		b.windowStart = now
		b.requests = 0
		b.failures = 0
	}
	b.requests++
	if !success {
		b.failures++
	}

	if b.state == BreakerClosed &&
		b.requests >= b.cfg.MinRequests &&
		float64(b.failures)/float64(b.requests) >= b.cfg.ErrorThreshold {
		b.trip(now)
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = BreakerOpen
	b.openedAt = now
	b.trialInFlight = false
}

func (b *Breaker) reset(now time.Time) {
	b.state = BreakerClosed
	b.windowStart = now
	b.requests = 0
	b.failures = 0
	b.trialInFlight = false
}
