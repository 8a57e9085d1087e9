package carrier

import (
	"context"
	"errors"
	"time"

	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/pkg/logging"
)

// RetryPolicy bounds placement retries. Only transient errors are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// CapDelay clamps the exponential backoff.
	CapDelay time.Duration
}

// ResilientClient wraps a CallPlacer behind a circuit breaker and bounded
// exponential-backoff retry. An open circuit fast-fails without touching the
// network; callers treat that as a scheduling delay, not a retriable error.
type ResilientClient struct {
	inner   CallPlacer
	breaker *Breaker
	policy  RetryPolicy
	logger  *logging.Logger
	// attemptTimeout bounds each individual placement attempt.
	attemptTimeout time.Duration
}

// ResilientConfig assembles the wrapper.
type ResilientConfig struct {
	Placer         CallPlacer
	Breaker        *Breaker
	Retry          RetryPolicy
	AttemptTimeout time.Duration
	Logger         *logging.Logger
}

// NewResilientClient builds the production carrier client.
func NewResilientClient(cfg ResilientConfig) *ResilientClient {
	policy := cfg.Retry
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 500 * time.Millisecond
	}
	if policy.CapDelay <= 0 {
		policy.CapDelay = 8 * time.Second
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewBreaker("twilio", BreakerConfig{})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ResilientClient{
		inner:          cfg.Placer,
		breaker:        breaker,
		policy:         policy,
		logger:         logger,
		attemptTimeout: timeout,
	}
}

var _ CallPlacer = (*ResilientClient)(nil)

// Breaker exposes the circuit for observability.
func (c *ResilientClient) Breaker() *Breaker { return c.breaker }

// PlaceCall attempts the placement under the breaker/retry policy.
func (c *ResilientClient) PlaceCall(ctx context.Context, params PlaceParams) (*CallHandle, error) {
	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if err := c.breaker.Allow(); err != nil {
			// Open circuit: no network attempt, no further retries here.
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		handle, err := c.inner.PlaceCall(attemptCtx, params)
		cancel()

		if err == nil {
			c.breaker.Record(true)
			return handle, nil
		}

		var transient *calls.TransientProviderError
		if !errors.As(err, &transient) {
			// Validation/config/permanent provider errors don't count against
			// the dependency's health and must not be retried.
			return nil, err
		}
		c.breaker.Record(false)
		lastErr = err

		if attempt == c.policy.MaxAttempts-1 {
			break
		}
		delay := c.policy.BaseDelay << uint(attempt)
		if delay > c.policy.CapDelay {
			delay = c.policy.CapDelay
		}
		c.logger.Warn("carrier: placement retry",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
