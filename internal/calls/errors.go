package calls

import (
	"fmt"
	"time"
)

// ValidationError marks bad caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("calls: invalid %s: %s", e.Field, e.Reason)
}

// ComplianceRejection marks a rate or dialing-window violation. Window
// violations carry the next time the destination becomes dialable so the
// dispatcher can reschedule instead of failing.
type ComplianceRejection struct {
	Rule       string
	RetryAfter time.Duration
	// Reschedulable is true for window violations; daily-cap violations are
	// hard rejections and must not be re-queued automatically.
	Reschedulable bool
}

func (e *ComplianceRejection) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("calls: compliance rejection (%s), retry after %s", e.Rule, e.RetryAfter)
	}
	return fmt.Sprintf("calls: compliance rejection (%s)", e.Rule)
}

// TransientProviderError wraps a retriable carrier/provider failure.
type TransientProviderError struct {
	Provider string
	Err      error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("calls: transient %s error: %v", e.Provider, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// CircuitOpenError is returned without any network attempt while a
// dependency's circuit is open.
type CircuitOpenError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("calls: circuit open for %s, retry after %s", e.Dependency, e.RetryAfter)
}

// ConfigurationError marks missing campaign configuration (script, prompt,
// voice). Fatal: the engine must not paper over it with a fabricated default.
type ConfigurationError struct {
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("calls: configuration error (%s): %s", e.Subject, e.Reason)
}

// SynthesisDegraded is non-fatal; it tells the audio packager to fall
// through to the next tier.
type SynthesisDegraded struct {
	Tier string
	Err  error
}

func (e *SynthesisDegraded) Error() string {
	return fmt.Sprintf("calls: synthesis degraded at tier %s: %v", e.Tier, e.Err)
}

func (e *SynthesisDegraded) Unwrap() error { return e.Err }
