package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/internal/carrier"
	"github.com/voxdial/voxdial/internal/guard"
	"github.com/voxdial/voxdial/internal/observability/metrics"
	"github.com/voxdial/voxdial/pkg/logging"
)

// CallRequest is the transient dispatch input from campaign execution.
type CallRequest struct {
	Destination     string               `json:"destination"`
	CampaignID      string               `json:"campaign_id"`
	LeadID          string               `json:"lead_id"`
	Priority        int                  `json:"priority,omitempty"`
	ScheduledAt     time.Time            `json:"scheduled_at,omitzero"`
	MaxRetries      int                  `json:"max_retries,omitempty"`
	CallbackBaseURL string               `json:"callback_base_url,omitempty"`
	Policy          guard.CampaignPolicy `json:"-"`
	ConsentVerified bool                 `json:"consent_verified"`
}

// Dispatcher validates call requests, runs them past the compliance guard,
// and hands admitted calls to the carrier client. Every request ends in a
// recorded terminal or rescheduled state; nothing is silently dropped.
type Dispatcher struct {
	store   calls.Store
	guard   *guard.Guard
	placer  carrier.CallPlacer
	queue   *ScheduledQueue
	metrics *metrics.CallMetrics
	logger  *logging.Logger
	cfg     Config
	now     func() time.Time
}

// Config carries the carrier-facing dispatch settings.
type Config struct {
	// FromNumber is the caller id for all outbound placements (E.164).
	FromNumber string
	// BaseURL is the public root the carrier calls webhooks on.
	BaseURL string
	// RingTimeoutSeconds bounds how long the destination rings.
	RingTimeoutSeconds int
	// MachineDetection is passed through to the carrier when set.
	MachineDetection string
}

// NewDispatcher assembles the dispatcher.
func NewDispatcher(store calls.Store, g *guard.Guard, placer carrier.CallPlacer, queue *ScheduledQueue, cfg Config, m *metrics.CallMetrics, logger *logging.Logger) *Dispatcher {
	if store == nil {
		panic("dispatch: store cannot be nil")
	}
	if g == nil {
		panic("dispatch: guard cannot be nil")
	}
	if placer == nil {
		panic("dispatch: placer cannot be nil")
	}
	if queue == nil {
		queue = NewScheduledQueue()
	}
	if cfg.RingTimeoutSeconds <= 0 {
		cfg.RingTimeoutSeconds = 30
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:   store,
		guard:   g,
		placer:  placer,
		queue:   queue,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Queue exposes the scheduled re-dispatch queue.
func (d *Dispatcher) Queue() *ScheduledQueue { return d.queue }

// Dispatch places one outbound call. Invalid destinations and consent
// violations are rejections, not retries. Window rejections persist the
// request with a future scheduled time and return the call id without a
// placement attempt. Hard compliance rejections return the rejection with
// no record created.
func (d *Dispatcher) Dispatch(ctx context.Context, req CallRequest) (string, error) {
	dest := calls.NormalizeE164(req.Destination)
	if !calls.ValidE164(dest) {
		d.metrics.ObserveDispatch("invalid")
		return "", &calls.ValidationError{Field: "destination", Reason: "not a valid E.164 number"}
	}
	if !req.ConsentVerified {
		d.metrics.ObserveDispatch("invalid")
		return "", &calls.ValidationError{Field: "consent_verified", Reason: "outbound calls require verified consent"}
	}
	if strings.TrimSpace(req.CampaignID) == "" {
		d.metrics.ObserveDispatch("invalid")
		return "", &calls.ValidationError{Field: "campaign_id", Reason: "required"}
	}
	req.Destination = dest

	// Caller-supplied future schedule skips the guard until it is due.
	if !req.ScheduledAt.IsZero() && req.ScheduledAt.After(d.now()) {
		return d.reschedule(ctx, req, req.ScheduledAt, "scheduled")
	}

	admission := d.guard.Admit(dest, req.Policy)
	if !admission.Admitted {
		if admission.Reschedulable {
			return d.reschedule(ctx, req, d.now().Add(admission.RetryAfter), admission.Rule)
		}
		d.metrics.ObserveDispatch("rejected")
		d.logger.Warn("dispatch: hard compliance rejection",
			"destination", calls.MaskPhone(dest),
			"campaign_id", req.CampaignID,
			"rule", admission.Rule,
		)
		return "", admission.Rejection()
	}

	rec := d.newRecord(req)
	if err := d.store.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("dispatch: create record: %w", err)
	}
	return rec.ID, d.place(ctx, rec.ID, req)
}

// Redispatch retries a previously rescheduled request against its existing
// record. A still-closed window pushes it back on the queue; a hard
// rejection finalizes the record as failed.
func (d *Dispatcher) Redispatch(ctx context.Context, s Scheduled) error {
	req := s.Request
	admission := d.guard.Admit(req.Destination, req.Policy)
	if !admission.Admitted {
		if admission.Reschedulable {
			attempts := s.Attempts + 1
			if req.MaxRetries > 0 && attempts > req.MaxRetries {
				return d.finalizeFailed(ctx, s.CallID, "reschedule-limit")
			}
			at := d.now().Add(admission.RetryAfter)
			if _, err := d.store.Update(ctx, s.CallID, func(r *calls.Record) error {
				r.ScheduledAt = at
				return nil
			}); err != nil {
				return fmt.Errorf("dispatch: update schedule: %w", err)
			}
			req.ScheduledAt = at
			d.queue.Push(Scheduled{CallID: s.CallID, Request: req, RunAt: at, Attempts: attempts})
			d.metrics.ObserveDispatch("rescheduled")
			return nil
		}
		if _, err := d.store.Update(ctx, s.CallID, func(r *calls.Record) error {
			if aerr := r.Advance(calls.StatusFailed, d.now()); aerr != nil {
				return aerr
			}
			r.FailReason = "compliance:" + admission.Rule
			return nil
		}); err != nil {
			return fmt.Errorf("dispatch: record compliance failure: %w", err)
		}
		d.metrics.ObserveDispatch("rejected")
		return admission.Rejection()
	}
	return d.place(ctx, s.CallID, req)
}

// finalizeFailed marks a queued record failed with the given reason.
func (d *Dispatcher) finalizeFailed(ctx context.Context, callID, reason string) error {
	if _, err := d.store.Update(ctx, callID, func(r *calls.Record) error {
		if aerr := r.Advance(calls.StatusFailed, d.now()); aerr != nil {
			return aerr
		}
		r.FailReason = reason
		return nil
	}); err != nil {
		return fmt.Errorf("dispatch: finalize failure: %w", err)
	}
	d.metrics.ObserveDispatch("failed")
	d.logger.Warn("dispatch: deferred call abandoned", "call_id", callID, "reason", reason)
	return nil
}

// place runs the carrier placement for an existing queued record and
// advances it to dialing or failed.
func (d *Dispatcher) place(ctx context.Context, callID string, req CallRequest) error {
	dest := req.Destination
	handle, err := d.placer.PlaceCall(ctx, carrier.PlaceParams{
		To:                   dest,
		From:                 d.cfg.FromNumber,
		VoiceURL:             d.webhookURL(req, "/webhooks/voice", callID),
		StatusCallbackURL:    d.webhookURL(req, "/webhooks/status", callID),
		RecordingCallbackURL: d.webhookURL(req, "/webhooks/recording", callID),
		TimeoutSeconds:       d.cfg.RingTimeoutSeconds,
		MachineDetection:     d.cfg.MachineDetection,
	})
	if err != nil {
		reason := failReason(err)
		if _, uerr := d.store.Update(ctx, callID, func(r *calls.Record) error {
			if aerr := r.Advance(calls.StatusFailed, d.now()); aerr != nil {
				return aerr
			}
			r.FailReason = reason
			return nil
		}); uerr != nil {
			d.logger.Error("dispatch: failed to record placement failure", "call_id", callID, "error", uerr)
		}
		d.metrics.ObserveDispatch("failed")
		d.logger.Error("dispatch: placement failed",
			"call_id", callID,
			"destination", calls.MaskPhone(dest),
			"reason", reason,
		)
		return err
	}

	if _, err := d.store.Update(ctx, callID, func(r *calls.Record) error {
		if aerr := r.Advance(calls.StatusDialing, d.now()); aerr != nil {
			return aerr
		}
		r.ProviderSID = handle.SID
		return nil
	}); err != nil {
		return fmt.Errorf("dispatch: record dialing: %w", err)
	}

	d.metrics.ObserveDispatch("dialing")
	d.logger.Info("dispatch: call placed",
		"call_id", callID,
		"provider_sid", handle.SID,
		"destination", calls.MaskPhone(dest),
		"campaign_id", req.CampaignID,
	)
	return nil
}

// reschedule persists the request as queued with a future scheduled time and
// puts it on the re-dispatch queue. No placement attempt happens until then.
func (d *Dispatcher) reschedule(ctx context.Context, req CallRequest, at time.Time, rule string) (string, error) {
	rec := d.newRecord(req)
	rec.ScheduledAt = at
	if err := d.store.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("dispatch: create scheduled record: %w", err)
	}
	req.ScheduledAt = at
	d.queue.Push(Scheduled{CallID: rec.ID, Request: req, RunAt: at})
	d.metrics.ObserveDispatch("rescheduled")
	d.logger.Info("dispatch: rescheduled",
		"call_id", rec.ID,
		"destination", calls.MaskPhone(req.Destination),
		"rule", rule,
		"run_at", at,
	)
	return rec.ID, nil
}

func (d *Dispatcher) newRecord(req CallRequest) *calls.Record {
	return &calls.Record{
		ID:          uuid.NewString(),
		Destination: req.Destination,
		CampaignID:  req.CampaignID,
		LeadID:      req.LeadID,
		Status:      calls.StatusQueued,
		CreatedAt:   d.now(),
	}
}

// webhookURL carries the call id as a query parameter so webhook deliveries
// correlate back to the record without a provider-SID index.
func (d *Dispatcher) webhookURL(req CallRequest, path, callID string) string {
	base := req.CallbackBaseURL
	if base == "" {
		base = d.cfg.BaseURL
	}
	return strings.TrimRight(base, "/") + path + "?call_id=" + url.QueryEscape(callID)
}

func failReason(err error) string {
	var open *calls.CircuitOpenError
	if errors.As(err, &open) {
		return "circuit-open:" + open.Dependency
	}
	var transient *calls.TransientProviderError
	if errors.As(err, &transient) {
		return "provider-transient"
	}
	var validation *calls.ValidationError
	if errors.As(err, &validation) {
		return "invalid:" + validation.Field
	}
	return "provider-error"
}
