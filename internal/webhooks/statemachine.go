package webhooks

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voxdial/voxdial/internal/audio"
	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/internal/observability/metrics"
	"github.com/voxdial/voxdial/internal/session"
	"github.com/voxdial/voxdial/internal/twiml"
	"github.com/voxdial/voxdial/pkg/logging"
)

var processorTracer = otel.Tracer("voxdial.internal.webhooks")

const defaultApology = "I'm sorry, we're having a technical issue on our end. We'll call you back shortly. Goodbye."

type sessionManager interface {
	CreateSession(ctx context.Context, params session.CreateParams) (string, error)
	Turn(ctx context.Context, callID string, analysis session.Analysis) (string, error)
	EndSession(callID string, success bool) (session.Summary, bool)
	ActiveCount() int
}

type audioRenderer interface {
	Render(ctx context.Context, text string, params audio.VoiceParams) (audio.Instruction, error)
}

// VariantSource supplies the active variants for a campaign.
type VariantSource interface {
	VariantsFor(ctx context.Context, campaignID string) ([]session.CampaignVariant, error)
}

// Processor is the webhook state machine. Its three entry points are
// idempotent with respect to carrier redelivery. Voice-event processing
// never returns an error to the carrier: any failure on the turn path
// produces a spoken apology instead.
type Processor struct {
	store    calls.Store
	sessions sessionManager
	variants VariantSource
	analyzer session.SpeechAnalyzer
	packager audioRenderer
	metrics  *metrics.CallMetrics
	logger   *logging.Logger

	voice   audio.VoiceParams
	baseURL string
	apology string
	now     func() time.Time
}

// ProcessorConfig assembles a Processor. Analyzer is optional; without one
// the raw transcript is used with no emotion signal.
type ProcessorConfig struct {
	Store    calls.Store
	Sessions sessionManager
	Variants VariantSource
	Analyzer session.SpeechAnalyzer
	Packager audioRenderer
	Metrics  *metrics.CallMetrics
	Logger   *logging.Logger
	Voice    audio.VoiceParams
	// BaseURL is the public root gather actions point back at.
	BaseURL string
	Apology string
}

// NewProcessor creates the webhook state machine.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Store == nil {
		panic("webhooks: store cannot be nil")
	}
	if cfg.Sessions == nil {
		panic("webhooks: session manager cannot be nil")
	}
	if cfg.Variants == nil {
		panic("webhooks: variant source cannot be nil")
	}
	if cfg.Packager == nil {
		panic("webhooks: packager cannot be nil")
	}
	apology := cfg.Apology
	if apology == "" {
		apology = defaultApology
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		variants: cfg.Variants,
		analyzer: cfg.Analyzer,
		packager: cfg.Packager,
		metrics:  cfg.Metrics,
		logger:   logger,
		voice:    cfg.Voice,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apology:  apology,
		now:      time.Now,
	}
}

// OnVoiceEvent handles an answer fetch or a speech round-trip. The returned
// document is always valid markup the carrier can play.
func (p *Processor) OnVoiceEvent(ctx context.Context, callID string, ev VoiceEvent) twiml.Response {
	ctx, span := processorTracer.Start(ctx, "webhooks.voice")
	defer span.End()
	span.SetAttributes(attribute.String("voxdial.call_id", callID))

	rec, err := p.store.Get(ctx, callID)
	if err != nil || rec == nil {
		p.logger.Error("webhooks: voice event for unknown call", "call_id", callID, "error", err)
		p.metrics.ObserveWebhook("voice", "unknown-call")
		return p.apologyResponse(false)
	}
	if rec.Status.Terminal() {
		p.metrics.ObserveWebhook("voice", "terminal")
		return twiml.Response{Verbs: []twiml.Verb{twiml.Hangup{}}}
	}

	if ev.Answered() {
		return p.onAnswered(ctx, rec)
	}
	return p.onSpeech(ctx, rec, ev)
}

func (p *Processor) onAnswered(ctx context.Context, rec *calls.Record) twiml.Response {
	start := p.now()

	// Redelivered answer events find the record already in progress; the
	// session manager hands back the same opener.
	if rec.Status == calls.StatusDialing {
		if _, err := p.store.Update(ctx, rec.ID, func(r *calls.Record) error {
			if r.Status == calls.StatusInProgress {
				return nil
			}
			return r.Advance(calls.StatusInProgress, p.now())
		}); err != nil {
			p.logger.Error("webhooks: advance to in-progress", "call_id", rec.ID, "error", err)
			p.metrics.ObserveWebhook("voice", "error")
			return p.apologyResponse(false)
		}
	}

	variants, err := p.variants.VariantsFor(ctx, rec.CampaignID)
	if err != nil {
		p.logger.Error("webhooks: resolve variants", "call_id", rec.ID, "campaign_id", rec.CampaignID, "error", err)
		p.metrics.ObserveWebhook("voice", "error")
		return p.apologyResponse(true)
	}

	opener, err := p.sessions.CreateSession(ctx, session.CreateParams{
		CallID:     rec.ID,
		CampaignID: rec.CampaignID,
		LeadID:     rec.LeadID,
		Variants:   variants,
	})
	if err != nil {
		p.logger.Error("webhooks: create session", "call_id", rec.ID, "error", err)
		p.metrics.ObserveWebhook("voice", "error")
		return p.apologyResponse(true)
	}

	p.metrics.SetActiveSessions(p.sessions.ActiveCount())
	resp := p.speakAndListen(ctx, rec.ID, opener)
	p.metrics.ObserveWebhook("voice", "answered")
	p.metrics.ObserveTurnLatency("opening", p.now().Sub(start).Seconds())
	return resp
}

func (p *Processor) onSpeech(ctx context.Context, rec *calls.Record, ev VoiceEvent) twiml.Response {
	start := p.now()

	analysis := session.Analysis{Transcript: ev.SpeechResult, Confidence: ev.Confidence}
	if p.analyzer != nil {
		enriched, err := p.analyzer.Analyze(ctx, "", ev.SpeechResult)
		if err != nil {
			// Emotion enrichment is best effort; the raw transcript carries
			// the turn.
			p.logger.Warn("webhooks: speech analysis failed", "call_id", rec.ID, "error", err)
		} else {
			analysis = enriched
			if analysis.Confidence == 0 {
				analysis.Confidence = ev.Confidence
			}
		}
	}

	reply, err := p.sessions.Turn(ctx, rec.ID, analysis)
	if err != nil {
		p.logger.Error("webhooks: conversation turn failed", "call_id", rec.ID, "error", err)
		p.metrics.ObserveWebhook("voice", "error")
		p.metrics.ObserveTurnLatency("error", p.now().Sub(start).Seconds())
		return p.apologyResponse(true)
	}

	resp := p.speakAndListen(ctx, rec.ID, reply)
	p.metrics.ObserveWebhook("voice", "turn")
	p.metrics.ObserveTurnLatency("ok", p.now().Sub(start).Seconds())
	return resp
}

// speakAndListen renders the utterance and wraps it in a Gather so the
// carrier posts the caller's next utterance back.
func (p *Processor) speakAndListen(ctx context.Context, callID, text string) twiml.Response {
	inst, degraded := p.packager.Render(ctx, text, p.voice)
	if degraded != nil {
		p.logger.Warn("webhooks: audio degraded", "call_id", callID, "error", degraded)
	}
	p.metrics.ObserveSynthesisTier(string(inst.Tier))

	gather := twiml.Gather{
		Input:         "speech",
		Action:        p.voiceAction(callID),
		Method:        "POST",
		SpeechTimeout: "auto",
		Verbs:         inst.Verbs,
	}
	return twiml.Response{Verbs: []twiml.Verb{gather}}
}

func (p *Processor) voiceAction(callID string) string {
	return fmt.Sprintf("%s/webhooks/voice?call_id=%s", p.baseURL, url.QueryEscape(callID))
}

// apologyResponse always speaks via carrier-native TTS; the fallback path
// must not depend on the synthesis chain that may have just failed.
func (p *Processor) apologyResponse(hangup bool) twiml.Response {
	verbs := []twiml.Verb{twiml.Say{Text: p.apology, Voice: p.voice.CarrierVoice, Language: p.voice.Language}}
	if hangup {
		verbs = append(verbs, twiml.Hangup{})
	}
	return twiml.Response{Verbs: verbs}
}

// OnStatusEvent applies a lifecycle notification. Terminal statuses finalize
// the record and destroy the session; redeliveries and out-of-order events
// are no-ops.
func (p *Processor) OnStatusEvent(ctx context.Context, callID string, ev StatusEvent) error {
	ctx, span := processorTracer.Start(ctx, "webhooks.status")
	defer span.End()
	span.SetAttributes(
		attribute.String("voxdial.call_id", callID),
		attribute.String("voxdial.status", ev.CallStatus),
	)

	target := statusFor(ev.CallStatus)
	if target == "" {
		switch ev.CallStatus {
		case "initiated", "ringing", "answered", "in-progress":
			// Progress notifications; the voice webhook owns the
			// dialing → in-progress move.
			p.metrics.ObserveWebhook("status", "progress")
			return nil
		}
		p.metrics.ObserveWebhook("status", "unknown")
		return fmt.Errorf("webhooks: unrecognized call status %q", ev.CallStatus)
	}

	summary, hadSession := p.sessions.EndSession(callID, target == calls.StatusCompleted)
	p.metrics.SetActiveSessions(p.sessions.ActiveCount())

	rec, err := p.store.Update(ctx, callID, func(r *calls.Record) error {
		if r.Status.Terminal() {
			// Redelivery of a terminal status.
			return nil
		}
		if aerr := r.Advance(target, p.now()); aerr != nil {
			return aerr
		}
		if target != calls.StatusCompleted {
			r.FailReason = ev.CallStatus
		}
		if ev.CallDuration > 0 {
			r.Duration = time.Duration(ev.CallDuration) * time.Second
		}
		if hadSession {
			r.VariantID = summary.Variant.ID
			r.Metrics.TurnCount = summary.TurnCount
			r.Metrics.EmotionDistribution = summary.EmotionDistribution
			r.Metrics.QualityScore = summary.Engagement
		}
		return nil
	})
	if err != nil {
		p.metrics.ObserveWebhook("status", "error")
		return fmt.Errorf("webhooks: finalize call %s: %w", callID, err)
	}

	p.metrics.ObserveWebhook("status", string(target))
	if target == calls.StatusCompleted && rec != nil {
		p.metrics.ObserveCallDuration(rec.Duration.Seconds())
	}
	p.logger.Info("webhooks: call finalized",
		"call_id", callID,
		"status", string(target),
		"duration_s", ev.CallDuration,
	)
	return nil
}

// OnRecordingEvent attaches the recording reference. It never changes call
// status, and attaching to an already-terminal record is expected.
func (p *Processor) OnRecordingEvent(ctx context.Context, callID string, ev RecordingEvent) error {
	ctx, span := processorTracer.Start(ctx, "webhooks.recording")
	defer span.End()
	span.SetAttributes(attribute.String("voxdial.call_id", callID))

	if ev.RecordingStatus != "" && ev.RecordingStatus != "completed" {
		p.metrics.ObserveWebhook("recording", ev.RecordingStatus)
		return nil
	}

	if _, err := p.store.Update(ctx, callID, func(r *calls.Record) error {
		r.RecordingURL = ev.RecordingURL
		return nil
	}); err != nil {
		p.metrics.ObserveWebhook("recording", "error")
		return fmt.Errorf("webhooks: attach recording to %s: %w", callID, err)
	}
	p.metrics.ObserveWebhook("recording", "attached")
	return nil
}

