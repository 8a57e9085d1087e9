package audio

import (
	"context"
	"encoding/base64"

	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/internal/twiml"
	"github.com/voxdial/voxdial/pkg/logging"
)

// Tier identifies which fallback step produced the playable instruction.
type Tier string

const (
	TierCache      Tier = "cache"
	TierStorage    Tier = "storage"
	TierInline     Tier = "inline"
	TierCarrierTTS Tier = "carrier-tts"
)

// VoiceParams selects the synthesis voice and the carrier fallback voice.
type VoiceParams struct {
	// VoiceID is the synthesis provider's voice.
	VoiceID string
	// CarrierVoice is used when falling back to carrier-native TTS.
	CarrierVoice string
	Language     string
}

// Instruction is a protocol-ready playable rendering of one utterance.
type Instruction struct {
	// Verbs plug into the voice-response document returned to the carrier.
	Verbs []twiml.Verb
	Tier  Tier
}

// Packager turns text into a playable voice instruction through a tiered
// fallback chain: phrase cache, synthesis + storage upload, inline base64,
// carrier-native TTS. A tier failure always falls through; Render never
// fails the call over audio.
type Packager struct {
	synth   Synthesizer
	storage Storage
	cache   PhraseCache
	logger  *logging.Logger

	// inlineMaxBytes is the largest raw audio payload eligible for inlining.
	inlineMaxBytes int
	// byteCeiling is the protocol document limit inlined audio must respect.
	byteCeiling int
}

// PackagerConfig assembles a Packager. Synth, Storage, and Cache may each be
// nil; the corresponding tier is skipped.
type PackagerConfig struct {
	Synth          Synthesizer
	Storage        Storage
	Cache          PhraseCache
	InlineMaxBytes int
	ByteCeiling    int
	Logger         *logging.Logger
}

// NewPackager builds the audio response packager.
func NewPackager(cfg PackagerConfig) *Packager {
	inlineMax := cfg.InlineMaxBytes
	if inlineMax <= 0 {
		inlineMax = 32 * 1024
	}
	ceiling := cfg.ByteCeiling
	if ceiling <= 0 {
		ceiling = twiml.DefaultByteCeiling
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Packager{
		synth:          cfg.Synth,
		storage:        cfg.Storage,
		cache:          cfg.Cache,
		logger:         logger,
		inlineMaxBytes: inlineMax,
		byteCeiling:    ceiling,
	}
}

// Render produces a playable instruction for text. The returned instruction
// is always usable; degraded tiers are reported through Tier, and the
// returned error (a SynthesisDegraded, when non-nil) exists for metrics
// only.
func (p *Packager) Render(ctx context.Context, text string, params VoiceParams) (Instruction, error) {
	if text == "" {
		return Instruction{Verbs: []twiml.Verb{}, Tier: TierCarrierTTS}, nil
	}

	// Tier 1: phrase cache.
	if p.cache != nil && Cacheable(text) {
		if url, ok := p.cache.Get(ctx, params.VoiceID, text); ok {
			return Instruction{Verbs: []twiml.Verb{twiml.Play{URL: url}}, Tier: TierCache}, nil
		}
	}

	// Tier 2 prerequisite: synthesized audio.
	var audio []byte
	var synthErr error
	if p.synth != nil && params.VoiceID != "" {
		audio, synthErr = p.synth.Synthesize(ctx, text, params.VoiceID)
		if synthErr != nil {
			p.logger.Warn("audio: synthesis failed, degrading",
				"error", synthErr,
			)
		}
	}

	if len(audio) > 0 {
		// Tier 2: upload to object storage, reference by URL.
		if p.storage != nil {
			url, err := p.storage.Upload(ctx, audio)
			if err == nil {
				if p.cache != nil && Cacheable(text) {
					p.cache.Put(ctx, params.VoiceID, text, url)
				}
				return Instruction{Verbs: []twiml.Verb{twiml.Play{URL: url}}, Tier: TierStorage}, nil
			}
			p.logger.Warn("audio: storage upload failed, degrading", "error", err)
		}

		// Tier 3: inline base64, only for small payloads that keep the
		// document under the ceiling. Base64 inflates by a third, so the
		// margin is checked on the encoded size.
		if len(audio) <= p.inlineMaxBytes {
			encoded := base64.StdEncoding.EncodeToString(audio)
			if inlineFits(len(encoded), p.byteCeiling) {
				uri := "data:audio/mpeg;base64," + encoded
				return Instruction{Verbs: []twiml.Verb{twiml.Play{URL: uri}}, Tier: TierInline},
					&calls.SynthesisDegraded{Tier: string(TierStorage), Err: errUploadUnavailable}
			}
		}
	}

	// Tier 4: carrier-native TTS. Always applicable.
	say := twiml.Say{Text: text, Voice: params.CarrierVoice, Language: params.Language}
	var degraded error
	if synthErr != nil {
		degraded = &calls.SynthesisDegraded{Tier: string(TierCarrierTTS), Err: synthErr}
	}
	return Instruction{Verbs: []twiml.Verb{say}, Tier: TierCarrierTTS}, degraded
}

// inlineFits leaves room for the surrounding markup: the encoded payload may
// use at most 90% of the ceiling.
func inlineFits(encodedLen, ceiling int) bool {
	return encodedLen < ceiling*9/10
}

var errUploadUnavailable = &uploadUnavailableError{}

type uploadUnavailableError struct{}

func (*uploadUnavailableError) Error() string { return "storage tier unavailable" }
