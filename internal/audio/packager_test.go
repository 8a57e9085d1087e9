package audio

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voxdial/voxdial/internal/twiml"
)

type stubSynth struct {
	audio []byte
	err   error
	calls int
}

func (s *stubSynth) Synthesize(context.Context, string, string) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

type stubStorage struct {
	url     string
	err     error
	uploads int
}

func (s *stubStorage) Upload(context.Context, []byte) (string, error) {
	s.uploads++
	return s.url, s.err
}

func (s *stubStorage) Delete(context.Context, string) error { return nil }

func playURL(t *testing.T, inst Instruction) string {
	t.Helper()
	if len(inst.Verbs) != 1 {
		t.Fatalf("expected one verb, got %d", len(inst.Verbs))
	}
	play, ok := inst.Verbs[0].(twiml.Play)
	if !ok {
		t.Fatalf("expected Play, got %T", inst.Verbs[0])
	}
	return play.URL
}

func TestRenderCacheHit(t *testing.T) {
	cache := NewMemoryPhraseCache()
	cache.Put(context.Background(), "v1", "Okay!", "https://cdn.example.com/okay.mp3")
	synth := &stubSynth{audio: []byte("AUDIO")}
	p := NewPackager(PackagerConfig{Synth: synth, Cache: cache})

	inst, err := p.Render(context.Background(), "Okay!", VoiceParams{VoiceID: "v1"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if inst.Tier != TierCache {
		t.Fatalf("expected cache tier, got %s", inst.Tier)
	}
	if playURL(t, inst) != "https://cdn.example.com/okay.mp3" {
		t.Fatal("wrong cached url")
	}
	if synth.calls != 0 {
		t.Fatal("cache hit still synthesized")
	}
}

func TestRenderStorageTierAndCacheFill(t *testing.T) {
	cache := NewMemoryPhraseCache()
	synth := &stubSynth{audio: bytes.Repeat([]byte("a"), 100)}
	storage := &stubStorage{url: "https://bucket.s3.us-east-1.amazonaws.com/tts/x.mp3"}
	p := NewPackager(PackagerConfig{Synth: synth, Storage: storage, Cache: cache})

	inst, err := p.Render(context.Background(), "One moment.", VoiceParams{VoiceID: "v1"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if inst.Tier != TierStorage {
		t.Fatalf("expected storage tier, got %s", inst.Tier)
	}
	if _, ok := cache.Get(context.Background(), "v1", "One moment."); !ok {
		t.Fatal("cacheable phrase not stored after upload")
	}
}

func TestRenderOversizedAudioNeverInlines(t *testing.T) {
	// Storage fails and the audio exceeds the inline limit: the only legal
	// outcome is carrier TTS, never inline.
	synth := &stubSynth{audio: bytes.Repeat([]byte("a"), 64*1024)}
	storage := &stubStorage{err: errors.New("s3 down")}
	p := NewPackager(PackagerConfig{
		Synth: synth, Storage: storage,
		InlineMaxBytes: 32 * 1024,
	})

	inst, _ := p.Render(context.Background(), "long reply", VoiceParams{VoiceID: "v1", CarrierVoice: "alice"})
	if inst.Tier != TierCarrierTTS {
		t.Fatalf("oversized audio took tier %s", inst.Tier)
	}
	say, ok := inst.Verbs[0].(twiml.Say)
	if !ok || say.Text != "long reply" {
		t.Fatalf("expected Say fallback, got %+v", inst.Verbs[0])
	}
}

func TestRenderInlineWhenSmallAndStorageDown(t *testing.T) {
	synth := &stubSynth{audio: bytes.Repeat([]byte("a"), 1024)}
	storage := &stubStorage{err: errors.New("s3 down")}
	p := NewPackager(PackagerConfig{
		Synth: synth, Storage: storage,
		InlineMaxBytes: 32 * 1024,
		ByteCeiling:    60 * 1024,
	})

	inst, err := p.Render(context.Background(), "short", VoiceParams{VoiceID: "v1"})
	if inst.Tier != TierInline {
		t.Fatalf("expected inline tier, got %s", inst.Tier)
	}
	if !strings.HasPrefix(playURL(t, inst), "data:audio/mpeg;base64,") {
		t.Fatal("inline tier did not produce a data URI")
	}
	// Inline is a degraded outcome; the error is informational only.
	if err == nil {
		t.Fatal("expected degraded marker error")
	}
}

func TestRenderInlineRespectsCeiling(t *testing.T) {
	// Audio is under the inline max but its base64 form would blow the
	// document ceiling: must skip to carrier TTS.
	synth := &stubSynth{audio: bytes.Repeat([]byte("a"), 6*1024)}
	p := NewPackager(PackagerConfig{
		Synth:          synth,
		InlineMaxBytes: 32 * 1024,
		ByteCeiling:    8 * 1024,
	})

	inst, _ := p.Render(context.Background(), "short", VoiceParams{VoiceID: "v1"})
	if inst.Tier != TierCarrierTTS {
		t.Fatalf("expected carrier tier, got %s", inst.Tier)
	}
}

func TestRenderSynthFailureFallsToCarrier(t *testing.T) {
	synth := &stubSynth{err: errors.New("tts 503")}
	storage := &stubStorage{url: "unused"}
	p := NewPackager(PackagerConfig{Synth: synth, Storage: storage})

	inst, err := p.Render(context.Background(), "Hello there", VoiceParams{VoiceID: "v1", CarrierVoice: "alice"})
	if inst.Tier != TierCarrierTTS {
		t.Fatalf("expected carrier tier, got %s", inst.Tier)
	}
	if storage.uploads != 0 {
		t.Fatal("storage invoked without audio")
	}
	if err == nil {
		t.Fatal("expected degraded marker error")
	}
	say := inst.Verbs[0].(twiml.Say)
	if say.Text != "Hello there" || say.Voice != "alice" {
		t.Fatalf("unexpected say %+v", say)
	}
}

func TestRenderNoSynthesizerConfigured(t *testing.T) {
	p := NewPackager(PackagerConfig{})
	inst, err := p.Render(context.Background(), "Hi", VoiceParams{CarrierVoice: "alice"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if inst.Tier != TierCarrierTTS {
		t.Fatalf("expected carrier tier, got %s", inst.Tier)
	}
}

func TestCacheable(t *testing.T) {
	if !Cacheable("Okay!") {
		t.Fatal("short phrase should be cacheable")
	}
	if Cacheable("") {
		t.Fatal("empty text should not be cacheable")
	}
	if Cacheable(strings.Repeat("x", 200)) {
		t.Fatal("long reply should not be cacheable")
	}
}
