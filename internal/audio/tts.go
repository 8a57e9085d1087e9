package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/pkg/logging"
)

const ttsCallTimeout = 10 * time.Second

// Synthesizer converts text into playable audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// HTTPSynthesizer talks to an ElevenLabs-compatible text-to-speech API.
type HTTPSynthesizer struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// SynthesizerConfig configures the TTS client.
type SynthesizerConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewHTTPSynthesizer creates a speech-synthesis client.
func NewHTTPSynthesizer(cfg SynthesizerConfig) (*HTTPSynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("audio: TTS API key required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("audio: TTS base URL required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: ttsCallTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPSynthesizer{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

var _ Synthesizer = (*HTTPSynthesizer)(nil)

// Synthesize requests MP3 audio for the given text and voice.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("audio: text required")
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, &calls.ConfigurationError{Subject: "voice", Reason: "voice id not configured"}
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("audio: marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", s.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("audio: create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &calls.TransientProviderError{Provider: "tts", Err: err}
		}
		return nil, fmt.Errorf("audio: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &calls.TransientProviderError{
				Provider: "tts",
				Err:      fmt.Errorf("status %d: %s", resp.StatusCode, msg),
			}
		}
		return nil, fmt.Errorf("audio: synthesis returned %d: %s", resp.StatusCode, msg)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("audio: read synthesis response: %w", err)
	}
	if len(data) == 0 {
		return nil, &calls.TransientProviderError{Provider: "tts", Err: errors.New("empty audio response")}
	}
	return data, nil
}
