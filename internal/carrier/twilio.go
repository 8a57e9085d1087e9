package carrier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/pkg/logging"
)

// callCreator is the slice of the Twilio SDK we use; narrowed for tests.
type callCreator interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
}

// TwilioClient places outbound calls through the Twilio Programmable Voice
// REST API.
type TwilioClient struct {
	api    callCreator
	logger *logging.Logger
}

// TwilioClientConfig configures the placement client.
type TwilioClientConfig struct {
	AccountSID string
	AuthToken  string
	// API overrides the SDK client (for testing).
	API    callCreator
	Logger *logging.Logger
}

// NewTwilioClient creates a carrier client for placing calls.
func NewTwilioClient(cfg TwilioClientConfig) (*TwilioClient, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	api := cfg.API
	if api == nil {
		if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
			return nil, fmt.Errorf("carrier: twilio account SID and auth token required")
		}
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		api = rest.Api
	}
	return &TwilioClient{api: api, logger: logger}, nil
}

var _ CallPlacer = (*TwilioClient)(nil)

// PlaceCall creates the call at Twilio. Transient provider failures are
// wrapped in TransientProviderError so the resilient wrapper can retry them;
// everything else (invalid number, auth) is returned as-is and never
// retried.
func (c *TwilioClient) PlaceCall(ctx context.Context, params PlaceParams) (*CallHandle, error) {
	if params.To == "" || params.From == "" {
		return nil, &calls.ValidationError{Field: "number", Reason: "to and from required"}
	}
	if params.VoiceURL == "" {
		return nil, &calls.ConfigurationError{Subject: "voice-url", Reason: "answer webhook URL required"}
	}

	create := &openapi.CreateCallParams{}
	create.SetTo(params.To)
	create.SetFrom(params.From)
	create.SetUrl(params.VoiceURL)
	create.SetMethod(http.MethodPost)
	if params.StatusCallbackURL != "" {
		create.SetStatusCallback(params.StatusCallbackURL)
		create.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
		create.SetStatusCallbackMethod(http.MethodPost)
	}
	if params.RecordingCallbackURL != "" {
		create.SetRecord(true)
		create.SetRecordingStatusCallback(params.RecordingCallbackURL)
	}
	if params.TimeoutSeconds > 0 {
		create.SetTimeout(params.TimeoutSeconds)
	}
	if params.MachineDetection != "" {
		create.SetMachineDetection(params.MachineDetection)
	}

	c.logger.Info("carrier: placing outbound call",
		"to", calls.MaskPhone(params.To),
		"from", calls.MaskPhone(params.From),
	)

	done := make(chan struct{})
	var (
		resp *openapi.ApiV2010Call
		err  error
	)
	go func() {
		defer close(done)
		resp, err = c.api.CreateCall(create)
	}()
	select {
	case <-ctx.Done():
		return nil, &calls.TransientProviderError{Provider: "twilio", Err: ctx.Err()}
	case <-done:
	}

	if err != nil {
		if isTransient(err) {
			return nil, &calls.TransientProviderError{Provider: "twilio", Err: err}
		}
		return nil, fmt.Errorf("carrier: create call: %w", err)
	}

	handle := &CallHandle{}
	if resp.Sid != nil {
		handle.SID = *resp.Sid
	}
	if resp.Status != nil {
		handle.Status = *resp.Status
	}
	if handle.SID == "" {
		return nil, &calls.TransientProviderError{Provider: "twilio", Err: errors.New("empty call SID in response")}
	}

	c.logger.Info("carrier: outbound call created",
		"call_sid", handle.SID,
		"to", calls.MaskPhone(params.To),
	)
	return handle, nil
}

// isTransient classifies provider errors: timeouts, rate limits, and 5xx are
// retriable; 4xx request errors are not.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		if restErr.Status == http.StatusTooManyRequests {
			return true
		}
		return restErr.Status >= 500 && restErr.Status <= 599
	}
	// Unclassified transport errors (connection reset, DNS) are worth a retry.
	return !errors.Is(err, context.Canceled)
}
