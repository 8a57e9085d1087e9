package webhooks

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxdial/voxdial/internal/twiml"
	"github.com/voxdial/voxdial/pkg/logging"
)

// Handler exposes the three carrier webhook endpoints.
type Handler struct {
	processor *Processor
	authToken string
	ceiling   int
	logger    *logging.Logger
}

// NewHandler wires the processor behind HTTP. An empty authToken disables
// signature validation (local development only).
func NewHandler(processor *Processor, authToken string, byteCeiling int, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("webhooks: processor cannot be nil")
	}
	if byteCeiling <= 0 {
		byteCeiling = twiml.DefaultByteCeiling
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{processor: processor, authToken: authToken, ceiling: byteCeiling, logger: logger}
}

// Routes mounts the webhook endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhooks/voice", h.Voice)
	r.Post("/webhooks/status", h.Status)
	r.Post("/webhooks/recording", h.Recording)
}

// Voice handles POST /webhooks/voice. The response body is voice markup the
// carrier blocks on; it must always be valid.
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	ev, err := ParseVoiceEvent(r)
	if err != nil {
		h.logger.Warn("webhooks: bad voice payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	resp := h.processor.OnVoiceEvent(r.Context(), callID, ev)
	h.writeTwiML(w, resp)
}

// Status handles POST /webhooks/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	ev, err := ParseStatusEvent(r)
	if err != nil {
		h.logger.Warn("webhooks: bad status payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := h.processor.OnStatusEvent(r.Context(), callID, ev); err != nil {
		h.logger.Error("webhooks: status processing failed", "call_id", callID, "error", err)
		http.Error(w, "Unprocessable Entity", http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recording handles POST /webhooks/recording.
func (h *Handler) Recording(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	ev, err := ParseRecordingEvent(r)
	if err != nil {
		h.logger.Warn("webhooks: bad recording payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := h.processor.OnRecordingEvent(r.Context(), callID, ev); err != nil {
		h.logger.Error("webhooks: recording processing failed", "call_id", callID, "error", err)
		http.Error(w, "Unprocessable Entity", http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authenticate validates the carrier signature and extracts the call id.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.authToken != "" {
		if !ValidateTwilioSignature(r, h.authToken, buildAbsoluteURL(r)) {
			h.logger.Warn("webhooks: invalid signature", "path", r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return "", false
		}
	}
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return "", false
	}
	return callID, true
}

func (h *Handler) writeTwiML(w http.ResponseWriter, resp twiml.Response) {
	body, err := twiml.Render(resp, h.ceiling)
	if err != nil {
		// The packager keeps documents under the ceiling; a failure here
		// still has to answer the carrier with something playable.
		h.logger.Error("webhooks: render over ceiling, degrading to apology", "error", err)
		body, err = twiml.Render(h.processor.apologyResponse(true), h.ceiling)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("webhooks: write response", "error", err)
	}
}

// buildAbsoluteURL reconstructs the public URL the carrier signed, honoring
// the proxy forwarding headers.
func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
