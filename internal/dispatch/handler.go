package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxdial/voxdial/internal/calls"
	"github.com/voxdial/voxdial/internal/guard"
	"github.com/voxdial/voxdial/pkg/logging"
)

// Handler exposes call dispatch over HTTP.
type Handler struct {
	dispatcher *Dispatcher
	store      calls.Store
	logger     *logging.Logger
}

// NewHandler creates the dispatch HTTP handler.
func NewHandler(dispatcher *Dispatcher, store calls.Store, logger *logging.Logger) *Handler {
	if dispatcher == nil || store == nil {
		panic("dispatch: handler requires a dispatcher and a store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dispatcher: dispatcher, store: store, logger: logger}
}

// Routes mounts the call endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/calls", h.CreateCall)
	r.Get("/calls/{callID}", h.GetCall)
}

// createCallRequest is the JSON body for POST /calls. The window overrides
// are optional; empty values fall back to the guard's defaults.
type createCallRequest struct {
	CallRequest
	Timezone    string `json:"timezone,omitempty"`
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
}

type createCallResponse struct {
	CallID string       `json:"call_id"`
	Status calls.Status `json:"status"`
}

// CreateCall handles POST /calls requests.
func (h *Handler) CreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode dispatch request", "error", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Policy = guard.CampaignPolicy{
		Timezone:    req.Timezone,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
	}

	id, err := h.dispatcher.Dispatch(r.Context(), req.CallRequest)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil || rec == nil {
		h.logger.Error("dispatched call not readable", "call_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createCallResponse{CallID: rec.ID, Status: rec.Status})
}

// GetCall handles GET /calls/{callID} requests.
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "callID")
	if id == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}
	rec, err := h.store.Get(r.Context(), id)
	if err != nil || rec == nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

type dispatchErrorResponse struct {
	Error             string `json:"error"`
	Rule              string `json:"rule,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func (h *Handler) writeDispatchError(w http.ResponseWriter, err error) {
	var verr *calls.ValidationError
	if errors.As(err, &verr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(dispatchErrorResponse{Error: verr.Error()})
		return
	}
	var crej *calls.ComplianceRejection
	if errors.As(err, &crej) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(dispatchErrorResponse{
			Error:             crej.Error(),
			Rule:              crej.Rule,
			RetryAfterSeconds: int(crej.RetryAfter.Seconds()),
		})
		return
	}
	// Placement failures have already been written to the call record.
	h.logger.Error("dispatch failed", "error", err)
	http.Error(w, "call placement failed", http.StatusBadGateway)
}
