package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voxdial/voxdial/internal/dispatch"
	httpmiddleware "github.com/voxdial/voxdial/internal/http/middleware"
	"github.com/voxdial/voxdial/internal/webhooks"
	"github.com/voxdial/voxdial/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	CallsHandler    *dispatch.Handler
	WebhooksHandler *webhooks.Handler
	MetricsHandler  http.Handler
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if cfg.WebhooksHandler != nil {
		cfg.WebhooksHandler.Routes(r)
	}
	if cfg.CallsHandler != nil {
		cfg.CallsHandler.Routes(r)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
