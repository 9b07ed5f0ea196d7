package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/futureself-ai/futureself/internal/http/handlers"
	appmiddleware "github.com/futureself-ai/futureself/internal/http/middleware"
	"github.com/futureself-ai/futureself/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	VoiceWebhook   *handlers.VoiceWebhookHandler
	CallsHandler   *handlers.CallsHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler http.Handler

	// AdminToken protects the call-trigger endpoints. Empty disables them.
	AdminToken string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(appmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		if cfg.HealthHandler != nil {
			public.Get("/healthz", cfg.HealthHandler.Healthz)
		}
		if cfg.VoiceWebhook != nil {
			// Transcripts arrive at conversational pace; anything faster is
			// a misbehaving client.
			guard := appmiddleware.NewFloodGuard(20, 40, cfg.Logger)
			public.With(guard.Middleware).
				Post("/webhooks/voice/events", cfg.VoiceWebhook.HandleEvents)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Call-trigger endpoints (scheduler and ops)
	if cfg.CallsHandler != nil {
		r.Route("/calls", func(calls chi.Router) {
			calls.Use(requireAdminToken(cfg.AdminToken))
			calls.Post("/", cfg.CallsHandler.CreateCall)
			calls.Get("/{callID}", func(w http.ResponseWriter, req *http.Request) {
				cfg.CallsHandler.GetCall(w, req, chi.URLParam(req, "callID"))
			})
		})
	}

	return r
}
