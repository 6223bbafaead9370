package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/escalations"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/http/handlers"
	httpmiddleware "github.com/Phoneboothmumbai/heycharu-sub000/internal/http/middleware"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	WhatsAppWebhooks    *handlers.WhatsAppWebhookHandler
	AdminMessaging      *handlers.AdminMessagingHandler
	EscalationsHandler  *escalations.Handler
	MetricsHandler      http.Handler
	AdminAuthSecret     string
	CORSAllowedOrigins  []string
	WebhookRatePerSec   float64
	WebhookRateBurst    int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.WhatsAppWebhooks != nil {
			rate := cfg.WebhookRatePerSec
			if rate <= 0 {
				rate = 20
			}
			burst := cfg.WebhookRateBurst
			if burst <= 0 {
				burst = 40
			}
			public.Route("/whatsapp", func(wh chi.Router) {
				wh.Use(httpmiddleware.RateLimit(rate, burst))
				wh.Post("/incoming", cfg.WhatsAppWebhooks.HandleIncoming)
				wh.Post("/connected", cfg.WhatsAppWebhooks.HandleConnected)
			})
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Admin routes (JWT protected)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminMessaging != nil {
				admin.Post("/messages/send", cfg.AdminMessaging.SendMessage)
				admin.Post("/messages/schedule", cfg.AdminMessaging.ScheduleMessage)
			}
			if cfg.EscalationsHandler != nil {
				admin.Get("/escalations/pending-sla", cfg.EscalationsHandler.PendingSLA)
				admin.Post("/escalations/check-sla", cfg.EscalationsHandler.CheckSLA)
				admin.Post("/escalations/{code}/reviewed", cfg.EscalationsHandler.MarkReviewed)
			}
		})
	}

	return r
}
