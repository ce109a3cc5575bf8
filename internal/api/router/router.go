package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/telecom-lead-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/telecom-lead-agent/internal/http/middleware"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/internal/webhook"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	WebhookHandler      *webhook.Handler
	LeadsHandler        *leads.Handler
	ConversationHandler *conversation.Handler
	MetricsHandler      http.Handler

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	// WebhookLimiter throttles the webhook routes per client IP when set. The
	// caller owns it and runs its eviction loop.
	WebhookLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.WebhookHandler == nil {
		panic("router: webhook handler is required")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public: channel webhooks, health, metrics
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.WebhookHandler.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Group(func(hooks chi.Router) {
			if cfg.WebhookLimiter != nil {
				hooks.Use(cfg.WebhookLimiter.Middleware)
			}
			cfg.WebhookHandler.Register(hooks)
		})
	})

	// Lead management
	if cfg.LeadsHandler != nil || cfg.ConversationHandler != nil {
		r.Route("/leads", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			if cfg.LeadsHandler != nil {
				cfg.LeadsHandler.Register(admin)
			}
			if cfg.ConversationHandler != nil {
				admin.Get("/{contactID}/conversation", cfg.ConversationHandler.GetConversation)
			}
		})
	}

	return r
}
