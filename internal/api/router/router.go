package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/http/handlers"
	httpmiddleware "github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/http/middleware"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Wizard             *handlers.WizardHandler
	FAQ                *handlers.FAQHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests/sec per IP for the booking endpoints; zero disables.
	RateLimit      float64
	RateLimitBurst int
}

// New creates a chi router with all routes configured.
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

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.RateLimit > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimit, cfg.RateLimitBurst))
		}
		if cfg.Wizard != nil {
			api.Mount("/booking", cfg.Wizard.Routes())
		}
		if cfg.FAQ != nil {
			api.Get("/faqs", cfg.FAQ.List)
		}
	})

	return r
}
