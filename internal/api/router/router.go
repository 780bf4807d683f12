package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/clinic-desk/internal/assistant"
	"github.com/wolfman30/clinic-desk/internal/clinic"
	httpmiddleware "github.com/wolfman30/clinic-desk/internal/http/middleware"
	"github.com/wolfman30/clinic-desk/internal/patients"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	PatientsHandler    *patients.Handler
	AssistantHandler   *assistant.Handler
	ClinicHandler      *clinic.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// AssistantLimiter throttles the assistant routes per client IP.
	AssistantLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
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

	r.Get("/health", health)
	if cfg.PatientsHandler != nil {
		r.Get("/ready", cfg.PatientsHandler.Ready)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.PatientsHandler != nil {
			cfg.PatientsHandler.Register(api)
		}
		if cfg.ClinicHandler != nil {
			api.Mount("/clinic", cfg.ClinicHandler.Routes())
		}
		if cfg.AssistantHandler != nil {
			api.Route("/assistant", func(ar chi.Router) {
				if cfg.AssistantLimiter != nil {
					ar.Use(cfg.AssistantLimiter.Middleware)
				}
				ar.Mount("/", cfg.AssistantHandler.Routes())
			})
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
