package clinic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

type settingsStore interface {
	Get(ctx context.Context) (*Config, error)
	Set(ctx context.Context, cfg *Config) error
}

// Handler provides HTTP endpoints for clinic settings.
type Handler struct {
	store    settingsStore
	logger   *logging.Logger
	onUpdate func(*Config)
}

// NewHandler creates a clinic settings handler. onUpdate, when set, runs
// after every successful save.
func NewHandler(store settingsStore, logger *logging.Logger, onUpdate func(*Config)) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:    store,
		logger:   logger,
		onUpdate: onUpdate,
	}
}

// Routes returns a chi router with the settings routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	return r
}

// GetSettings returns the clinic settings.
// GET /clinic/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get clinic settings", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// UpdateSettingsRequest is the request body for a partial settings update.
type UpdateSettingsRequest struct {
	Name          string         `json:"name,omitempty"`
	Timezone      string         `json:"timezone,omitempty"`
	Phone         *string        `json:"phone,omitempty"`
	Address       *string        `json:"address,omitempty"`
	BusinessHours *BusinessHours `json:"business_hours,omitempty"`
}

// UpdateSettings applies a partial update.
// PUT /clinic/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	cfg, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get clinic settings", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		cfg.Name = name
	}
	if tz := strings.TrimSpace(req.Timezone); tz != "" {
		cfg.Timezone = tz
	}
	if req.Phone != nil {
		cfg.Phone = *req.Phone
	}
	if req.Address != nil {
		cfg.Address = *req.Address
	}
	if req.BusinessHours != nil {
		cfg.BusinessHours = *req.BusinessHours
	}

	if err := cfg.Validate(); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.store.Set(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save clinic settings", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save settings"})
		return
	}

	h.logger.Info("clinic settings updated", "name", cfg.Name, "timezone", cfg.Timezone)
	if h.onUpdate != nil {
		h.onUpdate(cfg)
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode clinic settings", "error", err)
	}
}
