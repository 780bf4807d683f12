package patients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-desk/internal/persistence"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

const defaultDashboardUpcoming = 5

// OpenFunc reports whether the clinic is open at t.
type OpenFunc func(t time.Time) bool

// Handler exposes the domain operations over HTTP.
type Handler struct {
	service     *Service
	logger      *logging.Logger
	persistWait time.Duration
	isOpen      OpenFunc
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithPersistWait bounds how long mutating requests wait for their write
// before answering without a warning.
func WithPersistWait(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d >= 0 {
			h.persistWait = d
		}
	}
}

// WithOpenFunc enables the clinicOpen flag on the dashboard.
func WithOpenFunc(fn OpenFunc) HandlerOption {
	return func(h *Handler) { h.isOpen = fn }
}

// NewHandler creates a patients HTTP handler.
func NewHandler(service *Service, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		service:     service,
		logger:      logger,
		persistWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the patient, appointment and dashboard routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register adds the routes to an existing router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/patients", h.SearchPatients)
	r.Post("/patients", h.AddPatient)
	r.Get("/patients/{id}", h.GetPatient)
	r.Put("/patients/{id}", h.UpdatePatient)
	r.Get("/patients/{id}/appointments", h.PatientAppointments)
	r.Get("/appointments", h.ListAppointments)
	r.Get("/appointments/upcoming", h.UpcomingAppointments)
	r.Post("/appointments", h.AddAppointment)
	r.Patch("/appointments/{id}", h.UpdateAppointment)
	r.Get("/dashboard", h.Dashboard)
	r.Get("/persistence", h.Persistence)
}

// Ready answers 503 until the store has been initialized.
// GET /ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.service.Store().IsReady() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeOutcome tells the caller what happened to the background save.
// Persistence is saved, failed or pending; a pending write can be
// re-checked through GET /persistence.
type writeOutcome struct {
	Persistence string `json:"persistence,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

type patientEnvelope struct {
	Patient *Patient `json:"patient,omitempty"`
	Updated *bool    `json:"updated,omitempty"`
	writeOutcome
}

type appointmentEnvelope struct {
	Appointment Appointment `json:"appointment"`
	writeOutcome
}

// SearchPatients handles GET /patients?q=term.
func (h *Handler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.SearchPatients(r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// AddPatient handles POST /patients.
func (h *Handler) AddPatient(w http.ResponseWriter, r *http.Request) {
	var req NewPatient
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	created, receipt, err := h.service.AddPatient(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, patientEnvelope{
		Patient:      &created,
		writeOutcome: h.awaitWrite(r.Context(), receipt),
	})
}

// GetPatient handles GET /patients/{id}.
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.service.FindPatientByID(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if p == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "patient not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// UpdatePatient handles PUT /patients/{id}. An unknown id answers 200 with
// updated=false.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req Patient
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	req.ID = chi.URLParam(r, "id")

	updated, receipt, err := h.service.UpdatePatient(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := patientEnvelope{Updated: &updated}
	if updated {
		resp.writeOutcome = h.awaitWrite(r.Context(), receipt)
		if p, err := h.service.FindPatientByID(req.ID); err == nil {
			resp.Patient = p
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PatientAppointments handles GET /patients/{id}/appointments.
func (h *Handler) PatientAppointments(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.GetAppointmentsByPatientID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// ListAppointments handles GET /appointments.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAppointments()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// UpcomingAppointments handles GET /appointments/upcoming?limit=n.
func (h *Handler) UpcomingAppointments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, &ValidationError{Field: "limit", Reason: "must be a non-negative integer"})
			return
		}
		limit = n
	}
	list, err := h.service.GetUpcomingAppointments(limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

type addAppointmentRequest struct {
	PatientID     string        `json:"patientId"`
	DateTime      string        `json:"dateTime"`
	Reason        string        `json:"reason"`
	Notes         string        `json:"notes"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	AmountCents   int64         `json:"amountCents"`
}

// AddAppointment handles POST /appointments. Zone-less dateTime values are
// read in the clinic timezone.
func (h *Handler) AddAppointment(w http.ResponseWriter, r *http.Request) {
	var req addAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	var when time.Time
	if strings.TrimSpace(req.DateTime) != "" {
		parsed, err := ParseDateTime(req.DateTime, h.service.Location())
		if err != nil {
			h.writeError(w, &ValidationError{Field: "dateTime", Reason: err.Error()})
			return
		}
		when = parsed
	}

	created, receipt, err := h.service.AddAppointment(NewAppointment{
		PatientID:     req.PatientID,
		DateTime:      when,
		Reason:        req.Reason,
		Notes:         req.Notes,
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		AmountCents:   req.AmountCents,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, appointmentEnvelope{
		Appointment:  created,
		writeOutcome: h.awaitWrite(r.Context(), receipt),
	})
}

// UpdateAppointment handles PATCH /appointments/{id}.
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req AppointmentUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	updated, receipt, err := h.service.UpdateAppointment(chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appointmentEnvelope{
		Appointment:  updated,
		writeOutcome: h.awaitWrite(r.Context(), receipt),
	})
}

type dashboardResponse struct {
	Dashboard
	ClinicOpen *bool `json:"clinicOpen,omitempty"`
}

// Dashboard handles GET /dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(defaultDashboardUpcoming)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := dashboardResponse{Dashboard: d}
	if h.isOpen != nil {
		open := h.isOpen(h.service.now())
		resp.ClinicOpen = &open
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// awaitWrite waits up to persistWait for the write. A write still in flight
// is reported as pending rather than failed.
func (h *Handler) awaitWrite(ctx context.Context, receipt *persistence.Receipt) writeOutcome {
	if h.persistWait > 0 {
		ctx, cancel := context.WithTimeout(ctx, h.persistWait)
		defer cancel()
		if err := receipt.Wait(ctx); err != nil && !persistence.IsSaveError(err) {
			h.logger.Debug("persistence write still pending", "error", err)
		}
	}
	return writeOutcome{
		Persistence: receipt.State(),
		Warning:     warningFor(receipt.Err()),
	}
}

// Persistence handles GET /persistence with the newest write state per collection.
func (h *Handler) Persistence(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"collections": h.service.Store().PersistenceStatus(),
	})
}

func warningFor(err error) string {
	var saveErr *persistence.SaveError
	if !errors.As(err, &saveErr) {
		return ""
	}
	return "changes were applied but could not be saved to " + saveErr.Collection + "; they may be lost on restart"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrAppointmentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("patients request failed", "error", err)
		msg = "internal server error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
