package assistant

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/clinic-desk/internal/patients"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

// PatientResolver snapshots patient data when a job is queued, so the worker
// processing it needs no access to the patient store.
type PatientResolver interface {
	ResolvePatient(patientID string) (*PatientFacts, error)
}

// Handler exposes the assistant over HTTP.
type Handler struct {
	processor Processor
	jobs      JobStore
	publisher *Publisher
	newID     func() string
	logger    *logging.Logger
}

type HandlerOption func(*Handler)

// WithJobs enables the asynchronous job routes.
func WithJobs(jobs JobStore, publisher *Publisher) HandlerOption {
	return func(h *Handler) {
		h.jobs = jobs
		h.publisher = publisher
	}
}

func WithJobIDGenerator(fn func() string) HandlerOption {
	return func(h *Handler) {
		if fn != nil {
			h.newID = fn
		}
	}
}

func NewHandler(processor Processor, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		processor: processor,
		newID:     uuid.NewString,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the assistant routes. Job routes are only mounted when a
// job store and publisher are configured.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/summary", h.Summary)
	r.Post("/triage", h.Triage)
	if h.jobs != nil && h.publisher != nil {
		r.Post("/jobs", h.CreateJob)
		r.Get("/jobs/{jobID}", h.GetJob)
	}
	return r
}

// Summary handles POST /summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	resp, err := h.processor.Summarize(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Triage handles POST /triage.
func (h *Handler) Triage(w http.ResponseWriter, r *http.Request) {
	var req TriageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	resp, err := h.processor.Triage(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type createJobRequest struct {
	Kind    string          `json:"kind"`
	Summary *SummaryRequest `json:"summary,omitempty"`
	Triage  *TriageRequest  `json:"triage,omitempty"`
}

// CreateJob handles POST /jobs and answers 202 with the pending job id.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	job := &JobRecord{JobID: h.newID(), Kind: strings.ToLower(strings.TrimSpace(req.Kind))}
	switch job.Kind {
	case KindSummary:
		if req.Summary == nil || (strings.TrimSpace(req.Summary.PatientHistory) == "" && strings.TrimSpace(req.Summary.PatientID) == "") {
			h.writeError(w, ErrEmptyInput)
			return
		}
		job.Summary = req.Summary
	case KindTriage:
		if req.Triage == nil || strings.TrimSpace(req.Triage.Symptoms) == "" {
			h.writeError(w, ErrEmptyInput)
			return
		}
		job.Triage = req.Triage
	default:
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be summary or triage"})
		return
	}

	if err := h.attachPatient(job); err != nil {
		h.writeError(w, err)
		return
	}

	ctx := r.Context()
	if err := h.jobs.PutPending(ctx, job); err != nil {
		h.writeError(w, err)
		return
	}

	var err error
	if job.Kind == KindSummary {
		err = h.publisher.EnqueueSummary(ctx, job.JobID, *job.Summary)
	} else {
		err = h.publisher.EnqueueTriage(ctx, job.JobID, *job.Triage)
	}
	if err != nil {
		if markErr := h.jobs.MarkFailed(ctx, job.JobID, "enqueue failed"); markErr != nil {
			h.logger.Error("failed to mark job failed", "job_id", job.JobID, "error", markErr)
		}
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(JobStatusPending),
	})
}

// attachPatient resolves the job's patient now, against the API's live store.
func (h *Handler) attachPatient(job *JobRecord) error {
	resolver, ok := h.processor.(PatientResolver)
	if !ok {
		return nil
	}
	switch {
	case job.Summary != nil && strings.TrimSpace(job.Summary.PatientID) != "":
		facts, err := resolver.ResolvePatient(strings.TrimSpace(job.Summary.PatientID))
		if err != nil {
			return err
		}
		if strings.TrimSpace(job.Summary.PatientHistory) == "" {
			if err := facts.requireHistory(); err != nil {
				return err
			}
		}
		job.Summary.Patient = facts
	case job.Triage != nil && strings.TrimSpace(job.Triage.PatientID) != "":
		facts, err := resolver.ResolvePatient(strings.TrimSpace(job.Triage.PatientID))
		if err != nil {
			return err
		}
		job.Triage.Patient = facts
	}
	return nil
}

// GetJob handles GET /jobs/{jobID}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, patients.ErrNotReady):
		return http.StatusServiceUnavailable
	case IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error()}
	switch status {
	case http.StatusBadGateway:
		body["retryable"] = true
	case http.StatusInternalServerError:
		h.logger.Error("assistant request failed", "error", err)
		body["error"] = "internal server error"
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
