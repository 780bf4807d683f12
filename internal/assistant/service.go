package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-desk/internal/observability/metrics"
	"github.com/wolfman30/clinic-desk/internal/patients"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

const (
	KindSummary = "summary"
	KindTriage  = "triage"
)

// PatientDirectory is the read side of the patient store the assistant needs.
type PatientDirectory interface {
	FindPatientByID(id string) (*patients.Patient, error)
	GetAppointmentsByPatientID(patientID string) ([]patients.Appointment, error)
}

// Processor runs assistant requests. Service implements it; handlers and
// the worker depend on it.
type Processor interface {
	Summarize(ctx context.Context, req SummaryRequest) (*SummaryResponse, error)
	Triage(ctx context.Context, req TriageRequest) (*TriageResult, error)
}

type SummaryRequest struct {
	PatientHistory string `json:"patientHistory,omitempty" dynamodbav:"patientHistory,omitempty"`
	PatientID      string `json:"patientId,omitempty" dynamodbav:"patientId,omitempty"`

	// Patient is filled by the API when a job is queued.
	Patient *PatientFacts `json:"-" dynamodbav:"-"`
}

type SummaryResponse struct {
	Summary string `json:"summary" dynamodbav:"summary"`
}

type TriageRequest struct {
	Symptoms  string `json:"symptoms" dynamodbav:"symptoms"`
	PatientID string `json:"patientId,omitempty" dynamodbav:"patientId,omitempty"`

	Patient *PatientFacts `json:"-" dynamodbav:"-"`
}

// PatientFacts is the patient data a request was resolved against. Queued
// jobs carry it so workers never open the patient store.
type PatientFacts struct {
	PatientID    string `json:"patientId"`
	Context      string `json:"context"`
	History      string `json:"history,omitempty"`
	Appointments int    `json:"appointments,omitempty"`
}

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyModerate  Urgency = "moderate"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) valid() bool {
	switch u {
	case UrgencyLow, UrgencyModerate, UrgencyHigh, UrgencyEmergency:
		return true
	}
	return false
}

type TriageResult struct {
	Urgency         Urgency  `json:"urgency" dynamodbav:"urgency"`
	Rationale       string   `json:"rationale" dynamodbav:"rationale"`
	Recommendations []string `json:"recommendations" dynamodbav:"recommendations"`
}

// Config tunes the model calls.
type Config struct {
	Model       string
	MaxTokens   int32
	Temperature float32
	Timeout     time.Duration
}

// Service produces summaries and triage assessments.
type Service struct {
	client    LLMClient
	directory PatientDirectory
	cfg       Config
	logger    *logging.Logger
	metrics   *metrics.AssistantMetrics
	now       func() time.Time
}

type ServiceOption func(*Service)

func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) {
		if cfg.MaxTokens <= 0 {
			cfg.MaxTokens = s.cfg.MaxTokens
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = s.cfg.Timeout
		}
		s.cfg = cfg
	}
}

func WithServiceMetrics(m *metrics.AssistantMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the assistant. directory may be nil, in which case
// requests by patient id only succeed when they carry PatientFacts.
func NewService(client LLMClient, directory PatientDirectory, logger *logging.Logger, opts ...ServiceOption) *Service {
	if client == nil {
		panic("assistant: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		client:    client,
		directory: directory,
		cfg: Config{
			MaxTokens:   800,
			Temperature: 0.2,
			Timeout:     45 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize condenses a medical history. The history comes from the request
// or, when only a patient id is given, from the patient record and its
// recent appointments.
func (s *Service) Summarize(ctx context.Context, req SummaryRequest) (resp *SummaryResponse, err error) {
	start := time.Now()
	defer func() { s.observe(KindSummary, start, err) }()

	history := strings.TrimSpace(req.PatientHistory)
	patientID := strings.TrimSpace(req.PatientID)
	if history == "" && patientID == "" {
		return nil, fmt.Errorf("%w: patientHistory or patientId is required", ErrEmptyInput)
	}

	var facts string
	if patientID != "" {
		pf, err := s.patientFacts(patientID, req.Patient)
		if err != nil {
			return nil, err
		}
		if history == "" {
			if err := pf.requireHistory(); err != nil {
				return nil, err
			}
			history = pf.History
		}
		facts = pf.Context
	}

	text, err := s.complete(ctx, KindSummary, summarySystemPrompt, buildSummaryPrompt(history, facts))
	if err != nil {
		return nil, err
	}
	s.logger.Debug("summary generated", "patient_id", patientID, "chars", len(text))
	return &SummaryResponse{Summary: text}, nil
}

// Triage classifies the urgency of reported symptoms.
func (s *Service) Triage(ctx context.Context, req TriageRequest) (result *TriageResult, err error) {
	start := time.Now()
	defer func() { s.observe(KindTriage, start, err) }()

	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" {
		return nil, fmt.Errorf("%w: symptoms are required", ErrEmptyInput)
	}

	var facts, history string
	if patientID := strings.TrimSpace(req.PatientID); patientID != "" {
		pf, err := s.patientFacts(patientID, req.Patient)
		if err != nil {
			return nil, err
		}
		facts = pf.Context
		history = pf.History
	}

	text, err := s.complete(ctx, KindTriage, triageSystemPrompt, buildTriagePrompt(symptoms, facts, history))
	if err != nil {
		return nil, err
	}
	result, err = parseTriage(text)
	if err != nil {
		return nil, &UpstreamError{Op: KindTriage, Err: err}
	}
	return result, nil
}

// ResolvePatient snapshots the patient record and recent appointments.
func (s *Service) ResolvePatient(patientID string) (*PatientFacts, error) {
	p, appts, err := s.lookup(patientID)
	if err != nil {
		return nil, err
	}
	return &PatientFacts{
		PatientID:    patientID,
		Context:      patientContext(p, appts, s.now()),
		History:      strings.TrimSpace(p.MedicalHistory),
		Appointments: len(appts),
	}, nil
}

// patientFacts prefers the snapshot attached to the request and falls back
// to the directory.
func (s *Service) patientFacts(patientID string, attached *PatientFacts) (*PatientFacts, error) {
	if attached != nil && attached.PatientID == patientID {
		return attached, nil
	}
	return s.ResolvePatient(patientID)
}

func (f *PatientFacts) requireHistory() error {
	if f.History == "" && f.Appointments == 0 {
		return fmt.Errorf("%w: patient %s has no medical history", ErrEmptyInput, f.PatientID)
	}
	return nil
}

func (s *Service) lookup(patientID string) (*patients.Patient, []patients.Appointment, error) {
	if s.directory == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	p, err := s.directory.FindPatientByID(patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("assistant: lookup patient: %w", err)
	}
	if p == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	appts, err := s.directory.GetAppointmentsByPatientID(patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("assistant: lookup appointments: %w", err)
	}
	return p, appts, nil
}

func (s *Service) complete(ctx context.Context, op, system, prompt string) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	resp, err := s.client.Complete(ctx, LLMRequest{
		Model:       s.cfg.Model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		s.logger.Error("assistant model call failed", "op", op, "error", err)
		return "", &UpstreamError{Op: op, Err: err}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		s.logger.Warn("assistant model returned empty output", "op", op, "stop_reason", resp.StopReason)
		return "", &UpstreamError{Op: op, Err: ErrEmptyOutput}
	}
	s.logger.Debug("assistant model call completed",
		"op", op,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return text, nil
}

func (s *Service) observe(kind string, start time.Time, err error) {
	s.metrics.Observe(kind, outcome(err), time.Since(start))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyInput), errors.Is(err, ErrPatientNotFound):
		return "invalid"
	case IsUpstream(err):
		return "upstream_error"
	default:
		return "error"
	}
}

// parseTriage extracts the JSON object from the model answer, tolerating
// code fences and surrounding prose, and validates it.
func parseTriage(text string) (*TriageResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in answer", ErrInvalidOutput)
	}

	var result TriageResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	result.Urgency = Urgency(strings.ToLower(strings.TrimSpace(string(result.Urgency))))
	if !result.Urgency.valid() {
		return nil, fmt.Errorf("%w: urgency %q", ErrInvalidOutput, result.Urgency)
	}
	result.Rationale = strings.TrimSpace(result.Rationale)
	if result.Rationale == "" {
		return nil, fmt.Errorf("%w: rationale is empty", ErrInvalidOutput)
	}
	recs := result.Recommendations[:0]
	for _, r := range result.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			recs = append(recs, r)
		}
	}
	result.Recommendations = recs
	if result.Recommendations == nil {
		result.Recommendations = []string{}
	}
	return &result, nil
}
